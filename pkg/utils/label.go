// Package utils 提供候选在 pipeline 中透传的标签。
package utils

// Label 记录某个节点对候选的一次标注，例如 recall.query 的首轮名次、rerank.ltr 使用的模型。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // 产生标签的节点，如 recall.query@3 / rerank.ltr / filter
}

// MergeLabel 合并同名标签：Value 以 '|' 累积，Source 以 ',' 累积，空值一侧被忽略。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}
	merged := Label{Value: existing.Value + "|" + incoming.Value, Source: existing.Source}
	if incoming.Source != "" {
		if merged.Source == "" {
			merged.Source = incoming.Source
		} else {
			merged.Source += "," + incoming.Source
		}
	}
	return merged
}
