package core

import "github.com/rushteam/ltrkit/pkg/utils"

// Item 是一次检索执行中的候选文档（Candidate）：首轮分数、特征向量、最终分数、标签。
// 只存活于一次检索执行，从不持久化。
// Labels 用于解释与观测；Score 用于排序决策。
type Item struct {
	ID      string // 文档 ID
	Segment int    // 所属 segment 序号
	Doc     int    // segment 内的文档号
	DocBase int    // segment 的全局起始文档号，全局文档号 = DocBase + Doc

	OriginalScore float64 // 首轮检索分数
	Score         float64 // 当前分数（重排后为模型分数）
	Rescored      bool    // 是否经过二阶段打分

	// Features 是模型特征向量（已归一化），仅重排后的候选有值
	Features []float64

	Meta   map[string]any
	Labels map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:     id,
		Meta:   make(map[string]any),
		Labels: make(map[string]utils.Label),
	}
}

// GlobalDoc 返回全局文档号
func (it *Item) GlobalDoc() int { return it.DocBase + it.Doc }

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// PutMeta 写入元信息
func (it *Item) PutMeta(key string, v any) {
	if it.Meta == nil {
		it.Meta = make(map[string]any)
	}
	it.Meta[key] = v
}
