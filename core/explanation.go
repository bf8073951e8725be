package core

import (
	"strconv"
	"strings"
)

// Explanation 是打分过程的解释树：根节点描述聚合方式，子节点描述每一项的贡献。
type Explanation struct {
	Value       float64        `json:"value"`
	Description string         `json:"description"`
	Details     []*Explanation `json:"details,omitempty"`
}

// NewExplanation 创建解释节点
func NewExplanation(value float64, description string, details ...*Explanation) *Explanation {
	return &Explanation{
		Value:       value,
		Description: description,
		Details:     details,
	}
}

// AddDetail 追加子节点
func (e *Explanation) AddDetail(d *Explanation) {
	if d == nil {
		return
	}
	e.Details = append(e.Details, d)
}

// String 以缩进文本形式输出整棵解释树。
func (e *Explanation) String() string {
	var b strings.Builder
	e.write(&b, 0)
	return b.String()
}

func (e *Explanation) write(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(strconv.FormatFloat(e.Value, 'g', -1, 64))
	b.WriteString(" = ")
	b.WriteString(e.Description)
	b.WriteByte('\n')
	for _, d := range e.Details {
		d.write(b, depth+1)
	}
}
