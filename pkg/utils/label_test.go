package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{"空的已有值", Label{}, Label{Value: "m", Source: "rerank.ltr"}, Label{Value: "m", Source: "rerank.ltr"}},
		{"空的新值", Label{Value: "1", Source: "recall.query"}, Label{}, Label{Value: "1", Source: "recall.query"}},
		{"累积", Label{Value: "m1", Source: "rerank.ltr"}, Label{Value: "m2", Source: "rerank.ltr"}, Label{Value: "m1|m2", Source: "rerank.ltr,rerank.ltr"}},
		{"缺少来源", Label{Value: "a"}, Label{Value: "b", Source: "filter"}, Label{Value: "a|b", Source: "filter"}},
		{"新值无来源", Label{Value: "a", Source: "filter"}, Label{Value: "b"}, Label{Value: "a|b", Source: "filter"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeLabel(tt.existing, tt.incoming))
		})
	}
}
