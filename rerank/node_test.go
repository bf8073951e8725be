package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
	"github.com/rushteam/ltrkit/pkg/utils"
	"github.com/rushteam/ltrkit/recall"
	"github.com/rushteam/ltrkit/search"
)

func itemIDs(items []*core.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestPipeline_RecallRerankTopN(t *testing.T) {
	idx := search.NewIndex(testReader(2))
	p := &pipeline.Pipeline{
		Nodes: []pipeline.Node{
			&recall.QueryNode{Index: idx, DefaultField: "title", Fields: []string{"title"}},
			&Node{Index: idx, Parser: NewParser(testResolver(t)), DefaultField: "title"},
			&TopNNode{N: 10, Param: "rows"},
		},
	}
	rctx := &core.RequestContext{Params: map[string]string{
		"q": "value:base", "model": "m", "reRankDocs": "3", "rows": "4",
	}}

	items, err := p.Run(context.Background(), rctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d3", "d1", "d4"}, itemIDs(items))

	q, reader, ok := Executed(rctx)
	require.True(t, ok)
	assert.Equal(t, "m", q.Model().Name())
	assert.Equal(t, 3, q.Depth())
	assert.Same(t, idx.Reader(), reader)
	_, _, ok = Executed(&core.RequestContext{})
	assert.False(t, ok)

	top := items[0]
	assert.True(t, top.Rescored)
	assert.Equal(t, 5.0, top.Score)
	assert.Equal(t, 9.0, top.OriginalScore)
	assert.Equal(t, []float64{5}, top.Features)
	assert.Equal(t, "m", top.Labels["rerank"].Value)
	assert.Equal(t, "ltr=5", top.Labels["features"].Value)
	assert.Equal(t, "rerank.ltr", top.Labels["features"].Source)
	assert.Equal(t, "1", top.Meta["rerank_rank"])
	assert.Equal(t, "rust", top.Meta["title"])

	tail := items[3]
	assert.False(t, tail.Rescored)
	assert.Equal(t, 7.0, tail.Score)
	assert.Nil(t, tail.Features)
	assert.NotContains(t, tail.Labels, "rerank")
	assert.NotContains(t, tail.Labels, "features")
}

func TestNode_QueryFromItemMeta(t *testing.T) {
	idx := search.NewIndex(testReader(3))
	qn := &recall.QueryNode{Index: idx, Query: "value:base"}
	items, err := qn.Process(context.Background(), nil, nil)
	require.NoError(t, err)

	// 请求中没有 q 参数时使用候选记录的首轮查询
	n := &Node{Index: idx, Parser: NewParser(testResolver(t))}
	out, err := n.Process(context.Background(), &core.RequestContext{Params: map[string]string{"model": "m", "reRankDocs": "2"}}, items)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d1", "d3"}, itemIDs(out[:3]))
	assert.Len(t, out, 10)
}

func TestNode_Errors(t *testing.T) {
	idx := search.NewIndex(testReader(3))
	qn := &recall.QueryNode{Index: idx, Query: "value:base"}
	items, err := qn.Process(context.Background(), nil, nil)
	require.NoError(t, err)
	n := &Node{Index: idx, Parser: NewParser(testResolver(t))}

	out, err := n.Process(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = n.Process(context.Background(), &core.RequestContext{Params: map[string]string{"model": "nope"}}, items)
	assert.True(t, core.IsBadRequest(err))

	// 重新打开索引后旧候选不能再重排
	idx.Reopen(idx.Reader().Add(search.Document{ID: "d11", Values: map[string]float64{"base": 0}}))
	_, err = n.Process(context.Background(), &core.RequestContext{Params: map[string]string{"model": "m"}}, items)
	assert.True(t, core.IsUnavailable(err), "err = %v", err)
}

func TestTopNNode(t *testing.T) {
	items := []*core.Item{core.NewItem("a"), core.NewItem("b"), core.NewItem("c")}
	tests := []struct {
		name    string
		node    *TopNNode
		params  map[string]string
		want    []string
		wantErr bool
	}{
		{"fixed", &TopNNode{N: 2}, nil, []string{"a", "b"}, false},
		{"no limit", &TopNNode{}, nil, []string{"a", "b", "c"}, false},
		{"larger than input", &TopNNode{N: 5}, nil, []string{"a", "b", "c"}, false},
		{"from param", &TopNNode{N: 2, Param: "rows"}, map[string]string{"rows": "1"}, []string{"a"}, false},
		{"param missing", &TopNNode{N: 2, Param: "rows"}, map[string]string{}, []string{"a", "b"}, false},
		{"param invalid", &TopNNode{Param: "rows"}, map[string]string{"rows": "x"}, nil, true},
		{"param negative", &TopNNode{Param: "rows"}, map[string]string{"rows": "-1"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.node.Process(context.Background(), &core.RequestContext{Params: tt.params}, items)
			if tt.wantErr {
				assert.True(t, core.IsBadRequest(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(out))
		})
	}
}

func TestDiversity(t *testing.T) {
	mk := func(id, cat string) *core.Item {
		it := core.NewItem(id)
		if cat != "" {
			it.PutMeta("category", cat)
		}
		return it
	}
	items := []*core.Item{mk("a", "x"), mk("b", "x"), mk("c", "y"), mk("d", ""), mk("e", "x")}
	labeled := core.NewItem("f")
	labeled.PutLabel("category", utils.Label{Value: "y", Source: "test"})
	items = append(items, labeled)

	out, err := (&Diversity{}).Process(context.Background(), nil, items)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d", "b", "e", "f"}, itemIDs(out))

	out, err = (&Diversity{MaxPerGroup: 2, Drop: true}).Process(context.Background(), nil, items)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "f"}, itemIDs(out))
}
