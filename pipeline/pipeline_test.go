package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/ltrkit/core"
)

type appendNode struct {
	id  string
	err error
}

func (n *appendNode) Name() string { return "append." + n.id }
func (n *appendNode) Kind() Kind   { return KindPostProcess }

func (n *appendNode) Process(_ context.Context, _ *core.RequestContext, items []*core.Item) ([]*core.Item, error) {
	if n.err != nil {
		return nil, n.err
	}
	return append(items, core.NewItem(n.id)), nil
}

func TestPipeline_Run(t *testing.T) {
	p := &Pipeline{Nodes: []Node{&appendNode{id: "a"}, &appendNode{id: "b"}}}
	out, err := p.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}

func TestPipeline_Errors(t *testing.T) {
	boom := errors.New("boom")
	p := &Pipeline{Nodes: []Node{&appendNode{id: "a"}, &appendNode{id: "x", err: boom}}}
	_, err := p.Run(context.Background(), nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "node append.x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&Pipeline{Nodes: []Node{&appendNode{id: "a"}}}).Run(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Build(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "p.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
pipeline:
  name: demo
  nodes:
    - type: append
      config: {id: a}
    - type: append
      config: {id: b}
`), 0o600))
	jsonPath := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"pipeline": {"name": "demo", "nodes": [{"type": "append", "config": {"id": "a"}}]}}`), 0o600))

	f := NewNodeFactory()
	f.Register("append", func(cfg map[string]any) (Node, error) {
		id, _ := cfg["id"].(string)
		return &appendNode{id: id}, nil
	})
	assert.Equal(t, []string{"append"}, f.Types())

	for path, want := range map[string]int{yamlPath: 2, jsonPath: 1} {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "demo", cfg.Pipeline.Name)
		p, err := cfg.BuildPipeline(f)
		require.NoError(t, err)
		out, err := p.Run(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Len(t, out, want)
	}

	cfg, err := ParseYAML([]byte("pipeline: {nodes: [{type: missing}]}"))
	require.NoError(t, err)
	_, err = cfg.BuildPipeline(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supported: [append]")

	_, err = Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}
