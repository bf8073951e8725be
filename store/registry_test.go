package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/model"
	"github.com/rushteam/ltrkit/rerank"
)

var _ rerank.Resolver = (*Registry)(nil)

const testDefinitions = `
feature_stores:
  - features:
      - name: ltr
        type: field
        params: {field: ltr}
      - name: orig
        type: original_score
  - name: kv
    features:
      - name: ctr
        type: kv
        params: {prefix: "doc:", field: ctr}
        default: 0.1
models:
  - name: m
    type: linear
    features: [ltr, orig]
    params:
      weights: {ltr: 1, orig: 0.5}
  - name: kvm
    type: linear
    store: kv
    features: [ctr]
    norms:
      ctr: {type: minmax, params: {min: 0, max: 1}}
    params:
      weights: [2]
`

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	defs, err := ParseDefinitions([]byte(testDefinitions), "yaml")
	require.NoError(t, err)
	r := NewRegistry(WithDeps(feature.Deps{KV: NewMemoryStore()}))
	require.NoError(t, r.Load(defs))
	return r
}

func TestRegistry_Resolve(t *testing.T) {
	r := loadTestRegistry(t)
	assert.Equal(t, []string{"kvm", "m"}, r.ModelNames())
	assert.Equal(t, []string{core.DefaultFeatureStore, "kv"}, r.StoreNames())

	m, err := r.Model("m")
	require.NoError(t, err)
	assert.Equal(t, core.DefaultFeatureStore, m.FeatureStoreName())
	assert.Equal(t, []string{"ltr", "orig"}, m.FeatureNames())

	st, err := r.FeatureStore("")
	require.NoError(t, err)
	assert.Equal(t, core.DefaultFeatureStore, st.Name())

	_, err = r.Model("nope")
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsStoreNotFound(err))
	_, err = r.FeatureStore("nope")
	assert.True(t, core.IsNotFound(err))
}

func TestRegistry_Errors(t *testing.T) {
	r := loadTestRegistry(t)

	// 模型引用不存在的特征库
	err := r.AddModel(model.Config{Name: "x", Type: model.TypeLinear, Store: "nope", Features: []string{"a"}})
	assert.True(t, core.IsConfigError(err))
	assert.True(t, core.IsNotFound(errors.Unwrap(err)))

	// 权重数量不符
	err = r.AddModel(model.Config{Name: "x", Type: model.TypeLinear, Features: []string{"ltr"}, Params: map[string]any{"weights": []any{1, 2}}})
	assert.True(t, core.IsConfigError(err))
	_, err = r.Model("x")
	assert.True(t, core.IsNotFound(err))

	// 被模型引用的特征库不能替换或删除
	err = r.AddFeatureStore(StoreDefinition{Name: "kv"})
	assert.True(t, core.IsConfigError(err))
	assert.True(t, core.IsConfigError(r.RemoveFeatureStore("kv")))

	require.NoError(t, r.RemoveModel("kvm"))
	assert.True(t, core.IsNotFound(r.RemoveModel("kvm")))
	require.NoError(t, r.RemoveFeatureStore("kv"))
	assert.True(t, core.IsNotFound(r.RemoveFeatureStore("kv")))

	_, err = ParseDefinitions([]byte("{}"), "toml")
	assert.Error(t, err)
}

func TestRegistry_ReplaceModel(t *testing.T) {
	r := loadTestRegistry(t)
	before, err := r.Model("m")
	require.NoError(t, err)

	require.NoError(t, r.AddModel(model.Config{Name: "m", Type: model.TypeLinear, Features: []string{"ltr"}, Params: map[string]any{"weights": []any{3}}}))
	after, err := r.Model("m")
	require.NoError(t, err)
	assert.False(t, before.Equal(after))
	// 已解析的旧模型不受影响
	assert.Equal(t, 2, before.NumFeatures())
}

func TestRegistry_SaveRestore(t *testing.T) {
	ctx := context.Background()
	r := loadTestRegistry(t)
	kv, _ := newRedis(t, "")
	require.NoError(t, r.Save(ctx, kv))

	raw, err := kv.HGetAll(ctx, ModelsKey)
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	restored := NewRegistry(WithDeps(feature.Deps{KV: NewMemoryStore()}))
	require.NoError(t, restored.Restore(ctx, kv))
	assert.Equal(t, r.ModelNames(), restored.ModelNames())
	assert.Equal(t, r.StoreNames(), restored.StoreNames())

	for _, name := range r.ModelNames() {
		a, err := r.Model(name)
		require.NoError(t, err)
		b, err := restored.Model(name)
		require.NoError(t, err)
		assert.True(t, a.Equal(b), "model %s differs after restore", name)
	}
}

func TestLoadDefinitions_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"feature_stores": [{"name": "s", "features": [{"name": "one", "type": "value", "params": {"value": 1}}]}],
		"models": [{"name": "m", "type": "linear", "store": "s", "features": ["one"], "params": {"weights": [4]}}]
	}`), 0o600))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	r := NewRegistry()
	require.NoError(t, r.Load(defs))

	m, err := r.Model("m")
	require.NoError(t, err)
	assert.Equal(t, 4.0, m.Score([]float64{1}))
}
