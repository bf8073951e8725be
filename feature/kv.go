package feature

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pkg/conv"
	"github.com/rushteam/ltrkit/search"
)

// kvExtractor 从 KeyValueStore 读取文档级特征：hash key = prefix + 文档 ID，field = 特征字段。
//
// 参数：
//   - field: hash 字段名（必填）
//   - prefix: key 前缀，默认 "doc:features:"
type kvExtractor struct {
	store  core.KeyValueStore
	prefix string
	field  string
}

// DefaultKVPrefix 是 kv 特征的默认 key 前缀
const DefaultKVPrefix = "doc:features:"

func newKVExtractor(def Definition, deps Deps) (Extractor, error) {
	if deps.KV == nil {
		return nil, core.ConfigErrorf(core.ModuleFeature, "feature %s: kv store is not configured", def.Name)
	}
	field, err := requireString(def, "field")
	if err != nil {
		return nil, err
	}
	return &kvExtractor{
		store:  deps.KV,
		prefix: conv.ConfigGet(def.Params, "prefix", DefaultKVPrefix),
		field:  field,
	}, nil
}

func (k *kvExtractor) Scorer(ctx context.Context, seg *search.Segment, _ *Request) (search.Scorer, error) {
	return search.NewDenseScorer(seg.MaxDoc(), func(doc int) (float64, error) {
		id := seg.Doc(doc).ID
		raw, err := k.store.HGet(ctx, k.prefix+id, k.field)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return 0, fmt.Errorf("kv %s%s/%s: %w", k.prefix, id, k.field, err)
		}
		return f, nil
	}), nil
}
