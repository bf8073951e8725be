// Package builders 注册内置 Node 的配置构建逻辑，import 即生效。
package builders

import (
	"fmt"

	"github.com/rushteam/ltrkit/config"
	"github.com/rushteam/ltrkit/filter"
	"github.com/rushteam/ltrkit/pipeline"
	"github.com/rushteam/ltrkit/pkg/conv"
	"github.com/rushteam/ltrkit/recall"
	"github.com/rushteam/ltrkit/rerank"
)

func init() {
	config.Register("recall.query", BuildQueryNode)
	config.Register("filter", BuildFilterNode)
	config.Register("rerank.ltr", BuildLTRNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("rerank.diversity", BuildDiversityNode)
}

func requireIndex(env *config.Env, node string) error {
	if env.Index == nil {
		return fmt.Errorf("%s: index is not configured", node)
	}
	return nil
}

func BuildQueryNode(env *config.Env, cfg map[string]any) (pipeline.Node, error) {
	if err := requireIndex(env, "recall.query"); err != nil {
		return nil, err
	}
	return &recall.QueryNode{
		Index:        env.Index,
		DefaultField: conv.ConfigGet(cfg, "default_field", ""),
		Param:        conv.ConfigGet(cfg, "param", recall.DefaultQueryParam),
		Query:        conv.ConfigGet(cfg, "query", ""),
		TopN:         int(conv.ConfigGetInt64(cfg, "top_n", 0)),
		Fields:       conv.SliceAnyToString(cfg["fields"]),
	}, nil
}

func BuildLTRNode(env *config.Env, cfg map[string]any) (pipeline.Node, error) {
	if err := requireIndex(env, "rerank.ltr"); err != nil {
		return nil, err
	}
	if env.Parser == nil {
		return nil, fmt.Errorf("rerank.ltr: parser is not configured")
	}
	return &rerank.Node{
		Index:        env.Index,
		Parser:       env.Parser,
		DefaultField: conv.ConfigGet(cfg, "default_field", ""),
		Param:        conv.ConfigGet(cfg, "param", ""),
	}, nil
}

func BuildTopNNode(_ *config.Env, cfg map[string]any) (pipeline.Node, error) {
	return &rerank.TopNNode{
		N:     int(conv.ConfigGetInt64(cfg, "n", 0)),
		Param: conv.ConfigGet(cfg, "param", ""),
	}, nil
}

func BuildDiversityNode(_ *config.Env, cfg map[string]any) (pipeline.Node, error) {
	return &rerank.Diversity{
		Key:         conv.ConfigGet(cfg, "key", "category"),
		MaxPerGroup: int(conv.ConfigGetInt64(cfg, "max_per_group", 1)),
		Drop:        conv.ConfigGet(cfg, "drop", false),
	}, nil
}

func BuildFilterNode(env *config.Env, cfg map[string]any) (pipeline.Node, error) {
	filtersConfig, ok := cfg["filters"].([]any)
	if !ok {
		return nil, fmt.Errorf("filters not found or invalid")
	}
	filters := make([]filter.Filter, 0, len(filtersConfig))
	for _, fc := range filtersConfig {
		filterMap, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		filterType := conv.ConfigGet(filterMap, "type", "")
		switch filterType {
		case "blacklist":
			ids := conv.SliceAnyToString(filterMap["ids"])
			key := conv.ConfigGet(filterMap, "key", "")
			if key != "" && env.KV == nil {
				return nil, fmt.Errorf("blacklist filter: key %q requires a kv store", key)
			}
			filters = append(filters, filter.NewBlacklistFilter(ids, env.KV, key))
		case "min_score":
			filters = append(filters, &filter.MinScoreFilter{Min: conv.ConfigGetFloat64(filterMap, "min", 0)})
		default:
			return nil, fmt.Errorf("unknown filter type: %s", filterType)
		}
	}
	return &filter.FilterNode{Filters: filters, Logger: env.Logger}, nil
}
