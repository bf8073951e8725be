package config

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
	"github.com/rushteam/ltrkit/rerank"
	"github.com/rushteam/ltrkit/search"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/ltrkit/config/builders"
// 以触发内置 Node（recall.query、filter、rerank.ltr、rerank.topn、rerank.diversity）的 init 注册。

// Env 是构建 Node 时可用的进程级依赖
type Env struct {
	Index  *search.Index
	Parser *rerank.Parser
	KV     core.KeyValueStore // 可为 nil
	Logger *zap.Logger
}

// Builder 根据 env 与 node config 构建 Node。
// 各组件在 init 中调用 Register(typeName, builder) 即可被配置驱动。
type Builder func(env *Env, cfg map[string]any) (pipeline.Node, error)

var (
	defaultBuilders   = make(map[string]Builder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种 Node 的构建逻辑，供 DefaultFactory 与配置驱动使用。
func Register(typeName string, builder Builder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的 Node 类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultFactory 返回绑定了 env 的 NodeFactory，包含所有通过 Register 注册的 Node 类型。
func DefaultFactory(env *Env) *pipeline.NodeFactory {
	e := Env{}
	if env != nil {
		e = *env
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range defaultBuilders {
		f.Register(typeName, func(cfg map[string]any) (pipeline.Node, error) {
			return builder(&e, cfg)
		})
	}
	return f
}

// ValidatePipelineConfig 校验 pipeline 配置中所有 node 类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	supported := SupportedTypes()
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	for i, nc := range cfg.Pipeline.Nodes {
		if nc.Type == "" {
			return fmt.Errorf("node %d: type is required", i)
		}
		if _, ok := defaultBuilders[nc.Type]; !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	return nil
}

// BuildPipeline 校验并构建 pipeline
func BuildPipeline(cfg *pipeline.Config, env *Env) (*pipeline.Pipeline, error) {
	if err := ValidatePipelineConfig(cfg); err != nil {
		return nil, err
	}
	p, err := cfg.BuildPipeline(DefaultFactory(env))
	if err != nil {
		return nil, err
	}
	if env != nil {
		p.Logger = env.Logger
	}
	return p, nil
}
