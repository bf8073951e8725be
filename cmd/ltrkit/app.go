package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/config"
	_ "github.com/rushteam/ltrkit/config/builders"
	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feast"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/governor"
	"github.com/rushteam/ltrkit/metrics"
	"github.com/rushteam/ltrkit/pipeline"
	"github.com/rushteam/ltrkit/pkg/logging"
	"github.com/rushteam/ltrkit/rerank"
	"github.com/rushteam/ltrkit/search"
	"github.com/rushteam/ltrkit/service"
	"github.com/rushteam/ltrkit/store"
)

// app 持有一次进程运行所需的全部组件
type app struct {
	settings  *config.Settings
	logger    *zap.Logger
	kv        core.KeyValueStore
	feast     feast.Client
	registry  *store.Registry
	governor  *governor.Governor
	collector *metrics.Collector
	stats     *feature.MemoryFeatureMonitor
	rescorer  *rerank.Rescorer
	parser    *rerank.Parser
	index     *search.Index
	flogFile  *os.File
}

// newApp 按配置组装组件：日志 -> 存储 -> 定义 -> 调度 -> 重排
func newApp(ctx context.Context, s *config.Settings) (_ *app, err error) {
	a := &app{settings: s}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.logger, err = logging.New(s.Log); err != nil {
		return nil, err
	}

	switch s.Store.Type {
	case "redis":
		rs, rerr := store.NewRedisStore(ctx, s.Store.Redis)
		if rerr != nil {
			return nil, rerr
		}
		a.kv = rs
	default:
		a.kv = store.NewMemoryStore()
	}

	if s.Feast.Endpoint != "" {
		opts := []feast.ClientOption{feast.WithTimeout(s.Feast.Timeout)}
		if s.Feast.Token != "" || s.Feast.TLS {
			opts = append(opts, feast.WithAuth(&feast.AuthConfig{Type: "static", Token: s.Feast.Token, TLS: s.Feast.TLS}))
		}
		client, ferr := feast.NewGrpcClient(s.Feast.Endpoint, s.Feast.Project, opts...)
		if ferr != nil {
			return nil, fmt.Errorf("feast: %w", ferr)
		}
		a.feast = client
	}

	if s.Metrics.Enabled {
		a.collector = metrics.NewCollector(s.Metrics.Namespace, nil, a.logger)
	}

	a.registry = store.NewRegistry(
		store.WithDeps(feature.Deps{KV: a.kv, Feast: a.feast}),
		store.WithRegistryLogger(a.logger),
	)
	if err = a.loadDefinitions(ctx); err != nil {
		return nil, err
	}

	govOpts := []governor.Option{governor.WithLogger(a.logger)}
	if a.collector != nil {
		govOpts = append(govOpts, governor.WithObserver(a.collector))
	}
	if a.governor, err = governor.New(s.Governor, govOpts...); err != nil {
		return nil, err
	}

	rsOpts := []rerank.Option{rerank.WithGovernor(a.governor), rerank.WithLogger(a.logger)}
	var monitors []feature.FeatureMonitor
	if a.collector != nil {
		monitors = append(monitors, a.collector)
		rsOpts = append(rsOpts, rerank.WithObserver(a.collector))
	}
	if s.Rerank.FeatureStats > 0 {
		a.stats = feature.NewMemoryFeatureMonitor(s.Rerank.FeatureStats)
		monitors = append(monitors, a.stats)
	}
	if len(monitors) > 0 {
		rsOpts = append(rsOpts, rerank.WithMonitor(feature.Monitors(monitors...)))
	}
	if s.Rerank.FeatureLog != "" {
		if a.flogFile, err = os.OpenFile(s.Rerank.FeatureLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
			return nil, fmt.Errorf("open feature log: %w", err)
		}
		rsOpts = append(rsOpts, rerank.WithFeatureLogger(rerank.NewCSVLogger(a.flogFile)))
	}
	a.rescorer = rerank.NewRescorer(rsOpts...)
	a.parser = rerank.NewParser(a.registry, rerank.WithConfig(s), rerank.WithRescorer(a.rescorer))
	return a, nil
}

func (a *app) loadDefinitions(ctx context.Context) error {
	s := a.settings
	if s.Store.Restore {
		if err := a.registry.Restore(ctx, a.kv); err != nil {
			return fmt.Errorf("restore definitions: %w", err)
		}
	}
	if s.Definitions == "" {
		return nil
	}
	defs, err := store.LoadDefinitions(s.Definitions)
	if err != nil {
		return fmt.Errorf("definitions %s: %w", s.Definitions, err)
	}
	if err := a.registry.Load(defs); err != nil {
		return fmt.Errorf("definitions %s: %w", s.Definitions, err)
	}
	if s.Store.Save {
		if err := a.registry.Save(ctx, a.kv); err != nil {
			return err
		}
	}
	return nil
}

// loadIndex 读取 JSON 文档数组，path 为空时使用 index.path
func (a *app) loadIndex(path string) error {
	if path == "" {
		path = a.settings.Index.Path
	}
	if path == "" {
		return fmt.Errorf("no index: set index.path or --index")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	var docs []search.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse index %s: %w", path, err)
	}
	a.index = search.NewIndex(search.NewReader(docs, a.settings.Index.SegmentSize))
	a.logger.Info("index loaded", zap.String("path", path), zap.Int("docs", len(docs)))
	return nil
}

// engine 组装重排引擎：path（或 settings.pipeline）非空时按配置构建 pipeline，否则使用默认 pipeline
func (a *app) engine(path string) (*service.Engine, error) {
	if path == "" {
		path = a.settings.Pipeline
	}
	e := &service.Engine{
		Index:        a.index,
		Parser:       a.parser,
		Registry:     a.registry,
		DefaultField: a.settings.Index.DefaultField,
		Logger:       a.logger,
	}
	if path == "" {
		return e, nil
	}
	cfg, err := pipeline.Load(path)
	if err != nil {
		return nil, &exitError{code: ExitConfigError, err: err}
	}
	env := &config.Env{Index: a.index, Parser: a.parser, KV: a.kv, Logger: a.logger}
	if e.Pipeline, err = config.BuildPipeline(cfg, env); err != nil {
		return nil, &exitError{code: ExitConfigError, err: err}
	}
	return e, nil
}

func (a *app) Close() {
	if a.governor != nil {
		a.governor.Close()
	}
	if a.stats != nil {
		a.stats.Close()
	}
	if a.feast != nil {
		_ = a.feast.Close()
	}
	if a.kv != nil {
		_ = a.kv.Close()
	}
	if a.flogFile != nil {
		_ = a.flogFile.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
