package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/service"
)

var serveFlags struct {
	index    string
	addr     string
	pipeline string
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.index, "index", "", "JSON corpus (array of documents), overrides index.path")
	f.StringVar(&serveFlags.addr, "addr", "", "listen address, overrides server.addr")
	f.StringVar(&serveFlags.pipeline, "pipeline", "", "pipeline config (yaml/json), overrides settings")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /rerank and the model/feature-store schema over HTTP",
	Long: `Serve reranking over HTTP until SIGINT/SIGTERM.

Endpoints:
  GET|POST /rerank                     q, model, reRankDocs, fs, efi.*, rows, explain
  GET|PUT  /schema/models              list / add or replace a model
  DELETE   /schema/models/:name
  GET|PUT  /schema/feature-stores      list / add a feature store
  DELETE   /schema/feature-stores/:name
  GET      /schema/feature-stats[/:name] when rerank.feature_stats > 0
  GET      /metrics                    when metrics.enabled
  GET      /health`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if serveFlags.addr != "" {
		s.Server.Addr = serveFlags.addr
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadIndex(serveFlags.index); err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}
	engine, err := a.engine(serveFlags.pipeline)
	if err != nil {
		return err
	}

	opts := []service.Option{service.WithLogger(a.logger)}
	if a.collector != nil {
		opts = append(opts, service.WithMetricsHandler(a.collector.Handler()))
	}
	if a.stats != nil {
		opts = append(opts, service.WithFeatureStats(a.stats))
	}
	if s.Store.Save {
		opts = append(opts, service.WithPersistence(a.kv))
	}
	srv, err := service.NewServer(s.Server, engine, opts...)
	if err != nil {
		return err
	}
	a.logger.Info("serving", zap.String("addr", s.Server.Addr), zap.Strings("models", a.registry.ModelNames()))
	return srv.Start(ctx)
}
