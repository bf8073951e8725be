package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/model"
	"github.com/rushteam/ltrkit/store"
)

// Config 是 HTTP 服务配置
type Config struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{Addr: ":8080", ShutdownTimeout: 5 * time.Second}
}

// Server 提供 /rerank、模型管理与 /metrics
type Server struct {
	echo    *echo.Echo
	cfg     Config
	engine  *Engine
	kv      core.KeyValueStore
	metrics http.Handler
	stats   StatsSource
	logger  *zap.Logger
}

// StatsSource 提供特征取值统计，如 feature.MemoryFeatureMonitor
type StatsSource interface {
	Flush()
	AllFeatureStats(ctx context.Context) []*feature.FeatureStats
	GetFeatureStats(ctx context.Context, featureName string) (*feature.FeatureStats, error)
}

type Option func(*Server)

// WithMetricsHandler 在 /metrics 暴露指标
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithFeatureStats 在 /schema/feature-stats 暴露特征统计
func WithFeatureStats(src StatsSource) Option {
	return func(s *Server) { s.stats = src }
}

// WithPersistence 在管理接口修改定义后写回 kv
func WithPersistence(kv core.KeyValueStore) Option {
	return func(s *Server) { s.kv = kv }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewServer(cfg Config, engine *Engine, opts ...Option) (*Server, error) {
	if engine == nil || engine.Index == nil || engine.Parser == nil || engine.Registry == nil {
		return nil, core.ConfigErrorf(core.ModuleService, "engine requires index, parser and registry")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	s := &Server{cfg: cfg, engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	s.echo = e
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/rerank", s.handleRerank)
	s.echo.POST("/rerank", s.handleRerank)

	m := s.echo.Group("/schema")
	m.GET("/models", s.handleListModels)
	m.PUT("/models", s.handlePutModel)
	m.DELETE("/models/:name", s.handleDeleteModel)
	m.GET("/feature-stores", s.handleListStores)
	m.PUT("/feature-stores", s.handlePutStore)
	m.DELETE("/feature-stores/:name", s.handleDeleteStore)
	if s.stats != nil {
		m.GET("/feature-stats", s.handleListStats)
		m.GET("/feature-stats/:name", s.handleGetStats)
	}

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// ServeHTTP 使 Server 可以直接挂到 httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.echo.ServeHTTP(w, r) }

// Start 阻塞直到 ctx 取消，然后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.cfg.Addr))
		errCh <- s.echo.Start(s.cfg.Addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(sctx)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusOf 把领域错误映射为 HTTP 状态码
func statusOf(err error) int {
	switch {
	case core.IsBadRequest(err):
		return http.StatusBadRequest
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case core.IsNotSupported(err):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, errorResponse{Code: strconv.Itoa(he.Code), Message: msg})
		return
	}
	status := statusOf(err)
	code := core.ErrorCodeInternalError
	if de := core.GetDomainError(err); de != nil {
		code = de.Code
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}
	_ = c.JSON(status, errorResponse{Code: code, Message: err.Error()})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"models":         len(s.engine.Registry.ModelNames()),
		"reader_version": s.engine.Index.Reader().Version(),
	})
}

// handleRerank 读取 query string 与表单参数，explain=true 时附加解释
func (s *Server) handleRerank(c echo.Context) error {
	params := make(map[string]string)
	values, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	for k, v := range c.QueryParams() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	explain, _ := strconv.ParseBool(params["explain"])
	delete(params, "explain")

	resp, err := s.engine.Rerank(c.Request().Context(), &Request{
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		Params:    params,
		Explain:   explain,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Registry.Definitions().Models)
}

func (s *Server) handlePutModel(c echo.Context) error {
	var cfg model.Config
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid model definition")
	}
	if cfg.Name == "" {
		return core.BadRequestf(core.ModuleService, "model name is required")
	}
	if err := s.engine.Registry.AddModel(cfg); err != nil {
		return asBadDefinition(err)
	}
	if err := s.persist(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteModel(c echo.Context) error {
	if err := s.engine.Registry.RemoveModel(c.Param("name")); err != nil {
		return err
	}
	if s.kv != nil {
		if err := s.kv.HDel(c.Request().Context(), store.ModelsKey, c.Param("name")); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListStores(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Registry.Definitions().FeatureStores)
}

func (s *Server) handlePutStore(c echo.Context) error {
	var def store.StoreDefinition
	if err := c.Bind(&def); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid feature store definition")
	}
	if err := s.engine.Registry.AddFeatureStore(def); err != nil {
		return asBadDefinition(err)
	}
	if err := s.persist(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteStore(c echo.Context) error {
	name := c.Param("name")
	if err := s.engine.Registry.RemoveFeatureStore(name); err != nil {
		return asBadDefinition(err)
	}
	if s.kv != nil {
		if err := s.kv.HDel(c.Request().Context(), store.FeatureStoresKey, name); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// handleListStats 先刷新分布统计再返回
func (s *Server) handleListStats(c echo.Context) error {
	s.stats.Flush()
	return c.JSON(http.StatusOK, s.stats.AllFeatureStats(c.Request().Context()))
}

func (s *Server) handleGetStats(c echo.Context) error {
	s.stats.Flush()
	stats, err := s.stats.GetFeatureStats(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) persist(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	return s.engine.Registry.Save(ctx, s.kv)
}

// asBadDefinition 把定义错误作为请求错误返回，NOT_FOUND 保持不变
func asBadDefinition(err error) error {
	if core.IsConfigError(err) {
		return core.WrapDomainError(core.ModuleService, core.ErrorCodeBadRequest, err, "invalid definition")
	}
	return err
}
