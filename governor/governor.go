// Package governor 限制重排时并发执行的特征抽取任务数。
//
// 每个任务需要同时占用一个全局槽位（MaxThreads）和一个本次查询的槽位（MaxQueryThreads），
// 获取槽位最多等待 AcquireTimeout，超时则在调用方协程内同步执行，不会无限阻塞。
// nil *Governor 是合法值：所有任务同步执行。
package governor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rushteam/ltrkit/core"
)

// Config 并发控制配置
type Config struct {
	// MaxThreads 全进程同时执行的任务上限
	MaxThreads int `koanf:"max_threads" yaml:"max_threads" json:"max_threads"`
	// MaxQueryThreads 单次查询同时执行的任务上限
	MaxQueryThreads int `koanf:"max_query_threads" yaml:"max_query_threads" json:"max_query_threads"`
	// AcquireTimeout 获取槽位的最长等待，<= 0 表示只尝试一次
	AcquireTimeout time.Duration `koanf:"acquire_timeout" yaml:"acquire_timeout" json:"acquire_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxThreads:      8,
		MaxQueryThreads: 4,
		AcquireTimeout:  50 * time.Millisecond,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.MaxThreads <= 0 {
		return core.ConfigErrorf(core.ModuleGovernor, "max_threads must be > 0, got %d", c.MaxThreads)
	}
	if c.MaxQueryThreads <= 0 || c.MaxQueryThreads > c.MaxThreads {
		return core.ConfigErrorf(core.ModuleGovernor, "max_query_threads must be in [1, %d], got %d", c.MaxThreads, c.MaxQueryThreads)
	}
	return nil
}

// Task 是一个可调度的任务
type Task func(ctx context.Context) error

// 任务执行方式
const (
	ModePool   = "pool"
	ModeInline = "inline"
)

// Observer 观察调度事件，实现需并发安全
type Observer interface {
	ObserveTask(mode string, d time.Duration, err error)
	ObserveAcquireTimeout()
	ObserveSkipped(n int)
}

// Stats 是调度计数快照
type Stats struct {
	Pooled          int64
	Inline          int64
	AcquireTimeouts int64
	Skipped         int64
	Panics          int64
	Active          int64
}

// Governor 持有全局槽位与协程池，可被多个查询并发使用。
type Governor struct {
	cfg      Config
	slots    *semaphore.Weighted
	pool     *ants.Pool
	logger   *zap.Logger
	observer Observer

	pooled   atomic.Int64
	inline   atomic.Int64
	timeouts atomic.Int64
	skipped  atomic.Int64
	panics   atomic.Int64
	active   atomic.Int64
}

// Option 配置 Governor
type Option func(*Governor)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(g *Governor) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithObserver 设置调度观察者（如 metrics.Collector）
func WithObserver(o Observer) Option {
	return func(g *Governor) { g.observer = o }
}

// New 创建 Governor，使用完毕需调用 Close。
func New(cfg Config, opts ...Option) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// 槽位由信号量控制，池只负责复用协程
	pool, err := ants.NewPool(cfg.MaxThreads*2, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	g := &Governor{
		cfg:    cfg,
		slots:  semaphore.NewWeighted(int64(cfg.MaxThreads)),
		pool:   pool,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config 返回配置
func (g *Governor) Config() Config { return g.cfg }

// Close 释放协程池
func (g *Governor) Close() {
	if g == nil {
		return
	}
	g.pool.Release()
}

// Stats 返回计数快照
func (g *Governor) Stats() Stats {
	if g == nil {
		return Stats{}
	}
	return Stats{
		Pooled:          g.pooled.Load(),
		Inline:          g.inline.Load(),
		AcquireTimeouts: g.timeouts.Load(),
		Skipped:         g.skipped.Load(),
		Panics:          g.panics.Load(),
		Active:          g.active.Load(),
	}
}

// Run 执行一次查询的所有任务并等待完成，返回第一个错误。
//
// 任务出错或 ctx 取消后不再调度新任务，已开始的任务会执行完。
// ctx 取消时返回 ctx.Err()。
func (g *Governor) Run(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if g == nil {
		return runInline(ctx, tasks)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	fail := func(err error) {
		once.Do(func() {
			first = err
			cancel()
		})
	}

	perQuery := semaphore.NewWeighted(int64(g.cfg.MaxQueryThreads))
	for i, task := range tasks {
		if ctx.Err() != nil {
			g.skip(len(tasks) - i)
			break
		}
		release, ok := g.acquire(ctx, perQuery)
		if !ok {
			if ctx.Err() != nil {
				g.skip(len(tasks) - i)
				break
			}
			g.timeouts.Add(1)
			if g.observer != nil {
				g.observer.ObserveAcquireTimeout()
			}
			g.logger.Warn("no free slot, running task on caller",
				zap.Duration("acquire_timeout", g.cfg.AcquireTimeout),
				zap.Int("task", i))
			if err := g.exec(ctx, ModeInline, task); err != nil {
				fail(err)
			}
			continue
		}

		wg.Add(1)
		err := g.pool.Submit(func() {
			defer wg.Done()
			defer release()
			if err := g.exec(ctx, ModePool, task); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			release()
			g.logger.Warn("submit to pool failed, running task on caller", zap.Error(err))
			if err := g.exec(ctx, ModeInline, task); err != nil {
				fail(err)
			}
		}
	}
	wg.Wait()

	if first != nil {
		return first
	}
	return parent.Err()
}

func (g *Governor) acquire(ctx context.Context, perQuery *semaphore.Weighted) (func(), bool) {
	if g.cfg.AcquireTimeout <= 0 {
		if !g.slots.TryAcquire(1) {
			return nil, false
		}
		if !perQuery.TryAcquire(1) {
			g.slots.Release(1)
			return nil, false
		}
	} else {
		actx, cancel := context.WithTimeout(ctx, g.cfg.AcquireTimeout)
		defer cancel()
		if err := g.slots.Acquire(actx, 1); err != nil {
			return nil, false
		}
		if err := perQuery.Acquire(actx, 1); err != nil {
			g.slots.Release(1)
			return nil, false
		}
	}
	g.active.Add(1)
	return func() {
		g.active.Add(-1)
		perQuery.Release(1)
		g.slots.Release(1)
	}, true
}

func (g *Governor) skip(n int) {
	g.skipped.Add(int64(n))
	if g.observer != nil {
		g.observer.ObserveSkipped(n)
	}
}

func (g *Governor) exec(ctx context.Context, mode string, task Task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			g.panics.Add(1)
			err = fmt.Errorf("task panic: %v", r)
		}
		if mode == ModePool {
			g.pooled.Add(1)
		} else {
			g.inline.Add(1)
		}
		if g.observer != nil {
			g.observer.ObserveTask(mode, time.Since(start), err)
		}
	}()
	return task(ctx)
}

func runInline(ctx context.Context, tasks []Task) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := task(ctx); err != nil {
			return err
		}
	}
	return nil
}
