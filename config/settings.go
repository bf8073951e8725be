// Package config 加载运行时配置并以配置驱动的方式组装 pipeline。
//
// 配置优先级（高到低）：
//  1. 环境变量 LTRKIT_*（"__" 表示层级，如 LTRKIT_GOVERNOR__MAX_THREADS -> governor.max_threads）
//  2. YAML 配置文件
//  3. DefaultSettings
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/governor"
	"github.com/rushteam/ltrkit/pkg/logging"
	"github.com/rushteam/ltrkit/service"
	"github.com/rushteam/ltrkit/store"
)

// EnvPrefix 是环境变量前缀
const EnvPrefix = "LTRKIT_"

const maxSettingsFileSize = 1 << 20

// Settings 是进程级运行时配置
type Settings struct {
	Log      logging.Config  `koanf:"log"`
	Governor governor.Config `koanf:"governor"`
	Rerank   RerankSettings  `koanf:"rerank"`
	Store    StoreSettings   `koanf:"store"`
	Feast    FeastSettings   `koanf:"feast"`
	Index    IndexSettings   `koanf:"index"`
	Metrics  MetricsSettings `koanf:"metrics"`
	Server   service.Config  `koanf:"server"`

	// Definitions 特征库与模型定义文件（yaml / json）
	Definitions string `koanf:"definitions"`
	// Pipeline 可选的 pipeline 配置文件
	Pipeline string `koanf:"pipeline"`
}

// RerankSettings 是重排默认值
type RerankSettings struct {
	DefaultDepth int    `koanf:"default_depth"`
	FeatureStore string `koanf:"feature_store"`
	// FeatureLog 非空时把特征向量以 CSV 追加到该文件
	FeatureLog string `koanf:"feature_log"`
	// FeatureStats > 0 时启用内存特征统计，每个特征保留该数量的样本
	FeatureStats int `koanf:"feature_stats"`
}

// StoreSettings 选择定义持久化与 kv 特征使用的存储
type StoreSettings struct {
	Type  string            `koanf:"type"` // memory / redis
	Redis store.RedisConfig `koanf:"redis"`
	// Restore 启动时从存储恢复定义，Save 在加载定义文件后写回存储
	Restore bool `koanf:"restore"`
	Save    bool `koanf:"save"`
}

// FeastSettings 非空 Endpoint 时启用 feast 特征类型
type FeastSettings struct {
	Endpoint string        `koanf:"endpoint"`
	Project  string        `koanf:"project"`
	Timeout  time.Duration `koanf:"timeout"`
	Token    string        `koanf:"token"`
	TLS      bool          `koanf:"tls"`
}

// IndexSettings 是内存索引的加载方式
type IndexSettings struct {
	// Path JSON 语料文件：文档数组
	Path         string `koanf:"path"`
	SegmentSize  int    `koanf:"segment_size"`
	DefaultField string `koanf:"default_field"`
}

// MetricsSettings 是 Prometheus 指标配置，启用后由 serve 在 /metrics 暴露
type MetricsSettings struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
}

// DefaultSettings 返回默认配置
func DefaultSettings() *Settings {
	return &Settings{
		Log:      logging.DefaultConfig(),
		Governor: governor.DefaultConfig(),
		Rerank: RerankSettings{
			DefaultDepth: (&core.DefaultRerankConfig{}).DefaultRerankDocs(),
			FeatureStore: core.DefaultFeatureStore,
		},
		Store:   StoreSettings{Type: "memory"},
		Feast:   FeastSettings{Timeout: time.Second},
		Index:   IndexSettings{SegmentSize: 1000, DefaultField: "text"},
		Metrics: MetricsSettings{Namespace: "ltrkit"},
		Server:  service.DefaultConfig(),
	}
}

var _ core.RerankConfig = (*Settings)(nil)

func (s *Settings) DefaultRerankDocs() int { return s.Rerank.DefaultDepth }

func (s *Settings) DefaultFeatureStore() string { return s.Rerank.FeatureStore }

func (s *Settings) DefaultAcquireTimeout() time.Duration { return s.Governor.AcquireTimeout }

// Validate 校验配置
func (s *Settings) Validate() error {
	if s.Rerank.DefaultDepth <= 0 {
		return fmt.Errorf("rerank.default_depth must be > 0, got %d", s.Rerank.DefaultDepth)
	}
	if s.Rerank.FeatureStats < 0 {
		return fmt.Errorf("rerank.feature_stats must be >= 0, got %d", s.Rerank.FeatureStats)
	}
	if err := s.Governor.Validate(); err != nil {
		return err
	}
	switch s.Store.Type {
	case "memory":
	case "redis":
		if s.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for redis store")
		}
	default:
		return fmt.Errorf("store.type must be memory or redis, got %q", s.Store.Type)
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		return err
	}
	return nil
}

// envKey 把 LTRKIT_GOVERNOR__MAX_THREADS 映射为 governor.max_threads
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// LoadSettings 读取 YAML 配置（path 为空时跳过），再用环境变量覆盖。
func LoadSettings(path string) (*Settings, error) {
	var data []byte
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat settings file: %w", err)
		}
		if info.Size() > maxSettingsFileSize {
			return nil, fmt.Errorf("settings file %s is larger than %d bytes", path, maxSettingsFileSize)
		}
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
	}
	return ParseSettings(data)
}

// ParseSettings 解析 YAML 配置并用环境变量覆盖
func ParseSettings(data []byte) (*Settings, error) {
	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	s := DefaultSettings()
	if err := k.Unmarshal("", s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
