package core

import "time"

// 请求参数名与默认值。
const (
	ParamModel        = "model"
	ParamRerankDocs   = "reRankDocs"
	ParamFeatureStore = "fs"
	EFIPrefix         = "efi."

	DefaultFeatureStore = "_DEFAULT_"
)

// RerankConfig 是重排相关的配置接口，用于提供默认值。
type RerankConfig interface {
	// DefaultRerankDocs 返回默认的重排深度
	DefaultRerankDocs() int

	// DefaultFeatureStore 返回默认的特征库名称
	DefaultFeatureStore() string

	// DefaultAcquireTimeout 返回并发槽位的默认等待时间
	DefaultAcquireTimeout() time.Duration
}

// DefaultRerankConfig 是默认的重排配置实现。
type DefaultRerankConfig struct{}

func (c *DefaultRerankConfig) DefaultRerankDocs() int {
	return 200
}

func (c *DefaultRerankConfig) DefaultFeatureStore() string {
	return DefaultFeatureStore
}

func (c *DefaultRerankConfig) DefaultAcquireTimeout() time.Duration {
	return 50 * time.Millisecond
}
