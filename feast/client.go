// Package feast 封装 Feast Feature Store 的在线特征读取，供 feast 类型的特征使用。
package feast

import (
	"context"
	"time"
)

// Client 是 Feast Feature Store 的在线读取接口。
//
// 实现：
//   - GrpcClient：基于官方 SDK (github.com/feast-dev/feast/sdk/go)
//   - MemoryClient：内存实现，用于测试与离线回放
//
// 参考：https://github.com/feast-dev/feast
type Client interface {
	// GetOnlineFeatures 获取在线特征
	//
	// 参数：
	//   - Features: 特征引用列表，例如 ["doc_stats:ctr", "doc_stats:freshness"]
	//   - EntityRows: 实体行，例如 [{"doc_id": "d1"}, {"doc_id": "d2"}]
	//
	// 返回的 FeatureVectors 与 EntityRows 一一对应。
	GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error)

	// Close 关闭客户端连接
	Close() error
}

// GetOnlineFeaturesRequest 获取在线特征请求
type GetOnlineFeaturesRequest struct {
	Features   []string
	EntityRows []map[string]any
	Project    string // 可选，为空使用客户端默认项目
}

// GetOnlineFeaturesResponse 获取在线特征响应
type GetOnlineFeaturesResponse struct {
	FeatureVectors []FeatureVector
}

// FeatureVector 是一个实体行对应的特征值；缺失的特征不出现在 Values 中。
type FeatureVector struct {
	Values    map[string]any
	EntityRow map[string]any
}

// ClientOption Feast 客户端配置选项
type ClientOption func(*ClientConfig)

// ClientConfig Feast 客户端配置
type ClientConfig struct {
	Endpoint string
	Project  string
	Timeout  time.Duration
	Auth     *AuthConfig
}

// AuthConfig 认证配置，目前仅支持 static（gRPC 静态 Token）
type AuthConfig struct {
	Type  string
	Token string
	TLS   bool
}

// WithTimeout 配置选项：设置单次请求超时
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithAuth 配置选项：设置认证信息
func WithAuth(auth *AuthConfig) ClientOption {
	return func(c *ClientConfig) {
		c.Auth = auth
	}
}
