package core

import "context"

// Store 是定义持久化与 kv 特征共用的字节存储，实现见 store.MemoryStore / store.RedisStore。
// 读取不存在的 key 返回 ErrStoreNotFound。
type Store interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 的 ttl 单位为秒，缺省不过期
	Set(ctx context.Context, key string, value []byte, ttl ...int) error
	Delete(ctx context.Context, key string) error
	// BatchGet 的结果只包含存在的 key
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Close() error
}

// KeyValueStore 在 Store 上增加 hash 操作。
// 文档级特征：key = 前缀 + 文档 ID，field = 特征字段；定义持久化：key = ltr:models 等，field = 名称。
type KeyValueStore interface {
	Store
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	// HGetAll 对不存在的 key 返回空 map
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HDel(ctx context.Context, key string, fields ...string) error
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}
