package feast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryClient 是内存中的 Feast 客户端：按 (实体键, 实体值) 存放特征值。
// 用于测试、离线回放以及命令行工具。
type MemoryClient struct {
	mu     sync.RWMutex
	rows   map[string]map[string]any // "entity=value" -> feature -> value
	calls  atomic.Int64
	closed atomic.Bool
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{rows: make(map[string]map[string]any)}
}

func rowKey(entity string, value any) string {
	return fmt.Sprintf("%s=%v", entity, value)
}

// Put 写入某个实体的特征值
func (c *MemoryClient) Put(entity string, value any, features map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := rowKey(entity, value)
	row, ok := c.rows[key]
	if !ok {
		row = make(map[string]any, len(features))
		c.rows[key] = row
	}
	for k, v := range features {
		row[k] = v
	}
}

// Calls 返回 GetOnlineFeatures 的调用次数
func (c *MemoryClient) Calls() int64 { return c.calls.Load() }

func (c *MemoryClient) GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("feast memory client is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Features) == 0 {
		return nil, fmt.Errorf("features are required")
	}
	c.calls.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()
	vectors := make([]FeatureVector, len(req.EntityRows))
	for i, entityRow := range req.EntityRows {
		values := make(map[string]any)
		for entity, v := range entityRow {
			row := c.rows[rowKey(entity, v)]
			for _, name := range req.Features {
				if val, ok := row[name]; ok {
					values[name] = val
				}
			}
		}
		vectors[i] = FeatureVector{Values: values, EntityRow: entityRow}
	}
	return &GetOnlineFeaturesResponse{FeatureVectors: vectors}, nil
}

func (c *MemoryClient) Close() error {
	c.closed.Store(true)
	return nil
}

var _ Client = (*MemoryClient)(nil)
