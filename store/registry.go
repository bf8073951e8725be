package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/model"
)

// 持久化定义使用的 hash key
const (
	FeatureStoresKey = "ltr:feature-stores"
	ModelsKey        = "ltr:models"
)

// StoreDefinition 是一个特征库的可序列化定义
type StoreDefinition struct {
	Name     string               `json:"name" yaml:"name"`
	Features []feature.Definition `json:"features" yaml:"features"`
}

// Definitions 是一份完整的定义文件：先特征库，后模型。
type Definitions struct {
	FeatureStores []StoreDefinition `json:"feature_stores" yaml:"feature_stores"`
	Models        []model.Config    `json:"models" yaml:"models"`
}

// ParseDefinitions 按格式（yaml / json）解析定义
func ParseDefinitions(data []byte, format string) (*Definitions, error) {
	var defs Definitions
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &defs); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal(data, &defs); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown definitions format %q", format)
	}
	return &defs, nil
}

// LoadDefinitions 按扩展名读取定义文件
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseDefinitions(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Registry 按名称持有特征库与模型，实现重排的 Resolver。
// 已注册的定义不可变，替换只影响之后解析的请求。
type Registry struct {
	mu       sync.RWMutex
	deps     feature.Deps
	logger   *zap.Logger
	stores   map[string]*feature.Store
	storeDef map[string]StoreDefinition
	models   map[string]*model.Model
	modelDef map[string]model.Config
}

// RegistryOption 配置 Registry
type RegistryOption func(*Registry)

// WithDeps 设置 kv / feast 等特征类型的外部依赖
func WithDeps(d feature.Deps) RegistryOption {
	return func(r *Registry) { r.deps = d }
}

// WithRegistryLogger 设置日志
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:   zap.NewNop(),
		stores:   make(map[string]*feature.Store),
		storeDef: make(map[string]StoreDefinition),
		models:   make(map[string]*model.Model),
		modelDef: make(map[string]model.Config),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func storeName(name string) string {
	if name == "" {
		return core.DefaultFeatureStore
	}
	return name
}

func notFoundf(format string, args ...any) error {
	return core.NewDomainError(core.ModuleStore, core.ErrorCodeNotFound, fmt.Sprintf(format, args...))
}

// AddFeatureStore 构建并注册特征库。同名特征库已被模型引用时拒绝替换。
func (r *Registry) AddFeatureStore(def StoreDefinition) error {
	def.Name = storeName(def.Name)
	st, err := feature.BuildStore(def.Name, def.Features, r.deps)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[def.Name]; ok {
		if users := r.modelsOf(def.Name); len(users) > 0 {
			return core.ConfigErrorf(core.ModuleStore, "feature store %s is used by models %v", def.Name, users)
		}
	}
	r.stores[def.Name] = st
	r.storeDef[def.Name] = def
	r.logger.Info("feature store registered", zap.String("store", def.Name), zap.Int("features", st.Len()))
	return nil
}

// AddModel 基于已注册的特征库构建并注册模型，同名模型被替换。
func (r *Registry) AddModel(cfg model.Config) error {
	name := storeName(cfg.Store)
	r.mu.RLock()
	st, ok := r.stores[name]
	r.mu.RUnlock()
	if !ok {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeInternalError,
			notFoundf("feature store %s not found", name), "model %s", cfg.Name)
	}
	m, err := model.New(cfg, st)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, replaced := r.models[cfg.Name]; replaced {
		r.logger.Info("model replaced", zap.String("model", cfg.Name))
	}
	r.models[cfg.Name] = m
	r.modelDef[cfg.Name] = cfg
	r.logger.Info("model registered",
		zap.String("model", cfg.Name),
		zap.String("type", m.Type()),
		zap.String("store", name),
		zap.Int("features", m.NumFeatures()))
	return nil
}

// Load 注册一份定义：先全部特征库，再全部模型。
func (r *Registry) Load(defs *Definitions) error {
	for _, sd := range defs.FeatureStores {
		if err := r.AddFeatureStore(sd); err != nil {
			return err
		}
	}
	for _, mc := range defs.Models {
		if err := r.AddModel(mc); err != nil {
			return err
		}
	}
	return nil
}

// RemoveModel 删除模型，不存在时返回 NOT_FOUND
func (r *Registry) RemoveModel(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[name]; !ok {
		return notFoundf("model %s not found", name)
	}
	delete(r.models, name)
	delete(r.modelDef, name)
	return nil
}

// RemoveFeatureStore 删除特征库，仍被模型引用时拒绝
func (r *Registry) RemoveFeatureStore(name string) error {
	name = storeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[name]; !ok {
		return notFoundf("feature store %s not found", name)
	}
	if users := r.modelsOf(name); len(users) > 0 {
		return core.ConfigErrorf(core.ModuleStore, "feature store %s is used by models %v", name, users)
	}
	delete(r.stores, name)
	delete(r.storeDef, name)
	return nil
}

// modelsOf 返回引用特征库的模型名，调用方持有锁
func (r *Registry) modelsOf(store string) []string {
	var out []string
	for name, m := range r.models {
		if m.FeatureStoreName() == store {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Model 按名称解析模型
func (r *Registry) Model(name string) (*model.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, notFoundf("model %s not found", name)
	}
	return m, nil
}

// FeatureStore 按名称解析特征库，空名称为默认特征库
func (r *Registry) FeatureStore(name string) (*feature.Store, error) {
	name = storeName(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stores[name]
	if !ok {
		return nil, notFoundf("feature store %s not found", name)
	}
	return st, nil
}

// ModelNames 返回已注册模型名（有序）
func (r *Registry) ModelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StoreNames 返回已注册特征库名（有序）
func (r *Registry) StoreNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.stores))
	for name := range r.stores {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions 导出当前全部定义（按名称排序）
func (r *Registry) Definitions() *Definitions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := &Definitions{}
	for _, name := range sortedKeys(r.storeDef) {
		defs.FeatureStores = append(defs.FeatureStores, r.storeDef[name])
	}
	for _, name := range sortedKeys(r.modelDef) {
		defs.Models = append(defs.Models, r.modelDef[name])
	}
	return defs
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Save 把全部定义以 JSON 写入 kv 的两个 hash 中
func (r *Registry) Save(ctx context.Context, kv core.KeyValueStore) error {
	defs := r.Definitions()
	for _, sd := range defs.FeatureStores {
		data, err := json.Marshal(sd)
		if err != nil {
			return fmt.Errorf("encode feature store %s: %w", sd.Name, err)
		}
		if err := kv.HSet(ctx, FeatureStoresKey, sd.Name, data); err != nil {
			return fmt.Errorf("save feature store %s: %w", sd.Name, err)
		}
	}
	for _, mc := range defs.Models {
		data, err := json.Marshal(mc)
		if err != nil {
			return fmt.Errorf("encode model %s: %w", mc.Name, err)
		}
		if err := kv.HSet(ctx, ModelsKey, mc.Name, data); err != nil {
			return fmt.Errorf("save model %s: %w", mc.Name, err)
		}
	}
	r.logger.Info("definitions saved",
		zap.String("backend", kv.Name()),
		zap.Int("stores", len(defs.FeatureStores)),
		zap.Int("models", len(defs.Models)))
	return nil
}

// Restore 从 kv 读取 Save 写入的定义并注册
func (r *Registry) Restore(ctx context.Context, kv core.KeyValueStore) error {
	defs, err := ReadDefinitions(ctx, kv)
	if err != nil {
		return err
	}
	return r.Load(defs)
}

// ReadDefinitions 从 kv 读取全部定义（按名称排序）
func ReadDefinitions(ctx context.Context, kv core.KeyValueStore) (*Definitions, error) {
	rawStores, err := kv.HGetAll(ctx, FeatureStoresKey)
	if err != nil {
		return nil, fmt.Errorf("read feature stores: %w", err)
	}
	rawModels, err := kv.HGetAll(ctx, ModelsKey)
	if err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}

	defs := &Definitions{}
	for _, name := range sortedKeys(rawStores) {
		var sd StoreDefinition
		if err := json.Unmarshal(rawStores[name], &sd); err != nil {
			return nil, fmt.Errorf("decode feature store %s: %w", name, err)
		}
		defs.FeatureStores = append(defs.FeatureStores, sd)
	}
	for _, name := range sortedKeys(rawModels) {
		var mc model.Config
		if err := json.Unmarshal(rawModels[name], &mc); err != nil {
			return nil, fmt.Errorf("decode model %s: %w", name, err)
		}
		defs.Models = append(defs.Models, mc)
	}
	return defs, nil
}
