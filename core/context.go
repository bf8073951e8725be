package core

import (
	"strings"

	"github.com/rushteam/ltrkit/pkg/utils"
)

// EFI (External Feature Info) 是请求级的外部特征输入，只读。
// key 为去掉 "efi." 前缀后的参数名，value 为原始字符串。
type EFI map[string]string

// Get 读取 EFI 值
func (e EFI) Get(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	v, ok := e[key]
	return v, ok
}

// Clone 返回副本，保证绑定后的模型不会被调用方后续修改影响。
func (e EFI) Clone() EFI {
	if e == nil {
		return EFI{}
	}
	out := make(EFI, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// ExtractEFI 从请求参数中抽取 prefix 开头的参数，形成 EFI。
func ExtractEFI(params map[string]string, prefix string) EFI {
	efi := make(EFI)
	for name, v := range params {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			efi[name[len(prefix):]] = v
		}
	}
	return efi
}

// RequestContext 承载一次重排请求的上下文，贯穿整个 Pipeline 透传。
type RequestContext struct {
	RequestID string

	// EFI 外部特征输入
	EFI EFI

	// Params 原始请求参数（model / reRankDocs / fs / efi.* 等）
	Params map[string]string

	// Labels 是请求级标签，可驱动 Pipeline 行为
	Labels map[string]utils.Label

	// Values 是节点之间传递的请求级对象
	Values map[string]any
}

// SetValue 写入请求级对象，同名覆盖。
func (rctx *RequestContext) SetValue(key string, v any) {
	if rctx.Values == nil {
		rctx.Values = make(map[string]any)
	}
	rctx.Values[key] = v
}

// Value 读取请求级对象。
func (rctx *RequestContext) Value(key string) (any, bool) {
	if rctx == nil || rctx.Values == nil {
		return nil, false
	}
	v, ok := rctx.Values[key]
	return v, ok
}

// PutLabel 写入请求级 Label。
func (rctx *RequestContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RequestContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
