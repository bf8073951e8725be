// Package ltrkit 是一个两阶段重排（Learning to Rank）工具包。
//
// 设计要点：
// - 首轮检索给出按分数排序的候选，只对前 reRankDocs 个候选用特征模型重新打分，其余保持首轮顺序
// - 特征库（feature store）与模型按名称注册，请求通过 model / fs / efi.* 参数选择
// - Pipeline-first: recall.query -> rerank.ltr -> rerank.topn 等 Node 串联，可由配置组装
// - Labels-first: 重排结果与特征向量通过 labels / meta 透传，支持 explain 与特征日志
package ltrkit

import (
	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pipeline"
)

// 轻量 facade：便于直接 import "ltrkit" 使用核心抽象。
type (
	Pipeline       = pipeline.Pipeline
	Node           = pipeline.Node
	Kind           = pipeline.Kind
	Item           = core.Item
	RequestContext = core.RequestContext
	Explanation    = core.Explanation
)

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
