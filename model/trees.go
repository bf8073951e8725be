package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/pkg/conv"
)

// MultipleAdditiveTrees 加法树模型（如 LambdaMART 导出）：score = Σ weight_t * leaf_t(x)。
//
// 参数格式：
//
//	trees:
//	  - weight: 1
//	    root:
//	      feature: price
//	      threshold: 10
//	      left:  {value: 0.5}   # x <= threshold
//	      right: {value: 1.5}
type MultipleAdditiveTrees struct {
	Trees []*Tree
}

// Tree 是带权重的回归树
type Tree struct {
	Weight float64
	Root   *TreeNode
}

// TreeNode 是树节点：Feature 非空为分裂节点，否则为叶子
type TreeNode struct {
	Feature   string
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Value     float64

	index int
}

func (n *TreeNode) isLeaf() bool { return n.Feature == "" }

func newTrees(m *Model) (Algorithm, error) {
	raw, ok := m.Params()["trees"].([]any)
	if !ok || len(raw) == 0 {
		return nil, core.ConfigErrorf(core.ModuleModel, "model %s: trees must be a non-empty list", m.Name())
	}
	idx := make(map[string]int, m.NumFeatures())
	for i, name := range m.FeatureNames() {
		idx[name] = i
	}
	t := &MultipleAdditiveTrees{}
	for i, r := range raw {
		tm, ok := r.(map[string]any)
		if !ok {
			return nil, core.ConfigErrorf(core.ModuleModel, "model %s: tree %d is not a map", m.Name(), i)
		}
		root, ok := tm["root"].(map[string]any)
		if !ok {
			return nil, core.ConfigErrorf(core.ModuleModel, "model %s: tree %d has no root", m.Name(), i)
		}
		node, err := parseNode(root, idx)
		if err != nil {
			return nil, core.WrapDomainError(core.ModuleModel, core.ErrorCodeInternalError, err, "model %s: tree %d", m.Name(), i)
		}
		t.Trees = append(t.Trees, &Tree{
			Weight: conv.ConfigGetFloat64(tm, "weight", 1),
			Root:   node,
		})
	}
	return t, nil
}

func parseNode(raw map[string]any, idx map[string]int) (*TreeNode, error) {
	if name, ok := raw["feature"].(string); ok && name != "" {
		i, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("feature %s is not a model feature", name)
		}
		th, ok := conv.ToFloat64(raw["threshold"])
		if !ok {
			return nil, fmt.Errorf("split on %s has no threshold", name)
		}
		left, ok := raw["left"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("split on %s has no left child", name)
		}
		right, ok := raw["right"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("split on %s has no right child", name)
		}
		n := &TreeNode{Feature: name, Threshold: th, index: i}
		var err error
		if n.Left, err = parseNode(left, idx); err != nil {
			return nil, err
		}
		if n.Right, err = parseNode(right, idx); err != nil {
			return nil, err
		}
		return n, nil
	}
	v, ok := conv.ToFloat64(raw["value"])
	if !ok {
		return nil, fmt.Errorf("leaf has no value")
	}
	return &TreeNode{Value: v}, nil
}

func (t *MultipleAdditiveTrees) Validate(m *Model) error {
	if len(t.Trees) == 0 {
		return core.ConfigErrorf(core.ModuleModel, "model %s: no trees", m.Name())
	}
	for i, tree := range t.Trees {
		if tree.Root == nil {
			return core.ConfigErrorf(core.ModuleModel, "model %s: tree %d has no root", m.Name(), i)
		}
	}
	return nil
}

func (tree *Tree) leaf(values []float64) *TreeNode {
	n := tree.Root
	for !n.isLeaf() {
		if values[n.index] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n
}

func (t *MultipleAdditiveTrees) Score(values []float64) float64 {
	score := 0.0
	for _, tree := range t.Trees {
		score += tree.Weight * tree.leaf(values).Value
	}
	return score
}

func (t *MultipleAdditiveTrees) Explain(m *Model, score float64, features []*core.Explanation) *core.Explanation {
	values := make([]float64, len(features))
	for i, fe := range features {
		values[i] = fe.Value
	}
	root := core.NewExplanation(score, fmt.Sprintf("%s model, sum of:", m.Type()))
	for i, tree := range t.Trees {
		var path []string
		n := tree.Root
		for !n.isLeaf() {
			v := values[n.index]
			if v <= n.Threshold {
				path = append(path, fmt.Sprintf("'%s':%g <= %g", n.Feature, v, n.Threshold))
				n = n.Left
			} else {
				path = append(path, fmt.Sprintf("'%s':%g > %g", n.Feature, v, n.Threshold))
				n = n.Right
			}
		}
		desc := "tree " + strconv.Itoa(i) + " | weight(" + strconv.FormatFloat(tree.Weight, 'g', -1, 64) +
			") * leaf(" + strconv.FormatFloat(n.Value, 'g', -1, 64) + ")"
		if len(path) > 0 {
			desc += ", path: " + strings.Join(path, ", ")
		}
		root.AddDetail(core.NewExplanation(tree.Weight*n.Value, desc))
	}
	return root
}
