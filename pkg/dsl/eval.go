package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("efi", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("score", cel.DoubleType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Program 是编译后的特征表达式，使用 CEL (Common Expression Language) 实现。
// 编译一次，可在多个 segment / 文档上并发求值。
//
// 可用变量：
//   - doc：文档字段（文本字段为 string，数值字段为 double）
//   - efi：请求级外部特征输入（string）
//   - score：首轮检索分数
//
// 示例：
//   - `doc.price * 0.01`
//   - `"price" in doc ? doc.price : 0.0`
//   - `double(efi.user_age) / 100.0`
//   - `doc.category == efi.category ? 1.0 : 0.0`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式
func Compile(expr string) (*Program, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (p *Program) String() string { return p.expr }

// Input 是一次求值的输入
type Input struct {
	Doc   map[string]any
	EFI   map[string]string
	Score float64
}

// EvalFloat 求值并把结果转为 float64；支持 double、int、uint、bool 结果。
func (p *Program) EvalFloat(in Input) (float64, error) {
	doc := in.Doc
	if doc == nil {
		doc = map[string]any{}
	}
	efi := in.EFI
	if efi == nil {
		efi = map[string]string{}
	}
	out, _, err := p.prg.Eval(map[string]any{
		"doc":   doc,
		"efi":   efi,
		"score": in.Score,
	})
	if err != nil {
		// 访问不存在的 key 会报错，表达式应使用 `"key" in doc` 判断存在性
		return 0, fmt.Errorf("eval error: %w", err)
	}
	switch v := out.(type) {
	case types.Double:
		return float64(v), nil
	case types.Int:
		return float64(v), nil
	case types.Uint:
		return float64(v), nil
	case types.Bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expression must return a number, got %s", out.Type().TypeName())
	}
}
