package norm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/ltrkit/core"
)

func TestNormalize(t *testing.T) {
	standard, err := NewStandard(10, 2)
	require.NoError(t, err)
	minmax, err := NewMinMax(0, 4)
	require.NoError(t, err)

	tests := []struct {
		name string
		n    Normalizer
		in   float64
		want float64
	}{
		{"identity", Identity, 3.5, 3.5},
		{"standard", standard, 14, 2},
		{"minmax", minmax, 1, 0.25},
		{"log1p", Log1p{}, math.E - 1, 1},
		{"log1p negative", Log1p{}, -3, 0},
		{"sqrt", Sqrt{}, 9, 3},
		{"sqrt negative", Sqrt{}, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.n.Normalize(tt.in), 1e-9)
		})
	}
}

func TestIdentity_NoExplanationLayer(t *testing.T) {
	e := core.NewExplanation(2, "f1")
	assert.Same(t, e, Identity.Explain(e))
	assert.True(t, IsIdentity(Identity))
	assert.True(t, IsIdentity(nil))
}

func TestStandard_Explain(t *testing.T) {
	n, err := NewStandard(1, 2)
	require.NoError(t, err)
	e := n.Explain(core.NewExplanation(5, "f1"))
	assert.Equal(t, 2.0, e.Value)
	assert.Equal(t, "standard normalizer (avg=1, std=2)", e.Description)
	require.Len(t, e.Details, 1)
	assert.Equal(t, "f1", e.Details[0].Description)
}

func TestNew(t *testing.T) {
	n, err := New("", nil)
	require.NoError(t, err)
	assert.Equal(t, Identity, n)

	n, err = New(TypeStandard, map[string]any{"avg": 1, "std": 0.5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"avg": 1.0, "std": 0.5}, n.Params())

	_, err = New(TypeStandard, map[string]any{"std": 0})
	assert.True(t, core.IsConfigError(err))

	_, err = New(TypeMinMax, map[string]any{"min": 3, "max": 3})
	assert.True(t, core.IsConfigError(err))

	_, err = New("zscore2", nil)
	assert.True(t, core.IsConfigError(err))
}

func TestRegister(t *testing.T) {
	Register("negate", func(map[string]any) (Normalizer, error) { return negate{}, nil })
	assert.Contains(t, Types(), "negate")

	n, err := Spec{Type: "negate"}.Build()
	require.NoError(t, err)
	assert.Equal(t, -2.0, n.Normalize(2))
	assert.Equal(t, Spec{Type: "negate"}, Describe(n))
}

type negate struct{}

func (negate) Type() string                                  { return "negate" }
func (negate) Params() map[string]any                        { return nil }
func (negate) Normalize(v float64) float64                   { return -v }
func (negate) Explain(e *core.Explanation) *core.Explanation { return e }
