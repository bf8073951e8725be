package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{float32(2), 2, true},
		{3, 3, true},
		{int64(4), 4, true},
		{" 5.5 ", 5.5, true},
		{true, 1, true},
		{"x", 0, false},
		{nil, 0, false},
		{[]int{1}, 0, false},
	}
	for _, tt := range tests {
		got, ok := ToFloat64(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestSliceAnyToFloat64(t *testing.T) {
	got, err := SliceAnyToFloat64([]any{1, 2.5, "3"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, 3}, got)

	_, err = SliceAnyToFloat64([]any{1, "x"})
	assert.ErrorContains(t, err, "element 1")
	_, err = SliceAnyToFloat64("1,2")
	assert.Error(t, err)
}

func TestSliceAnyToString(t *testing.T) {
	assert.Equal(t, []string{"a", "2", "0.5"}, SliceAnyToString([]any{"a", 2, 0.5, nil}))
	assert.Equal(t, []string{"x"}, SliceAnyToString([]string{"x"}))
	assert.Nil(t, SliceAnyToString(3))
}

func TestParseFloatList(t *testing.T) {
	got, err := ParseFloatList("1.4, 0.312,0.1")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.4, 0.312, 0.1}, got)

	_, err = ParseFloatList("1,,2")
	assert.Error(t, err)
}

func TestConfigGet(t *testing.T) {
	m := map[string]any{"s": "v", "n": 3, "f": 1.5, "b": true}
	assert.Equal(t, "v", ConfigGet(m, "s", ""))
	assert.Equal(t, "d", ConfigGet(m, "n", "d"))
	assert.True(t, ConfigGet(m, "b", false))
	assert.Equal(t, 3.0, ConfigGetFloat64(m, "n", 0))
	assert.Equal(t, 9.0, ConfigGetFloat64(nil, "n", 9))
	assert.Equal(t, int64(1), ConfigGetInt64(m, "f", 0))
	assert.Equal(t, int64(7), ConfigGetInt64(m, "s", 7))
}
