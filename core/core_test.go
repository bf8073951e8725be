package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Checks(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		badRequest   bool
		notFound     bool
		notSupported bool
		config       bool
	}{
		{"bad request", BadRequestf(ModuleRerank, "Must rerank at least 1 document"), true, false, false, false},
		{"not found", NewDomainError(ModuleModel, ErrorCodeNotFound, "cannot find model m1"), false, true, false, false},
		{"not supported", NotSupportedf(ModuleSearch, "intervals"), false, false, true, false},
		{"config", ConfigErrorf(ModuleModel, "weights mismatch"), false, false, false, true},
		{"wrapped", fmt.Errorf("bind: %w", ConfigErrorf(ModuleModel, "weights mismatch")), false, false, false, true},
		{"plain", errors.New("boom"), false, false, false, false},
		{"nil", nil, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.badRequest, IsBadRequest(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, tt.notSupported, IsNotSupported(tt.err))
			assert.Equal(t, tt.config, IsConfigError(tt.err))
		})
	}
}

func TestDomainError_IsAndUnwrap(t *testing.T) {
	cause := errors.New("redis down")
	err := WrapDomainError(ModuleStore, ErrorCodeUnavailable, cause, "load model %s", "m1")

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, "load model m1: redis down", err.Error())

	unsupported := NotSupportedf(ModuleRerank, "intervals are not supported")
	assert.ErrorIs(t, unsupported, ErrNotSupported)
	assert.NotErrorIs(t, BadRequestf(ModuleRerank, "x"), ErrNotSupported)
}

func TestExtractEFI(t *testing.T) {
	efi := ExtractEFI(map[string]string{
		"model":       "m1",
		"efi.user":    "u1",
		"efi.w":       "1,2,3",
		"efi.":        "ignored",
		"reRankDocs":  "10",
	}, EFIPrefix)

	require.Len(t, efi, 2)
	assert.Equal(t, "u1", efi["user"])
	assert.Equal(t, "1,2,3", efi["w"])

	clone := efi.Clone()
	clone["user"] = "u2"
	v, ok := efi.Get("user")
	assert.True(t, ok)
	assert.Equal(t, "u1", v)
}

func TestExplanation_String(t *testing.T) {
	root := NewExplanation(3, "linear model, sum of:")
	root.AddDetail(NewExplanation(1, "weight(1) * f1(1)"))
	root.AddDetail(NewExplanation(2, "weight(2) * f2(1)"))
	root.AddDetail(nil)

	lines := strings.Split(strings.TrimSpace(root.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "3 = linear model, sum of:", lines[0])
	assert.Equal(t, "  2 = weight(2) * f2(1)", lines[2])
}

func TestRequestContext_Values(t *testing.T) {
	var nilCtx *RequestContext
	_, ok := nilCtx.Value("k")
	assert.False(t, ok)

	rctx := &RequestContext{}
	_, ok = rctx.Value("k")
	assert.False(t, ok)

	rctx.SetValue("k", 1)
	rctx.SetValue("k", 2)
	v, ok := rctx.Value("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}
