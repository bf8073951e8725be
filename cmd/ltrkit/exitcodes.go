package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/rushteam/ltrkit/core"
)

const (
	ExitSuccess     = 0
	ExitError       = 1 // 运行时错误
	ExitConfigError = 2 // 配置或定义错误
	ExitBadRequest  = 3 // 请求参数错误
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ee):
		return ee.code
	case core.IsBadRequest(err):
		return ExitBadRequest
	case core.IsConfigError(err):
		return ExitConfigError
	default:
		return ExitError
	}
}

func newJSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}
