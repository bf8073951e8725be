package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/ltrkit/config"
	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/service"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitError},
		{"bad request", fmt.Errorf("wrap: %w", core.BadRequestf("rerank", "bad")), ExitBadRequest},
		{"config", core.ConfigErrorf("model", "bad weights"), ExitConfigError},
		{"explicit", &exitError{code: ExitConfigError, err: errors.New("x")}, ExitConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, exitCode(tt.err))
		})
	}
}

const cliDefinitions = `
feature_stores:
  - features:
      - name: pop
        type: field
        params: {field: pop}
      - name: boost
        type: value
        params: {value: "${boost}", required: true}
models:
  - name: plain
    type: linear
    features: [pop]
    params: {weights: [1]}
  - name: boosted
    type: linear
    features: [pop, boost]
    params: {weights: [1, 1]}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute 运行根命令并返回标准输出
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		settingsPath, definitionsPath = "", ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	defs := writeFile(t, "defs.yaml", cliDefinitions)
	out, err := execute(t, "validate", defs)
	require.NoError(t, err)

	var report validateReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{core.DefaultFeatureStore}, report.Stores)
	require.Len(t, report.Models, 2)
	assert.Equal(t, "boosted", report.Models[0].Name)
	assert.Equal(t, "needs_efi", report.Models[0].Status)
	assert.Equal(t, "ok", report.Models[1].Status)

	bad := writeFile(t, "bad.yaml", `
models:
  - name: x
    type: linear
    features: [nope]
`)
	_, err = execute(t, "validate", bad)
	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestRerankCommand(t *testing.T) {
	defs := writeFile(t, "defs.yaml", cliDefinitions)
	docs := writeFile(t, "docs.json", `[
		{"id": "a", "values": {"base": 3, "pop": 1}},
		{"id": "b", "values": {"base": 2, "pop": 5}},
		{"id": "c", "values": {"base": 1, "pop": 9}}
	]`)

	out, err := execute(t, "rerank", "-d", defs, "--index", docs,
		"-q", "value:base", "-m", "boosted", "--depth", "2", "--efi", "boost=1", "--rows", "3")
	require.NoError(t, err)

	var resp service.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Hits, 3)
	assert.Equal(t, "b", resp.Hits[0].ID)
	assert.Equal(t, 6.0, resp.Hits[0].Score)
	assert.Equal(t, "a", resp.Hits[1].ID)
	assert.Equal(t, "c", resp.Hits[2].ID)
	assert.False(t, resp.Hits[2].Rescored)

	_, err = execute(t, "rerank", "-d", defs, "--index", docs, "-q", "value:base", "-m", "nope")
	assert.Equal(t, ExitBadRequest, exitCode(err))
}

func TestNewApp_FeatureStats(t *testing.T) {
	s := config.DefaultSettings()
	a, err := newApp(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, a.stats)
	a.Close()

	s.Rerank.FeatureStats = 5
	s.Metrics.Enabled = true
	a, err = newApp(context.Background(), s)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.stats)
	require.NotNil(t, a.collector)
}
