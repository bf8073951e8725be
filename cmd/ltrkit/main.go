// Package main 实现 ltrkit 命令行：加载定义与语料，执行首轮查询 + LTR 重排。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rushteam/ltrkit/config"
)

var (
	settingsPath    string
	definitionsPath string
	version         = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "ltrkit",
	Short: "Learning-to-rank reranking toolkit",
	Long: `ltrkit runs a first-pass query over a JSON corpus and reranks the top
hits with a feature-based model loaded from feature store and model definitions.

Settings are read from a YAML file and overridden by LTRKIT_* environment
variables (use "__" for nesting, e.g. LTRKIT_GOVERNOR__MAX_THREADS=16).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", "", "settings file (yaml)")
	rootCmd.PersistentFlags().StringVarP(&definitionsPath, "definitions", "d", "", "feature store and model definitions (yaml/json), overrides settings")
}

// loadSettings 读取配置，命令行参数优先
func loadSettings() (*config.Settings, error) {
	s, err := config.LoadSettings(settingsPath)
	if err != nil {
		return nil, &exitError{code: ExitConfigError, err: err}
	}
	if definitionsPath != "" {
		s.Definitions = definitionsPath
	}
	return s, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := newJSONEncoder(cmd.OutOrStdout())
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
