package main

import (
	"github.com/spf13/cobra"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/store"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate [definitions]",
	Short: "Validate feature store and model definitions",
	Long: `Build every feature store and model in a definitions file and bind each
model without external feature info. Models that need request-time EFI are
reported as "needs_efi" rather than failing.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

type modelReport struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Store    string   `json:"store"`
	Features []string `json:"features"`
	Status   string   `json:"status"` // ok / needs_efi
	Detail   string   `json:"detail,omitempty"`
}

type validateReport struct {
	Stores []string      `json:"stores"`
	Models []modelReport `json:"models"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	path := s.Definitions
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return &exitError{code: ExitConfigError, err: core.ConfigErrorf(core.ModuleStore, "no definitions: pass a file or set definitions")}
	}

	defs, err := store.LoadDefinitions(path)
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}
	// kv 特征只校验参数，不访问后端
	kv := store.NewMemoryStore()
	defer kv.Close()
	r := store.NewRegistry(store.WithDeps(feature.Deps{KV: kv}))
	if err := r.Load(defs); err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}

	report := validateReport{Stores: r.StoreNames()}
	for _, name := range r.ModelNames() {
		m, err := r.Model(name)
		if err != nil {
			return err
		}
		mr := modelReport{
			Name:     name,
			Type:     m.Type(),
			Store:    m.FeatureStoreName(),
			Features: m.FeatureNames(),
			Status:   "ok",
		}
		if _, err := m.Bind(core.EFI{}, nil); err != nil {
			if !core.IsBadRequest(err) {
				return &exitError{code: ExitConfigError, err: err}
			}
			mr.Status = "needs_efi"
			mr.Detail = err.Error()
		}
		report.Models = append(report.Models, mr)
	}
	return printJSON(cmd, report)
}
