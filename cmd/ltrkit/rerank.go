package main

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/recall"
	"github.com/rushteam/ltrkit/service"
)

var rerankFlags struct {
	index    string
	query    string
	model    string
	depth    int
	rows     int
	store    string
	efi      map[string]string
	explain  bool
	pipeline string
	timeout  time.Duration
}

func init() {
	f := rerankCmd.Flags()
	f.StringVar(&rerankFlags.index, "index", "", "JSON corpus (array of documents), overrides index.path")
	f.StringVarP(&rerankFlags.query, "query", "q", "*:*", "first-pass query")
	f.StringVarP(&rerankFlags.model, "model", "m", "", "model name (required)")
	f.IntVar(&rerankFlags.depth, "depth", 0, "reRankDocs (0 = rerank.default_depth)")
	f.IntVar(&rerankFlags.rows, "rows", 10, "number of results to print (0 = all)")
	f.StringVar(&rerankFlags.store, "fs", "", "feature store whose features are written to the feature log")
	f.StringToStringVar(&rerankFlags.efi, "efi", nil, "external feature info, e.g. --efi user_query=go")
	f.BoolVar(&rerankFlags.explain, "explain", false, "attach the model explanation to each reranked hit")
	f.StringVar(&rerankFlags.pipeline, "pipeline", "", "pipeline config (yaml/json), overrides settings")
	f.DurationVar(&rerankFlags.timeout, "timeout", 0, "request timeout (0 = none)")
	_ = rerankCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(rerankCmd)
}

var rerankCmd = &cobra.Command{
	Use:   "rerank",
	Short: "Run a first-pass query and rerank the top hits",
	Long: `Run a first-pass query over the corpus and rerank the top reRankDocs hits
with the given model. Hits below the rerank depth keep their first-pass score
and order.

Examples:
  ltrkit rerank -d defs.yaml --index docs.json -q "title:go" -m lambda --depth 100
  ltrkit rerank -c ltrkit.yaml -q "value:popularity" -m linear --efi user_query=go --explain`,
	RunE: runRerank,
}

func requestParams() map[string]string {
	params := map[string]string{
		recall.DefaultQueryParam: rerankFlags.query,
		core.ParamModel:          rerankFlags.model,
		service.ParamRows:        strconv.Itoa(rerankFlags.rows),
	}
	if rerankFlags.depth != 0 {
		params[core.ParamRerankDocs] = strconv.Itoa(rerankFlags.depth)
	}
	if rerankFlags.store != "" {
		params[core.ParamFeatureStore] = rerankFlags.store
	}
	for k, v := range rerankFlags.efi {
		params[core.EFIPrefix+k] = v
	}
	return params
}

func runRerank(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if rerankFlags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rerankFlags.timeout)
		defer cancel()
	}

	a, err := newApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.loadIndex(rerankFlags.index); err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}
	engine, err := a.engine(rerankFlags.pipeline)
	if err != nil {
		return err
	}
	resp, err := engine.Rerank(ctx, &service.Request{Params: requestParams(), Explain: rerankFlags.explain})
	if err != nil {
		return err
	}
	return printJSON(cmd, resp)
}
