package rerank

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rushteam/ltrkit/core"
	"github.com/rushteam/ltrkit/feature"
	"github.com/rushteam/ltrkit/governor"
	"github.com/rushteam/ltrkit/model"
	"github.com/rushteam/ltrkit/search"
)

var errNotFound = core.NewDomainError(core.ModuleStore, core.ErrorCodeNotFound, "not found")

type fakeResolver struct {
	models map[string]*model.Model
	stores map[string]*feature.Store
}

func (r *fakeResolver) Model(name string) (*model.Model, error) {
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("model %s: %w", name, errNotFound)
}

func (r *fakeResolver) FeatureStore(name string) (*feature.Store, error) {
	if s, ok := r.stores[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("store %s: %w", name, errNotFound)
}

// ltrValues 是每个文档的模型分；首轮分数为 10..1
var ltrValues = []float64{1, 5, 2, 9, 9, 9, 9, 9, 9, 9}

func testReader(segmentSize int) *search.Reader {
	docs := make([]search.Document, len(ltrValues))
	for i, v := range ltrValues {
		title := "rust"
		if i%2 == 0 {
			title = "golang"
		}
		docs[i] = search.Document{
			ID:     fmt.Sprintf("d%d", i+1),
			Fields: map[string]string{"title": title},
			Values: map[string]float64{"base": float64(10 - i), "ltr": v},
		}
	}
	return search.NewReader(docs, segmentSize)
}

func testResolver(t *testing.T) *fakeResolver {
	t.Helper()
	st, err := feature.BuildStore("", []feature.Definition{
		{Name: "ltr", Type: feature.TypeField, Params: map[string]any{"field": "ltr"}},
		{Name: "orig", Type: feature.TypeOriginalScore},
		{Name: "q", Type: feature.TypeValue, Params: map[string]any{"value": "${q}"}, Default: -1},
	}, feature.Deps{})
	require.NoError(t, err)
	logStore, err := feature.BuildStore("log", []feature.Definition{
		{Name: "base", Type: feature.TypeField, Params: map[string]any{"field": "base"}},
	}, feature.Deps{})
	require.NoError(t, err)

	build := func(cfg model.Config) *model.Model {
		m, err := model.New(cfg, st)
		require.NoError(t, err)
		return m
	}
	return &fakeResolver{
		models: map[string]*model.Model{
			"m":   build(model.Config{Name: "m", Type: model.TypeLinear, Features: []string{"ltr"}, Params: map[string]any{"weights": []any{1}}}),
			"m2":  build(model.Config{Name: "m2", Type: model.TypeLinear, Features: []string{"ltr", "orig"}, Params: map[string]any{"weights": []any{1, 0.5}}}),
			"efi": build(model.Config{Name: "efi", Type: model.TypeLinear, Features: []string{"ltr", "orig"}, Params: map[string]any{"efi_weights": true}}),
		},
		stores: map[string]*feature.Store{st.Name(): st, "log": logStore},
	}
}

func docIDs(r *search.Reader, hits []search.ScoreDoc) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		seg := r.SegmentFor(h.Doc)
		out[i] = seg.Doc(h.Doc - seg.DocBase()).ID
	}
	return out
}

func TestSearch_HeadOnlyRerank(t *testing.T) {
	gov, err := governor.New(governor.Config{MaxThreads: 2, MaxQueryThreads: 2, AcquireTimeout: time.Second})
	require.NoError(t, err)
	defer gov.Close()

	tests := []struct {
		name     string
		segments int
		rescorer *Rescorer
	}{
		{"single segment inline", 0, NewRescorer()},
		{"multi segment inline", 2, NewRescorer()},
		{"multi segment governed", 2, NewRescorer(WithGovernor(gov))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := testReader(tt.segments)
			parser := NewParser(testResolver(t), WithRescorer(tt.rescorer))
			q, err := parser.Parse(map[string]string{"model": "m", "reRankDocs": "3"}, &search.FieldValueQuery{Field: "base"})
			require.NoError(t, err)

			top, err := q.Search(context.Background(), search.NewSearcher(reader), 10)
			require.NoError(t, err)
			assert.Equal(t, 10, top.TotalHits)
			assert.Equal(t,
				[]string{"d2", "d3", "d1", "d4", "d5", "d6", "d7", "d8", "d9", "d10"},
				docIDs(reader, top.ScoreDocs))

			scores := make([]float64, len(top.ScoreDocs))
			for i, h := range top.ScoreDocs {
				scores[i] = h.Score
			}
			assert.Equal(t, []float64{5, 2, 1, 7, 6, 5, 4, 3, 2, 1}, scores)
		})
	}
}

func TestSearch_TruncatesAfterRerank(t *testing.T) {
	reader := testReader(3)
	parser := NewParser(testResolver(t))
	q, err := parser.Parse(map[string]string{"model": "m", "reRankDocs": "3"}, &search.FieldValueQuery{Field: "base"})
	require.NoError(t, err)

	// n 小于 depth 时仍重排 depth 条，再截断
	top, err := q.Search(context.Background(), search.NewSearcher(reader), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d3"}, docIDs(reader, top.ScoreDocs))

	// depth 大于命中数时全部重排
	q, err = parser.Parse(map[string]string{"model": "m", "reRankDocs": "100"}, &search.FieldValueQuery{Field: "base"})
	require.NoError(t, err)
	top, err = q.Search(context.Background(), search.NewSearcher(reader), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"d4", "d5", "d6", "d7", "d8", "d9", "d10", "d2", "d3", "d1"}, docIDs(reader, top.ScoreDocs))
}

func TestRescore_OnlyReordersHead(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(rt, "n")
		depth := rapid.IntRange(1, 40).Draw(rt, "depth")
		segSize := rapid.IntRange(0, 8).Draw(rt, "segSize")
		values := rapid.SliceOfN(rapid.Float64Range(-10, 10), n, n).Draw(rt, "ltr")

		docs := make([]search.Document, n)
		for i := range docs {
			docs[i] = search.Document{ID: fmt.Sprintf("d%d", i), Values: map[string]float64{"ltr": values[i]}}
		}
		reader := search.NewReader(docs, segSize)

		st := feature.NewStore("")
		require.NoError(rt, st.Add(feature.MustSpec(feature.Definition{Name: "ltr", Type: feature.TypeField, Params: map[string]any{"field": "ltr"}}, feature.Deps{})))
		st.Finalize()
		m, err := model.New(model.Config{Name: "p", Type: model.TypeLinear, Features: []string{"ltr"}, Params: map[string]any{"weights": []any{1}}}, st)
		require.NoError(rt, err)
		bound, err := m.Bind(core.EFI{}, nil)
		require.NoError(rt, err)
		q, err := NewQuery(search.MatchAllQuery{}, bound, depth, nil)
		require.NoError(rt, err)

		// 首轮顺序：文档号升序，分数递减
		hits := make([]search.ScoreDoc, n)
		for i := range hits {
			hits[i] = search.ScoreDoc{Doc: i, Score: float64(n - i)}
		}
		out, err := q.Rescore(context.Background(), reader, hits)
		require.NoError(rt, err)
		require.Len(rt, out, n)

		k := min(depth, n)
		for i := k; i < n; i++ {
			if out[i].ScoreDoc != hits[i] || out[i].Rescored {
				rt.Fatalf("tail changed at %d: %+v", i, out[i])
			}
		}
		headDocs := make([]int, k)
		for i := 0; i < k; i++ {
			if !out[i].Rescored || out[i].Score != values[out[i].Doc] {
				rt.Fatalf("head %d not rescored: %+v", i, out[i])
			}
			if i > 0 && out[i-1].Score < out[i].Score {
				rt.Fatalf("head not sorted at %d", i)
			}
			headDocs[i] = out[i].Doc
		}
		sort.Ints(headDocs)
		for i, d := range headDocs {
			if d != i {
				rt.Fatalf("head is not a permutation of the first %d hits: %v", k, headDocs)
			}
		}
	})
}

func TestParser_Errors(t *testing.T) {
	parser := NewParser(testResolver(t))
	base := search.MatchAllQuery{}
	tests := []struct {
		name     string
		params   map[string]string
		badReq   bool
		notFound bool
	}{
		{"missing model", map[string]string{}, true, false},
		{"unknown model", map[string]string{"model": "nope"}, true, true},
		{"zero depth", map[string]string{"model": "m", "reRankDocs": "0"}, true, false},
		{"negative depth", map[string]string{"model": "m", "reRankDocs": "-3"}, true, false},
		{"depth not int", map[string]string{"model": "m", "reRankDocs": "ten"}, true, false},
		{"unknown store", map[string]string{"model": "m", "fs": "nope"}, true, true},
		{"efi weights missing", map[string]string{"model": "efi"}, true, false},
		{"efi weights mismatch", map[string]string{"model": "efi", "efi.w": "1"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.params, base)
			require.Error(t, err)
			if tt.badReq {
				assert.True(t, core.IsBadRequest(err), "err = %v", err)
			} else {
				assert.True(t, core.IsConfigError(err), "err = %v", err)
			}
			assert.Equal(t, tt.notFound, errors.Is(err, errNotFound), "err = %v", err)
		})
	}

	_, err := parser.Parse(map[string]string{"model": "m"}, nil)
	assert.True(t, core.IsBadRequest(err))
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams(map[string]string{"model": " m ", "efi.user": "u1", "efi.": "x", "fs": "log"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "m", p.Model)
	assert.Equal(t, "log", p.Store)
	assert.Equal(t, 200, p.Depth)
	assert.Equal(t, core.EFI{"user": "u1"}, p.EFI)
}

func TestNewQuery_RejectsNonPositiveDepth(t *testing.T) {
	m := testResolver(t).models["m"]
	bound, err := m.Bind(core.EFI{}, nil)
	require.NoError(t, err)
	for _, depth := range []int{0, -1} {
		_, err := NewQuery(search.MatchAllQuery{}, bound, depth, nil)
		assert.True(t, core.IsBadRequest(err), "depth %d: %v", depth, err)
	}
}

func TestQuery_RewriteEqualHash(t *testing.T) {
	reader := testReader(2)
	parser := NewParser(testResolver(t))
	params := map[string]string{"model": "m2", "reRankDocs": "4"}

	q1, err := parser.Parse(params, &search.PrefixQuery{Field: "title", Prefix: "gol"})
	require.NoError(t, err)
	q2, err := parser.Parse(params, &search.PrefixQuery{Field: "title", Prefix: "gol"})
	require.NoError(t, err)
	assert.True(t, q1.Equal(q2))
	assert.Equal(t, q1.Hash(), q2.Hash())

	q3, err := parser.Parse(map[string]string{"model": "m2", "reRankDocs": "5"}, &search.PrefixQuery{Field: "title", Prefix: "gol"})
	require.NoError(t, err)
	assert.False(t, q1.Equal(q3))
	assert.False(t, q1.Equal(search.MatchAllQuery{}))

	// 只有 fs 不同：记录的特征集合不同
	q4, err := parser.Parse(map[string]string{"model": "m2", "reRankDocs": "4", "fs": "log"}, &search.PrefixQuery{Field: "title", Prefix: "gol"})
	require.NoError(t, err)
	require.NotNil(t, q4.LogStore())
	assert.False(t, q1.Equal(q4))
	assert.False(t, q4.Equal(q1))
	assert.NotEqual(t, q1.Hash(), q4.Hash())

	rw, err := q1.Rewrite(reader)
	require.NoError(t, err)
	rq := rw.(*Query)
	assert.NotSame(t, q1, rq)
	assert.IsType(t, &search.DisjunctionQuery{}, rq.Base())
	assert.Same(t, q1.Bound(), rq.Bound())
	assert.Equal(t, q1.Depth(), rq.Depth())

	// 已改写的查询再次改写返回自身
	again, err := rq.Rewrite(reader)
	require.NoError(t, err)
	assert.Same(t, rq, again)

	// 未改写的 PrefixQuery 无法直接打分，Search 会先改写
	top, err := q1.Search(context.Background(), search.NewSearcher(reader), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, top.TotalHits)
	for _, h := range top.ScoreDocs[:4] {
		assert.Greater(t, h.Score, 1.0, "orig feature should see the rewritten base")
	}

	assert.Contains(t, q1.String(), "reRankDocs=4")
	assert.Contains(t, q1.String(), "title:gol*")
}

func TestQuery_MatchesNotSupported(t *testing.T) {
	reader := testReader(0)
	q, err := NewParser(testResolver(t)).Parse(map[string]string{"model": "m"}, search.MatchAllQuery{})
	require.NoError(t, err)
	_, err = q.Matches(context.Background(), reader.Segment(0), 0)
	assert.True(t, core.IsNotSupported(err))
	assert.ErrorIs(t, err, core.ErrNotSupported)
}

func TestQuery_Explain(t *testing.T) {
	reader := testReader(4)
	q, err := NewParser(testResolver(t)).Parse(map[string]string{"model": "m2", "reRankDocs": "3"}, &search.FieldValueQuery{Field: "base"})
	require.NoError(t, err)

	top, err := q.Search(context.Background(), search.NewSearcher(reader), 3)
	require.NoError(t, err)
	for _, h := range top.ScoreDocs {
		exp, err := q.Explain(context.Background(), reader, h.Doc)
		require.NoError(t, err)
		assert.Equal(t, "linear model, sum of:", exp.Description)
		assert.InDelta(t, h.Score, exp.Value, 1e-9)
		require.Len(t, exp.Details, 2)
		assert.True(t, strings.HasPrefix(exp.Details[0].Description, "weight(1) * ltr("), exp.Details[0].Description)
		assert.True(t, strings.HasPrefix(exp.Details[1].Description, "weight(0.5) * orig("), exp.Details[1].Description)
	}

	_, err = q.Explain(context.Background(), reader, 99)
	assert.True(t, core.IsBadRequest(err))
}

func TestRescorer_FeatureLogging(t *testing.T) {
	reader := testReader(2)
	mem := &MemoryLogger{}
	var buf bytes.Buffer
	csvLogger := NewCSVLogger(&buf)

	res := testResolver(t)
	for _, tc := range []struct {
		fs        string
		logger    FeatureLogger
		wantStore string
		wantNames []string
	}{
		{"", mem, core.DefaultFeatureStore, []string{"ltr", "orig", "q"}},
		{"log", csvLogger, "log", []string{"base"}},
	} {
		parser := NewParser(res, WithRescorer(NewRescorer(WithFeatureLogger(tc.logger))))
		params := map[string]string{"model": "m", "reRankDocs": "3", "efi.q": "7"}
		if tc.fs != "" {
			params["fs"] = tc.fs
		}
		q, err := parser.Parse(params, &search.FieldValueQuery{Field: "base"})
		require.NoError(t, err)
		_, err = q.Search(context.Background(), search.NewSearcher(reader), 10)
		require.NoError(t, err)
	}

	recs := mem.Records()
	require.Len(t, recs, 3)
	byID := map[string]FeatureRecord{}
	for _, r := range recs {
		byID[r.DocID] = r
		assert.Equal(t, "m", r.Model)
		assert.Equal(t, core.DefaultFeatureStore, r.Store)
		assert.Equal(t, []string{"ltr", "orig", "q"}, r.Names)
	}
	assert.Equal(t, []float64{5, 9, 7}, byID["d2"].Values)
	assert.Equal(t, 5.0, byID["d2"].Score)

	require.NoError(t, csvLogger.Err())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, buf.String(), "m,log,d2,5,base=9")
}

func TestFormatFeatures(t *testing.T) {
	assert.Equal(t, "a=1,b=0.5", FormatFeatures([]string{"a", "b"}, []float64{1, 0.5}, '=', ','))
	assert.Equal(t, "", FormatFeatures(nil, nil, '=', ','))
}

type recordingObserver struct {
	calls int
	docs  int
}

func (o *recordingObserver) ObserveRescore(_ string, docs int, _ time.Duration, _ error) {
	o.calls++
	o.docs += docs
}

func TestRescorer_ObserverAndCancel(t *testing.T) {
	reader := testReader(2)
	obs := &recordingObserver{}
	parser := NewParser(testResolver(t), WithRescorer(NewRescorer(WithObserver(obs))))
	q, err := parser.Parse(map[string]string{"model": "m", "reRankDocs": "3"}, &search.FieldValueQuery{Field: "base"})
	require.NoError(t, err)

	_, err = q.Search(context.Background(), search.NewSearcher(reader), 5)
	require.NoError(t, err)
	// 首轮取 max(n, depth) 条
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, 5, obs.docs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Search(ctx, search.NewSearcher(reader), 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRescore_TiesKeepFirstPassOrder(t *testing.T) {
	reader := testReader(0)
	q, err := NewParser(testResolver(t)).Parse(map[string]string{"model": "m", "reRankDocs": "4"}, &search.FieldValueQuery{Field: "base"})
	require.NoError(t, err)

	// d6 d4 d5 的模型分同为 9，首轮顺序不是文档号升序
	hits := []search.ScoreDoc{{Doc: 5, Score: 30}, {Doc: 3, Score: 20}, {Doc: 0, Score: 15}, {Doc: 4, Score: 10}}
	out, err := q.Rescore(context.Background(), reader, hits)
	require.NoError(t, err)

	got := make([]int, len(out))
	for i, d := range out {
		got[i] = d.Doc
		assert.True(t, d.Rescored)
	}
	assert.Equal(t, []int{5, 3, 4, 0}, got)
}

// cancellingLogger 在记录第一条特征后取消请求
type cancellingLogger struct {
	MemoryLogger
	cancel context.CancelFunc
}

func (l *cancellingLogger) LogFeatures(ctx context.Context, rec FeatureRecord) {
	l.MemoryLogger.LogFeatures(ctx, rec)
	l.cancel()
}

func TestRescore_CancelStopsRemainingDocs(t *testing.T) {
	gov, err := governor.New(governor.Config{MaxThreads: 2, MaxQueryThreads: 2, AcquireTimeout: time.Second})
	require.NoError(t, err)
	defer gov.Close()

	tests := []struct {
		name string
		gov  *governor.Governor
	}{
		{"inline", nil},
		{"governed", gov},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := testReader(0)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			fl := &cancellingLogger{cancel: cancel}
			parser := NewParser(testResolver(t), WithRescorer(NewRescorer(WithGovernor(tt.gov), WithFeatureLogger(fl))))
			q, err := parser.Parse(map[string]string{"model": "m", "reRankDocs": "3"}, &search.FieldValueQuery{Field: "base"})
			require.NoError(t, err)

			hits := []search.ScoreDoc{{Doc: 0, Score: 10}, {Doc: 1, Score: 9}, {Doc: 2, Score: 8}}
			_, err = q.Rescore(ctx, reader, hits)
			assert.ErrorIs(t, err, context.Canceled)

			// 取消时正在打分的文档完成，其余文档不再打分
			recs := fl.Records()
			require.Len(t, recs, 1)
			assert.Equal(t, "d1", recs[0].DocID)
			assert.Equal(t, 1.0, recs[0].Score)
		})
	}
}
