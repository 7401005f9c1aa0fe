package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/schema"
	"github.com/lookatitude/docintel/vectorstore"
	_ "github.com/lookatitude/docintel/vectorstore/providers/inmemory"
	"github.com/lookatitude/docintel/config"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}
func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }

type fakeLexical struct {
	docs []schema.Document
	err  error
}

func (f *fakeLexical) Search(ctx context.Context, query string, k int, opts ...vectorstore.SearchOption) ([]schema.Document, error) {
	return f.docs, f.err
}

func newStore(t *testing.T) vectorstore.VectorStore {
	t.Helper()
	store, err := vectorstore.New("inmemory", config.ProviderConfig{})
	require.NoError(t, err)
	return store
}

func TestHybridRetriever_FusesVectorAndLexical(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.Add(ctx, []schema.Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
	}, [][]float32{{1, 0}, {0, 1}}))

	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	lexical := &fakeLexical{docs: []schema.Document{
		{ID: "b", Content: "beta"},
		{ID: "a", Content: "alpha"},
	}}

	r := retrieval.NewHybridRetriever(store, embedder, lexical)
	docs, err := r.Retrieve(ctx, "alpha", retrieval.WithTopK(2))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	ids := map[string]bool{docs[0].ID: true, docs[1].ID: true}
	assert.True(t, ids["a"])
	assert.True(t, ids["b"])
}

func TestHybridRetriever_EmbedError(t *testing.T) {
	store := newStore(t)
	embedder := &fakeEmbedder{err: errors.New("boom")}
	lexical := &fakeLexical{}

	r := retrieval.NewHybridRetriever(store, embedder, lexical)
	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hybrid embed")
}

func TestHybridRetriever_LexicalError(t *testing.T) {
	store := newStore(t)
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	lexical := &fakeLexical{err: errors.New("boom")}

	r := retrieval.NewHybridRetriever(store, embedder, lexical)
	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hybrid bm25 search")
}

type fakeInner struct {
	docs []schema.Document
	err  error
}

func (f *fakeInner) Retrieve(ctx context.Context, query string, opts ...retrieval.Option) ([]schema.Document, error) {
	return f.docs, f.err
}

type fakeReranker struct {
	scores []float64
	err    error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, docs []schema.Document) ([]float64, error) {
	return f.scores, f.err
}

func TestRerankRetriever_SortsByScore(t *testing.T) {
	inner := &fakeInner{docs: []schema.Document{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	reranker := &fakeReranker{scores: []float64{0.1, 0.9, 0.5}}

	r := retrieval.NewRerankRetriever(inner, reranker, retrieval.WithRerankTopN(2))
	docs, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "2", docs[0].ID)
	assert.Equal(t, "3", docs[1].ID)
}

func TestRerankRetriever_ScoreCountMismatch(t *testing.T) {
	inner := &fakeInner{docs: []schema.Document{{ID: "1"}, {ID: "2"}}}
	reranker := &fakeReranker{scores: []float64{0.1}}

	r := retrieval.NewRerankRetriever(inner, reranker)
	_, err := r.Retrieve(context.Background(), "q")
	require.Error(t, err)
}

func TestRerankRetriever_EmptyCandidates(t *testing.T) {
	inner := &fakeInner{docs: nil}
	reranker := &fakeReranker{}

	r := retrieval.NewRerankRetriever(inner, reranker)
	docs, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

type fakeScorer struct {
	scores map[string]float64
}

func (f *fakeScorer) ScoreRelevance(ctx context.Context, query string, doc schema.Document) (float64, error) {
	return f.scores[doc.ID], nil
}

type fakeWeb struct {
	docs []schema.Document
}

func (f *fakeWeb) Search(ctx context.Context, query string, k int) ([]schema.Document, error) {
	return f.docs, nil
}

func TestCRAGRetriever_SkipsFallbackWhenRelevant(t *testing.T) {
	inner := &fakeInner{docs: []schema.Document{{ID: "1"}}}
	scorer := &fakeScorer{scores: map[string]float64{"1": 0.9}}
	web := &fakeWeb{docs: []schema.Document{{ID: "web"}}}

	r := retrieval.NewCRAGRetriever(inner, scorer, web, retrieval.WithCRAGThreshold(0.5))
	docs, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].ID)
}

func TestCRAGRetriever_FallsBackWhenIrrelevant(t *testing.T) {
	inner := &fakeInner{docs: []schema.Document{{ID: "1"}}}
	scorer := &fakeScorer{scores: map[string]float64{"1": 0.1}}
	web := &fakeWeb{docs: []schema.Document{{ID: "web"}}}

	r := retrieval.NewCRAGRetriever(inner, scorer, web, retrieval.WithCRAGThreshold(0.5))
	docs, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "web", docs[1].ID)
}

func TestParseRelevanceScore(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.8", 0.8, false},
		{"Score: 0.8", 0.8, false},
		{"1.5", 1.0, false},
		{"no numbers here", 0, true},
	}
	for _, c := range cases {
		got, err := retrieval.ParseRelevanceScore(c.in)
		if c.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestSizingFor(t *testing.T) {
	p := retrieval.SizingFor(retrieval.QueryDataExtraction)
	assert.Equal(t, 25, p.CandidatePool)
	assert.Equal(t, 12, p.TopK)
	assert.Equal(t, 2, p.MaxExpansion)
	assert.Equal(t, 24, p.MaxTotal)

	fallback := retrieval.SizingFor(QueryTypeUnknown)
	assert.Equal(t, retrieval.SizingFor(retrieval.QueryGeneralQA), fallback)
}

const QueryTypeUnknown retrieval.QueryType = "unknown"
