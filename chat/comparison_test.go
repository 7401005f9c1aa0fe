package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/docmatcher"
	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/schema"
)

func understandingFor(queryType retrieval.QueryType, entities []string) Understanding {
	return Understanding{QueryType: queryType, Entities: entities, Confidence: 0.9}
}

func TestDetectComparison_NotAComparisonQuery(t *testing.T) {
	_, _, ok := DetectComparison(understandingFor(retrieval.QueryGeneralQA, nil), []string{"d1", "d2"}, nil)
	assert.False(t, ok)
}

func TestDetectComparison_FewAttachedDocumentsProceedsDirectly(t *testing.T) {
	chosen, selection, ok := DetectComparison(understandingFor(retrieval.QueryComparison, nil), []string{"d1", "d2"}, nil)
	require.True(t, ok)
	assert.Nil(t, selection)
	assert.Equal(t, []string{"d1", "d2"}, chosen)
}

func TestDetectComparison_ManyAttachedNamedSubsetProceeds(t *testing.T) {
	docs := []docmatcher.Document{
		{ID: "d1", Filename: "acme.pdf"}, {ID: "d2", Filename: "globex.pdf"},
		{ID: "d3", Filename: "initech.pdf"}, {ID: "d4", Filename: "umbrella.pdf"},
	}
	u := understandingFor(retrieval.QueryComparison, []string{"acme", "globex"})
	chosen, selection, ok := DetectComparison(u, []string{"d1", "d2", "d3", "d4"}, docs)
	require.True(t, ok)
	assert.Nil(t, selection)
	assert.ElementsMatch(t, []string{"d1", "d2"}, chosen)
}

func TestDetectComparison_ManyAttachedNoneNamedAsksForSelection(t *testing.T) {
	u := understandingFor(retrieval.QueryComparison, nil)
	chosen, selection, ok := DetectComparison(u, []string{"d1", "d2", "d3", "d4"}, nil)
	require.True(t, ok)
	assert.Nil(t, chosen)
	require.NotNil(t, selection)
	assert.ElementsMatch(t, []string{"d1", "d2", "d3", "d4"}, selection.Documents)
	assert.Len(t, selection.PreSelected, 3)
}

type fakeReranker struct{ score float64 }

func (r fakeReranker) Rerank(ctx context.Context, query string, docs []schema.Document) ([]float64, error) {
	out := make([]float64, len(docs))
	for i := range docs {
		out[i] = r.score
	}
	return out, nil
}

func TestPairDocuments_MatchesAboveThresholdAndLeavesRestUnpaired(t *testing.T) {
	a := []schema.Document{schema.NewDocument("a1", "revenue discussion", nil)}
	b := []schema.Document{
		schema.NewDocument("b1", "revenue discussion", nil),
		schema.NewDocument("b2", "unrelated risk factor", nil),
	}
	pairs, unpaired := pairDocuments(context.Background(), fakeReranker{score: 10}, a, b)
	require.Len(t, pairs, 1)
	assert.Equal(t, "a1", pairs[0].ChunkAID)
	assert.Equal(t, "b1", pairs[0].ChunkBID)
	assert.Contains(t, unpaired, "b2")
}

func TestPairDocuments_FallsBackToJaccardOnRerankerFailure(t *testing.T) {
	a := []schema.Document{schema.NewDocument("a1", "revenue grew sharply this year", nil)}
	b := []schema.Document{schema.NewDocument("b1", "revenue grew sharply last year", nil)}
	pairs, _ := pairDocuments(context.Background(), nil, a, b)
	require.Len(t, pairs, 1)
}

func TestClusterDocuments_FormsClusterWhenTwoOtherDocsMatch(t *testing.T) {
	docIDs := []string{"d1", "d2", "d3"}
	byDoc := map[string][]schema.Document{
		"d1": {schema.NewDocument("anchor", "liquidity risk factors", nil)},
		"d2": {schema.NewDocument("m2", "liquidity risk factors", nil)},
		"d3": {schema.NewDocument("m3", "liquidity risk factors", nil)},
	}
	clusters, _ := clusterDocuments(context.Background(), fakeReranker{score: 10}, docIDs, byDoc)
	require.Len(t, clusters, 1)
	assert.Equal(t, "anchor", clusters[0].AnchorID)
	assert.Len(t, clusters[0].MemberIDs, 3)
}

func TestTopicFor_FallsBackToFirstFiveWords(t *testing.T) {
	anchor := schema.NewDocument("a1", "one two three four five six seven", nil)
	topic := topicFor(anchor, nil)
	assert.Equal(t, "one two three four five", topic)
}
