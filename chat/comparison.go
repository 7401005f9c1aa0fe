package chat

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/docmatcher"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/schema"
)

// pairSimilarityThreshold is the default minimum cross-encoder (or Jaccard
// fallback) similarity for two chunks to be considered a match (spec
// §4.5.1 "above a similarity threshold (default 0.6)").
const pairSimilarityThreshold = 0.6

// minDocsForComparison is the smallest attached-document count the
// comparison flow activates for at all (spec §4.5 step 5).
const minDocsForComparison = 2

// maxProceedWithoutSelection is the attached-document count at or below
// which the orchestrator proceeds without asking the user to pick documents
// (spec §4.5 step 5 "≤ 3 documents: proceed").
const maxProceedWithoutSelection = 3

// DetectComparison implements spec §4.5 step 5's routing table. It returns
// the document ids to compare, or a non-nil SelectionRequest if the client
// must choose first. ok is false when the query is not a comparison at all
// (wrong query type, or fewer than two documents attached).
func DetectComparison(understanding Understanding, attached []string, sessionDocs []docmatcher.Document) (chosen []string, selection *SelectionRequest, ok bool) {
	if understanding.QueryType != retrieval.QueryComparison || len(attached) < minDocsForComparison {
		return nil, nil, false
	}
	if len(attached) <= maxProceedWithoutSelection {
		return attached, nil, true
	}

	named := uniqueMatches(understanding.Entities, sessionDocs)

	if len(named) >= 2 && len(named) <= maxProceedWithoutSelection {
		return named, nil, true
	}
	if len(named) > maxProceedWithoutSelection {
		return nil, &SelectionRequest{
			Documents:   named,
			PreSelected: firstN(named, maxProceedWithoutSelection),
		}, true
	}
	return nil, &SelectionRequest{
		Documents:   attached,
		PreSelected: firstN(attached, maxProceedWithoutSelection),
	}, true
}

func uniqueMatches(entities []string, docs []docmatcher.Document) []string {
	matched := docmatcher.MatchAll(entities, docs)
	seen := make(map[string]bool)
	var out []string
	for _, entity := range entities {
		for _, id := range matched[entity] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func firstN(ids []string, n int) []string {
	if len(ids) <= n {
		return ids
	}
	return ids[:n]
}

// Comparison is the comparison flow's full result (spec §4.5.1), ready to
// attach to the assistant's ChatMessage and render as a comparison_context
// event.
type Comparison struct {
	Metadata domain.ComparisonMetadata
	AllChunks []schema.Document // union of every document's retrieved chunks, for prompt assembly
}

// RunComparisonFlow retrieves chunks per document concurrently, then pairs
// (2 documents) or clusters (3+ documents) them by topical similarity
// (spec §4.5.1).
func RunComparisonFlow(ctx context.Context, deps RetrievalDeps, reranker retrieval.Reranker, query string, documentIDs []string, filenames map[string]string) (Comparison, error) {
	results := core.BatchInvoke(ctx, func(ctx context.Context, docID string) ([]schema.Document, error) {
		return RetrieveContext(ctx, deps, query, retrieval.QueryComparison, retrieval.WithMetadata(map[string]any{"document_id": docID}))
	}, documentIDs, core.BatchOptions{MaxConcurrency: len(documentIDs)})

	byDoc := make(map[string][]schema.Document, len(documentIDs))
	var all []schema.Document
	for i, r := range results {
		if r.Err != nil {
			return Comparison{}, core.NewError("chat.RunComparisonFlow", core.ErrRetrieval, "per-document retrieval failed", r.Err)
		}
		byDoc[documentIDs[i]] = r.Value
		all = append(all, r.Value...)
	}

	labels := make(map[string]string, len(documentIDs))
	for i, id := range documentIDs {
		labels[id] = documentLabel(i)
	}

	var pairs []domain.ComparisonPair
	var clusters []domain.ComparisonCluster
	var unpaired []string

	if len(documentIDs) == 2 {
		pairs, unpaired = pairDocuments(ctx, reranker, byDoc[documentIDs[0]], byDoc[documentIDs[1]])
	} else {
		clusters, unpaired = clusterDocuments(ctx, reranker, documentIDs, byDoc)
	}

	return Comparison{
		Metadata: domain.ComparisonMetadata{
			DocumentLabels: labels,
			Pairs:          pairs,
			Clusters:       clusters,
			Unpaired:       unpaired,
		},
		AllChunks: all,
	}, nil
}

// documentLabel renders the 0-based document position as "Document A",
// "Document B", ... (spec §4.5.1 "labeled Document A, Document B, …").
func documentLabel(i int) string {
	return "Document " + string(rune('A'+i))
}

// pairDocuments matches chunks from two documents greedily above
// pairSimilarityThreshold, sorted by similarity descending (spec §4.5.1
// "2 documents → pairing").
func pairDocuments(ctx context.Context, reranker retrieval.Reranker, a, b []schema.Document) ([]domain.ComparisonPair, []string) {
	scores := scoreAllPairs(ctx, reranker, a, b)

	usedB := make(map[int]bool, len(b))
	var pairs []domain.ComparisonPair
	for i := range a {
		bestJ, bestScore := -1, 0.0
		for j := range b {
			if usedB[j] {
				continue
			}
			if s := scores[i][j]; s > bestScore {
				bestScore, bestJ = s, j
			}
		}
		if bestJ >= 0 && bestScore >= pairSimilarityThreshold {
			usedB[bestJ] = true
			pairs = append(pairs, domain.ComparisonPair{
				Topic:      topicFor(a[i], []schema.Document{b[bestJ]}),
				ChunkAID:   a[i].ID,
				ChunkBID:   b[bestJ].ID,
				Similarity: bestScore,
			})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })

	matchedA := make(map[string]bool, len(pairs))
	matchedB := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		matchedA[p.ChunkAID] = true
		matchedB[p.ChunkBID] = true
	}
	var unpaired []string
	for _, d := range a {
		if !matchedA[d.ID] {
			unpaired = append(unpaired, d.ID)
		}
	}
	for _, d := range b {
		if !matchedB[d.ID] {
			unpaired = append(unpaired, d.ID)
		}
	}
	return pairs, unpaired
}

// scoreAllPairs scores every (a, b) chunk pair with the cross-encoder, one
// batched Rerank call per a-chunk against every b-chunk, normalized to
// [0,1] with a sigmoid (spec §4.5.1 "score all candidate pairs ... in a
// single batch; apply sigmoid"). Falls back to word-level Jaccard if the
// cross-encoder call fails.
func scoreAllPairs(ctx context.Context, reranker retrieval.Reranker, a, b []schema.Document) [][]float64 {
	scores := make([][]float64, len(a))
	for i := range a {
		scores[i] = make([]float64, len(b))
		if reranker != nil {
			raw, err := reranker.Rerank(ctx, a[i].Content, b)
			if err == nil {
				for j, s := range raw {
					scores[i][j] = sigmoid(s)
				}
				continue
			}
		}
		for j := range b {
			scores[i][j] = jaccard(a[i].Content, b[j].Content)
		}
	}
	return scores
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// clusterDocuments uses the first document's chunks as anchors, matching
// the best chunk from every other document above threshold; an anchor
// forms a cluster when it has matches from at least two other documents
// (spec §4.5.1 "3+ documents → clustering").
func clusterDocuments(ctx context.Context, reranker retrieval.Reranker, documentIDs []string, byDoc map[string][]schema.Document) ([]domain.ComparisonCluster, []string) {
	anchorDocID := documentIDs[0]
	anchors := byDoc[anchorDocID]
	others := documentIDs[1:]

	consumed := make(map[string]bool)
	var clusters []domain.ComparisonCluster

	for _, anchor := range anchors {
		members := map[string]string{anchorDocID: anchor.ID}
		var partners []schema.Document
		for _, docID := range others {
			candidates := byDoc[docID]
			bestIdx, bestScore := -1, 0.0
			scores := scoreAllPairs(ctx, reranker, []schema.Document{anchor}, candidates)[0]
			for j, s := range scores {
				if s > bestScore {
					bestScore, bestIdx = s, j
				}
			}
			if bestIdx >= 0 && bestScore >= pairSimilarityThreshold {
				members[docID] = candidates[bestIdx].ID
				partners = append(partners, candidates[bestIdx])
			}
		}
		if len(members)-1 >= 2 { // matches from >= 2 other documents
			clusters = append(clusters, domain.ComparisonCluster{
				Topic:     topicFor(anchor, partners),
				AnchorID:  anchor.ID,
				MemberIDs: members,
			})
			for _, id := range members {
				consumed[id] = true
			}
		}
	}

	var unpaired []string
	for _, docID := range documentIDs {
		for _, d := range byDoc[docID] {
			if !consumed[d.ID] {
				unpaired = append(unpaired, d.ID)
			}
		}
	}
	return clusters, unpaired
}

// topicFor infers a pair/cluster's topic label: the anchor's joined last
// two heading-hierarchy levels if every partner shares the same tail,
// else the anchor's section heading, else the first five words of its
// text (spec §4.5.1 "Topic inference").
func topicFor(anchor schema.Document, partners []schema.Document) string {
	anchorTail := hierarchyTail(anchor)
	if anchorTail != "" {
		consistent := true
		for _, p := range partners {
			if hierarchyTail(p) != anchorTail {
				consistent = false
				break
			}
		}
		if consistent {
			return anchorTail
		}
	}
	if heading := anchor.MetaString("section_heading"); heading != "" {
		return heading
	}
	return firstWords(anchor.Content, 5)
}

func hierarchyTail(d schema.Document) string {
	raw, ok := d.Metadata["heading_hierarchy"].([]string)
	if !ok || len(raw) == 0 {
		return ""
	}
	if len(raw) == 1 {
		return raw[0]
	}
	return strings.Join(raw[len(raw)-2:], " / ")
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
