// Package context assembles a workflow run's generation context (spec
// §4.3.1): per-section hybrid retrieval, table-preference re-ranking,
// per-document diversity capping, citation map construction, and
// direct/map-reduce mode selection at the 10,000-token threshold. Grounded
// on retrieval's own HybridRetriever/RerankRetriever for the underlying
// search, and on citation's Entry/Map types for the whitelist it emits.
package context

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lookatitude/docintel/citation"
	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/schema"
)

// directModeTokenThreshold is the assembled-context size below which
// generation runs in direct mode rather than map-reduce (spec §4.3.1 step
// "If estimate <= 10,000 tokens").
const directModeTokenThreshold = 10_000

// hardCharCap bounds the assembled context string regardless of the token
// estimate, since the estimator is a word-count proxy and can undercount
// dense text (spec §4.3.1 "Enforce a hard character cap").
const hardCharCap = 400_000

// tableBonus is the relevance-score multiplier applied to table chunks in a
// section whose RetrievalSpec prefers tables (spec §4.3.1 "10% bonus").
const tableBonus = 1.10

// sentenceBoundary extracts a citation entry's first-sentence snippet.
// Grounded on chunker.go's identical sentence-boundary regex.
var sentenceBoundary = regexp.MustCompile(`[^.!?]+[.!?]+(\s+|$)`)

// Request describes one workflow run's context-preparation inputs.
type Request struct {
	Template          domain.WorkflowTemplate
	DocumentIDs       []string          // run-local order; index+1 is the citation document index
	DocumentFilenames map[string]string // documentID -> display filename
}

// Assembled is context preparation's output, ready for engine/generate.
type Assembled struct {
	Mode            domain.GenerationMode
	ContextText     string                       // populated when Mode == GenerationDirect
	SectionGroups   map[string][]schema.Document // populated when Mode == GenerationMapReduce, keyed by RetrievalSpec.Key
	CitationMap     citation.Map
	EstimatedTokens int
	Truncated       bool
}

// Prepare runs the full context-preparation algorithm against retriever
// (the already hybrid+rerank-wrapped retrieval.Retriever from §4.4) for
// every section in req.Template.Retrieval.
func Prepare(ctx context.Context, retriever retrieval.Retriever, req Request) (Assembled, error) {
	docIndex := make(map[string]int, len(req.DocumentIDs))
	for i, id := range req.DocumentIDs {
		docIndex[id] = i + 1
	}

	sectionGroups := make(map[string][]schema.Document, len(req.Template.Retrieval))
	citationMap := make(citation.Map)
	var allSelected []schema.Document

	for _, spec := range req.Template.Retrieval {
		selected, err := retrieveSection(ctx, retriever, spec)
		if err != nil {
			return Assembled{}, fmt.Errorf("engine/context: section %q: %w", spec.Key, err)
		}
		for i, d := range selected {
			selected[i] = stampDocIndex(d, docIndex)
		}
		sectionGroups[spec.Key] = selected
		allSelected = append(allSelected, selected...)
		for _, d := range selected {
			addCitation(citationMap, d, req.DocumentFilenames)
		}
	}

	if len(allSelected) == 0 {
		return Assembled{}, core.NewError("engine/context.Prepare", core.ErrRetrieval,
			"no_chunks_retrieved: retrieval returned zero chunks across all sections", nil)
	}

	contextText := renderContext(req.Template.Retrieval, sectionGroups)
	estimated := estimateTokens(contextText)

	out := Assembled{
		CitationMap:     citationMap,
		EstimatedTokens: estimated,
	}
	if estimated <= directModeTokenThreshold {
		out.Mode = domain.GenerationDirect
		truncated := len(contextText) > hardCharCap
		out.ContextText = llmclient.TruncateToBudget(contextText, hardCharCap)
		out.Truncated = truncated
	} else {
		out.Mode = domain.GenerationMapReduce
		out.SectionGroups = sectionGroups
	}
	return out, nil
}

// retrieveSection runs every query in spec against retriever, unions the
// results by chunk id keeping the best score seen, applies the table
// preference bonus, enforces per-document diversity, and takes up to
// spec.MaxChunks (spec §4.3.1 algorithm, first bullet).
func retrieveSection(ctx context.Context, retriever retrieval.Retriever, spec domain.RetrievalSpec) ([]schema.Document, error) {
	maxChunks := spec.MaxChunks
	if maxChunks <= 0 {
		maxChunks = 10
	}
	candidatePool := maxChunks * 2

	unioned := make(map[string]schema.Document)
	for _, q := range spec.Queries {
		docs, err := retriever.Retrieve(ctx, q, retrieval.WithTopK(candidatePool))
		if err != nil {
			return nil, fmt.Errorf("retrieve query %q: %w", q, err)
		}
		for _, d := range docs {
			if spec.PreferTables && d.MetaString("kind") == string(domain.ChunkTable) {
				d.Score *= tableBonus
			}
			if existing, ok := unioned[d.ID]; !ok || d.Score > existing.Score {
				unioned[d.ID] = d
			}
		}
	}
	if len(unioned) == 0 {
		return nil, nil
	}

	candidates := make([]schema.Document, 0, len(unioned))
	for _, d := range unioned {
		candidates = append(candidates, d)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	return applyDiversityCap(candidates, maxChunks), nil
}

// applyDiversityCap takes up to maxChunks documents from the
// score-descending candidates list, never letting any single document
// contribute more than ~50% of the section's chunks (spec §4.3.1 "apply
// diversity").
func applyDiversityCap(candidates []schema.Document, maxChunks int) []schema.Document {
	perDocCap := (maxChunks + 1) / 2
	if perDocCap < 1 {
		perDocCap = 1
	}

	perDocCount := make(map[string]int)
	var selected []schema.Document
	var overflow []schema.Document
	for _, d := range candidates {
		if len(selected) >= maxChunks {
			break
		}
		docID := d.MetaString("document_id")
		if perDocCount[docID] < perDocCap {
			selected = append(selected, d)
			perDocCount[docID]++
		} else {
			overflow = append(overflow, d)
		}
	}
	for _, d := range overflow {
		if len(selected) >= maxChunks {
			break
		}
		selected = append(selected, d)
	}
	return selected
}

// renderContext concatenates every section's selected chunks, in template
// retrieval-spec order, each line prefixed with its citation token.
func renderContext(specs []domain.RetrievalSpec, sectionGroups map[string][]schema.Document) string {
	var sb strings.Builder
	for _, spec := range specs {
		docs := sectionGroups[spec.Key]
		if len(docs) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n", spec.Key)
		for _, d := range docs {
			token := docToken(d)
			fmt.Fprintf(&sb, "%s %s\n\n", token, d.Content)
		}
	}
	return sb.String()
}

func docToken(d schema.Document) string {
	idx := d.MetaInt("doc_index")
	page := d.MetaInt("page")
	return string(citation.NewToken(idx, page))
}

// stampDocIndex records the run-local citation document index on a
// document's metadata so renderContext and addCitation can build the same
// token without re-resolving it against req.DocumentIDs.
func stampDocIndex(d schema.Document, docIndex map[string]int) schema.Document {
	idx, ok := docIndex[d.MetaString("document_id")]
	if !ok {
		return d
	}
	if d.Metadata == nil {
		d.Metadata = make(map[string]any)
	}
	d.Metadata["doc_index"] = idx
	return d
}

func addCitation(m citation.Map, d schema.Document, filenames map[string]string) {
	documentID := d.MetaString("document_id")
	idx := d.MetaInt("doc_index")
	if idx == 0 {
		return
	}
	page := d.MetaInt("page")

	token := citation.NewToken(idx, page)
	var hierarchy []string
	if raw, ok := d.Metadata["heading_hierarchy"].([]string); ok {
		hierarchy = raw
	}
	m[token] = citation.Entry{
		Token:            token,
		ChunkID:          d.ID,
		DocumentIndex:    idx,
		Filename:         filenames[documentID],
		Page:             page,
		SectionHeading:   d.MetaString("section_heading"),
		Snippet:          firstSentence(d.Content),
		HeadingHierarchy: hierarchy,
	}
}

func firstSentence(text string) string {
	m := sentenceBoundary.FindString(text)
	if m == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(m)
}

// estimateTokens is the same word-count proxy used by chunker.go's section
// budgeting; there is no real tokenizer available outside the provider
// boundary, so llmclient's character-based TruncateToBudget backs the hard
// cap while this proxy backs the direct/map_reduce mode decision.
func estimateTokens(text string) int {
	return len(strings.Fields(text))
}
