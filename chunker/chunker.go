// Package chunker transforms parser output (page-wise paragraphs tagged by
// role, tables, key-value pairs) into domain.Chunk records satisfying the
// continuation, table/narrative link, and sibling invariants of spec §3
// (spec §4.2). Grounded on the registry-free, pure-function style of the
// retrieval package's sizing/expand helpers — chunking has no provider
// variation, so it needs no registry, just a configurable entry point.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lookatitude/docintel/domain"
)

// defaultTokenBudget is the per-chunk token ceiling a section must exceed
// before it is split into continuation chunks (spec §4.2 step 2).
const defaultTokenBudget = 500

// defaultMaxKeyValuePerChunk is the maximum number of key-value pairs packed
// into a single key_value chunk (spec §4.2 step 5).
const defaultMaxKeyValuePerChunk = 100

// ParsedParagraph is one paragraph-level unit of parser output. Role
// "sectionHeading" opens a new section; "title" is attached to the
// document's front matter but does not open a section; anything else is
// narrative content belonging to the current section.
type ParsedParagraph struct {
	Role    string // "sectionHeading" | "title" | "paragraph"
	Text    string
	Page    int
	Level   int       // heading nesting level, 1-based; ignored for non-headings
	Polygon []float64 // 8-point polygon in parser page-local space
}

// ParsedTable is one table detected by the parser, linked to the nearest
// preceding narrative chunk once chunking completes (spec §4.2 step 4).
type ParsedTable struct {
	Page         int
	Polygon      []float64
	RowCount     int
	ColCount     int
	Cells        []domain.TableCell
	FirstCaption string
	// AfterParagraphIndex is the index into Paragraphs this table
	// immediately follows, used to locate the nearest preceding narrative
	// chunk for linking.
	AfterParagraphIndex int
}

// ParsedKeyValue is one key-value pair surfaced by the parser (e.g. form
// fields), packed into key_value chunks (spec §4.2 step 5).
type ParsedKeyValue struct {
	Key     string
	Value   string
	Page    int
	Polygon []float64
}

// ParsedDocument is the full parser output for one document, the input to
// Chunk.
type ParsedDocument struct {
	DocumentID string
	Paragraphs []ParsedParagraph
	Tables     []ParsedTable
	KeyValues  []ParsedKeyValue
}

// Options configures a chunking run.
type Options struct {
	TokenBudget          int
	MaxKeyValuePerChunk  int
}

// Option mutates Options.
type Option func(*Options)

// WithTokenBudget overrides the default ~500 token per-chunk budget.
func WithTokenBudget(n int) Option {
	return func(o *Options) { o.TokenBudget = n }
}

// WithMaxKeyValuePerChunk overrides the default 100 pairs per key_value chunk.
func WithMaxKeyValuePerChunk(n int) Option {
	return func(o *Options) { o.MaxKeyValuePerChunk = n }
}

func applyOptions(opts []Option) Options {
	o := Options{TokenBudget: defaultTokenBudget, MaxKeyValuePerChunk: defaultMaxKeyValuePerChunk}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// section is an internal grouping of consecutive paragraphs under one
// heading (or the document's single implicit section, for unstructured
// input).
type section struct {
	id         string
	heading    string
	ancestors  []string // outermost first
	paragraphs []ParsedParagraph
}

// Chunk runs the full spec §4.2 pipeline: section grouping, budget-driven
// narrative splitting, table emission and linking, key-value packing,
// sentence-boundary fallback for unstructured documents, and the final
// sibling/hierarchy pass.
func Chunk(doc ParsedDocument, opts ...Option) ([]domain.Chunk, error) {
	o := applyOptions(opts)

	sections := groupSections(doc.Paragraphs)
	if len(sections) == 0 {
		return nil, nil
	}

	var chunks []domain.Chunk
	for _, sec := range sections {
		chunks = append(chunks, chunkSection(doc.DocumentID, sec, o)...)
	}

	chunks = append(chunks, keyValueChunks(doc.DocumentID, doc.KeyValues, o)...)
	chunks = linkTables(doc.DocumentID, chunks, doc.Tables, doc.Paragraphs)

	computeSiblingsAndHierarchy(chunks, sections)

	for _, c := range chunks {
		if err := domain.ValidateChunkInvariants(c); err != nil {
			return nil, fmt.Errorf("chunker: %w", err)
		}
	}
	if err := ValidateSection(chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// groupSections implements step 1: paragraphs group by heading role, with a
// nesting stack tracked via Level so HeadingHierarchy can later be populated
// with every ancestor heading, outermost first. Documents with no heading at
// all collapse to a single untitled section (the unstructured fallback path
// of step 6).
func groupSections(paragraphs []ParsedParagraph) []section {
	var sections []section
	var stack []string // ancestor heading texts, outermost first
	var levels []int

	cur := section{id: "s0"}
	hasHeading := false
	idx := 0

	flush := func() {
		if len(cur.paragraphs) > 0 || cur.heading != "" {
			sections = append(sections, cur)
		}
	}

	for _, p := range paragraphs {
		if p.Role == "sectionHeading" {
			flush()
			for len(levels) > 0 && levels[len(levels)-1] >= p.Level {
				stack = stack[:len(stack)-1]
				levels = levels[:len(levels)-1]
			}
			ancestors := append([]string{}, stack...)
			idx++
			cur = section{id: fmt.Sprintf("s%d", idx), heading: p.Text, ancestors: ancestors}
			stack = append(stack, p.Text)
			levels = append(levels, p.Level)
			hasHeading = true
			continue
		}
		if p.Role == "title" {
			continue
		}
		cur.paragraphs = append(cur.paragraphs, p)
	}
	flush()

	if !hasHeading {
		return sections
	}
	return sections
}

// chunkSection implements steps 2-3 and the unstructured fallback of step 6:
// a section within budget becomes one narrative chunk; an oversize
// unheaded section falls back to sentence-boundary splitting; any other
// oversize section splits at paragraph boundaries into continuation chunks.
func chunkSection(documentID string, sec section, o Options) []domain.Chunk {
	if len(sec.paragraphs) == 0 {
		return nil
	}

	fullText := joinParagraphs(sec.paragraphs)
	if estimateTokens(fullText) <= o.TokenBudget {
		return []domain.Chunk{buildNarrativeChunk(documentID, sec, sec.paragraphs, 0, 1, "")}
	}

	if sec.heading == "" {
		return chunkBySentence(documentID, sec, fullText, o)
	}
	return chunkByParagraphBoundary(documentID, sec, o)
}

// chunkByParagraphBoundary greedily packs consecutive paragraphs into
// continuation chunks that each stay within the token budget (spec §4.2
// step 3).
func chunkByParagraphBoundary(documentID string, sec section, o Options) []domain.Chunk {
	var groups [][]ParsedParagraph
	var cur []ParsedParagraph
	tokens := 0
	for _, p := range sec.paragraphs {
		t := estimateTokens(p.Text)
		if tokens > 0 && tokens+t > o.TokenBudget {
			groups = append(groups, cur)
			cur = nil
			tokens = 0
		}
		cur = append(cur, p)
		tokens += t
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	return assembleContinuations(documentID, sec, groups)
}

// chunkBySentence is the unstructured-document fallback (spec §4.2 step 6):
// splits on terminal punctuation when a section has no heading to split at
// paragraph boundaries with.
var sentenceBoundary = regexp.MustCompile(`[^.!?]+[.!?]+(\s+|$)`)

func chunkBySentence(documentID string, sec section, fullText string, o Options) []domain.Chunk {
	sentences := sentenceBoundary.FindAllString(fullText, -1)
	if len(sentences) == 0 {
		sentences = []string{fullText}
	}

	var groups [][]ParsedParagraph
	var cur []ParsedParagraph
	tokens := 0
	page := firstPage(sec.paragraphs)
	for _, s := range sentences {
		t := estimateTokens(s)
		if tokens > 0 && tokens+t > o.TokenBudget {
			groups = append(groups, cur)
			cur = nil
			tokens = 0
		}
		cur = append(cur, ParsedParagraph{Text: strings.TrimSpace(s), Page: page})
		tokens += t
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	return assembleContinuations(documentID, sec, groups)
}

func assembleContinuations(documentID string, sec section, groups [][]ParsedParagraph) []domain.Chunk {
	total := len(groups)
	chunks := make([]domain.Chunk, 0, total)
	parentID := ""
	for i, g := range groups {
		c := buildNarrativeChunk(documentID, sec, g, i, total, parentID)
		c.IsContinuation = i > 0
		chunks = append(chunks, c)
		parentID = c.ChunkID
	}
	return chunks
}

func buildNarrativeChunk(documentID string, sec section, paragraphs []ParsedParagraph, seq, total int, parentID string) domain.Chunk {
	text := joinParagraphs(paragraphs)
	if sec.heading != "" {
		text = sec.heading + "\n\n" + text
	}
	pageStart, pageEnd := pageRange(paragraphs)
	chunkID := domain.ChunkID(sec.id, seq, domain.ChunkNarrative)
	return domain.Chunk{
		ChunkID:          chunkID,
		DocumentID:       documentID,
		Kind:             domain.ChunkNarrative,
		Text:             text,
		Page:             pageStart,
		PageStart:        pageStart,
		PageEnd:          pageEnd,
		SectionID:        sec.id,
		SectionHeading:   sec.heading,
		HeadingHierarchy: sec.ancestors,
		ParentChunkID:    parentID,
		Sequence:         seq,
		TotalInSection:   total,
		TokenCount:       estimateTokens(text),
		BBox:             firstParagraphBBox(paragraphs),
	}
}

// linkTables implements step 4: emits a table chunk per parsed table and
// links it bidirectionally to the nearest preceding narrative chunk.
func linkTables(documentID string, chunks []domain.Chunk, tables []ParsedTable, paragraphs []ParsedParagraph) []domain.Chunk {
	for i, t := range tables {
		sectionID, heading, ancestors := sectionForParagraph(t.AfterParagraphIndex, paragraphs, chunks)
		chunkID := domain.ChunkID(sectionID, i, domain.ChunkTable)
		tableChunk := domain.Chunk{
			ChunkID:          chunkID,
			DocumentID:       documentID,
			Kind:             domain.ChunkTable,
			Table:            &domain.TablePayload{RowCount: t.RowCount, ColCount: t.ColCount, Cells: t.Cells, FirstCaption: t.FirstCaption},
			Page:             t.Page,
			PageStart:        t.Page,
			PageEnd:          t.Page,
			SectionID:        sectionID,
			SectionHeading:   heading,
			HeadingHierarchy: ancestors,
			BBox:             domain.BBoxFromPolygon(t.Page, t.Polygon),
		}

		nearest := nearestPrecedingNarrative(chunks, t.Page)
		if nearest != nil {
			tableChunk.LinkedNarrativeID = nearest.ChunkID
			for j := range chunks {
				if chunks[j].ChunkID == nearest.ChunkID {
					chunks[j].LinkedTableIDs = append(chunks[j].LinkedTableIDs, tableChunk.ChunkID)
				}
			}
		}
		chunks = append(chunks, tableChunk)
	}
	return chunks
}

func nearestPrecedingNarrative(chunks []domain.Chunk, page int) *domain.Chunk {
	var best *domain.Chunk
	for i := range chunks {
		c := &chunks[i]
		if c.Kind != domain.ChunkNarrative {
			continue
		}
		if c.PageEnd > page {
			continue
		}
		if best == nil || c.PageEnd > best.PageEnd {
			best = c
		}
	}
	return best
}

func sectionForParagraph(paragraphIdx int, paragraphs []ParsedParagraph, chunks []domain.Chunk) (id, heading string, ancestors []string) {
	if paragraphIdx < 0 || paragraphIdx >= len(paragraphs) {
		if len(chunks) > 0 {
			last := chunks[len(chunks)-1]
			return last.SectionID, last.SectionHeading, last.HeadingHierarchy
		}
		return "s0", "", nil
	}
	page := paragraphs[paragraphIdx].Page
	for i := len(chunks) - 1; i >= 0; i-- {
		if chunks[i].Kind == domain.ChunkNarrative && chunks[i].PageStart <= page {
			return chunks[i].SectionID, chunks[i].SectionHeading, chunks[i].HeadingHierarchy
		}
	}
	return "s0", "", nil
}

// keyValueChunks implements step 5: packs key-value pairs into chunks of up
// to MaxKeyValuePerChunk, starting a new chunk whenever the page jumps by
// more than one from the last packed pair (the "grouped by adjacent pages"
// rule).
func keyValueChunks(documentID string, kvs []ParsedKeyValue, o Options) []domain.Chunk {
	if len(kvs) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	var cur []domain.KeyValuePair
	lastPage := -1
	flush := func(seq int) {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, domain.Chunk{
			ChunkID:       domain.ChunkID("kv", seq, domain.ChunkKeyValue),
			DocumentID:    documentID,
			Kind:          domain.ChunkKeyValue,
			KeyValuePairs: cur,
			Page:          cur[0].Page,
			PageStart:     cur[0].Page,
			PageEnd:       cur[len(cur)-1].Page,
			SectionID:     "kv",
		})
		cur = nil
	}

	seq := 0
	for _, kv := range kvs {
		newPage := lastPage >= 0 && kv.Page-lastPage > 1
		if len(cur) >= o.MaxKeyValuePerChunk || newPage {
			flush(seq)
			seq++
		}
		cur = append(cur, domain.KeyValuePair{
			Key:   kv.Key,
			Value: kv.Value,
			Page:  kv.Page,
			BBox:  domain.BBoxFromPolygon(kv.Page, kv.Polygon),
		})
		lastPage = kv.Page
	}
	flush(seq)
	return chunks
}

// computeSiblingsAndHierarchy implements step 7: after all chunks exist,
// each chunk's siblings are the other chunks sharing its section id, and its
// heading hierarchy is refreshed from the section it belongs to (already set
// at construction time for narrative chunks; this pass also back-fills table
// chunks created after section assembly).
func computeSiblingsAndHierarchy(chunks []domain.Chunk, sections []section) {
	bySection := make(map[string][]string)
	for _, c := range chunks {
		bySection[c.SectionID] = append(bySection[c.SectionID], c.ChunkID)
	}
	for i := range chunks {
		var siblings []string
		for _, id := range bySection[chunks[i].SectionID] {
			if id != chunks[i].ChunkID {
				siblings = append(siblings, id)
			}
		}
		chunks[i].SiblingChunkIDs = siblings
	}
}

func joinParagraphs(paragraphs []ParsedParagraph) string {
	parts := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if strings.TrimSpace(p.Text) != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func pageRange(paragraphs []ParsedParagraph) (start, end int) {
	if len(paragraphs) == 0 {
		return 0, 0
	}
	start, end = paragraphs[0].Page, paragraphs[0].Page
	for _, p := range paragraphs {
		if p.Page < start {
			start = p.Page
		}
		if p.Page > end {
			end = p.Page
		}
	}
	return start, end
}

func firstPage(paragraphs []ParsedParagraph) int {
	if len(paragraphs) == 0 {
		return 0
	}
	return paragraphs[0].Page
}

// firstParagraphBBox covers the first page's paragraphs only, per spec §4.2:
// "for narrative chunks, bbox covers the first page's paragraphs only".
func firstParagraphBBox(paragraphs []ParsedParagraph) domain.BBox {
	if len(paragraphs) == 0 {
		return domain.BBox{}
	}
	page := paragraphs[0].Page
	box := domain.BBox{Page: page}
	set := false
	for _, p := range paragraphs {
		if p.Page != page || len(p.Polygon) < 8 {
			continue
		}
		b := domain.BBoxFromPolygon(page, p.Polygon)
		if !set {
			box = b
			set = true
			continue
		}
		if b.X0 < box.X0 {
			box.X0 = b.X0
		}
		if b.Y0 < box.Y0 {
			box.Y0 = b.Y0
		}
		if b.X1 > box.X1 {
			box.X1 = b.X1
		}
		if b.Y1 > box.Y1 {
			box.Y1 = b.Y1
		}
	}
	return box
}

// estimateTokens is a rough word-count-based token estimator. The parser
// emits plain text with no model-specific tokenizer available at chunk time,
// so section-budget decisions use this proxy rather than an exact
// model-specific count (engine/context uses the same word-count proxy, with
// llmclient's character-based TruncateToBudget as its hard cap).
func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

// ValidateSection checks the cross-chunk invariants that require the full
// set of chunks in a section: every non-zero SiblingChunkIDs entry must
// resolve to another chunk in the same slice, and every table's
// LinkedNarrativeID (if set) must resolve to a narrative chunk that lists it
// back in LinkedTableIDs.
func ValidateSection(chunks []domain.Chunk) error {
	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}
	for _, c := range chunks {
		for _, sib := range c.SiblingChunkIDs {
			if _, ok := byID[sib]; !ok {
				return fmt.Errorf("chunker: chunk %s references missing sibling %s", c.ChunkID, sib)
			}
		}
		if c.Kind == domain.ChunkTable && c.LinkedNarrativeID != "" {
			n, ok := byID[c.LinkedNarrativeID]
			if !ok {
				return fmt.Errorf("chunker: table chunk %s links to missing narrative chunk %s", c.ChunkID, c.LinkedNarrativeID)
			}
			found := false
			for _, id := range n.LinkedTableIDs {
				if id == c.ChunkID {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("chunker: narrative chunk %s missing back-link to table %s", n.ChunkID, c.ChunkID)
			}
		}
	}
	return nil
}
