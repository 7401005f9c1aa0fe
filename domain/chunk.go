package domain

import "fmt"

// ChunkKind identifies the structural shape of a Chunk's content.
type ChunkKind string

const (
	ChunkNarrative ChunkKind = "narrative"
	ChunkTable     ChunkKind = "table"
	ChunkKeyValue  ChunkKind = "key_value"
)

// BBox is an axis-aligned bounding box on a single page, used for PDF
// highlight rendering. Coordinates are in the parser's page-local space.
type BBox struct {
	Page int
	X0   float64
	Y0   float64
	X1   float64
	Y1   float64
}

// BBoxFromPolygon converts a parser-supplied 8-point polygon
// (x0,y0,x1,y1,x2,y2,x3,y3) into an axis-aligned BBox by taking the min/max
// of the x and y coordinates (spec §4.2).
func BBoxFromPolygon(page int, polygon []float64) BBox {
	if len(polygon) < 8 {
		return BBox{Page: page}
	}
	b := BBox{Page: page, X0: polygon[0], Y0: polygon[1], X1: polygon[0], Y1: polygon[1]}
	for i := 0; i+1 < len(polygon); i += 2 {
		x, y := polygon[i], polygon[i+1]
		if x < b.X0 {
			b.X0 = x
		}
		if x > b.X1 {
			b.X1 = x
		}
		if y < b.Y0 {
			b.Y0 = y
		}
		if y > b.Y1 {
			b.Y1 = y
		}
	}
	return b
}

// TableCell is a single cell of a Chunk's TablePayload.
type TableCell struct {
	RowIndex    int
	ColIndex    int
	Text        string
	IsHeader    bool
	RowSpan     int
	ColSpan     int
}

// TablePayload is the structured content of a table chunk.
type TablePayload struct {
	RowCount    int
	ColCount    int
	Cells       []TableCell
	FirstCaption string // first-paragraph context preceding the table
}

// KeyValuePair is one field/value pair captured by the parser's key-value
// extraction (e.g. form fields), with its own bounding box for highlighting.
type KeyValuePair struct {
	Key   string
	Value string
	Page  int
	BBox  BBox
}

// Chunk is an atomic retrieval unit derived from a parsed Document (spec §3).
// Chunks are immutable once written; re-ingestion produces new chunks with
// new ids rather than mutating existing ones.
type Chunk struct {
	ChunkID    string // structured "{section}_{seq}_{kind}", unique per document
	DocumentID string
	Index      int

	Kind            ChunkKind
	Text            string        // narrative prose (empty for pure table/key_value chunks)
	Table           *TablePayload // set when Kind == ChunkTable
	KeyValuePairs   []KeyValuePair

	Page      int
	PageStart int
	PageEnd   int

	SectionID        string
	SectionHeading   string
	HeadingHierarchy []string // ordered ancestor headings, outermost first

	IsContinuation  bool
	ParentChunkID   string // set iff IsContinuation; must resolve within the same section
	Sequence        int
	TotalInSection  int
	SiblingChunkIDs []string

	LinkedNarrativeID string   // set on table chunks: nearest preceding narrative chunk
	LinkedTableIDs    []string // set on narrative chunks: table chunks that link back to it

	TokenCount int
	BBox       BBox

	Embedding    []float32
	TextSearchID string // opaque handle into the full-text search column
}

// ChunkID builds the structured chunk identifier used throughout the system:
// "{section}_{seq}_{kind}".
func ChunkID(sectionID string, seq int, kind ChunkKind) string {
	return fmt.Sprintf("%s_%d_%s", sectionID, seq, kind)
}

// ValidateChunkInvariants checks a single chunk against the invariants of
// spec §3/§8 that can be verified without a full chunk-store lookup
// (continuation/section consistency). Cross-chunk invariants — sibling
// existence, narrative/table bidirectionality — are checked by chunker.Chunk
// once every chunk of the document is assembled (see chunker.ValidateSection).
func ValidateChunkInvariants(c Chunk) error {
	if c.IsContinuation && c.ParentChunkID == "" {
		return fmt.Errorf("chunk %s: is_continuation set but parent_chunk_id empty", c.ChunkID)
	}
	if c.Kind == ChunkKeyValue && len(c.KeyValuePairs) > 0 {
		for i, kv := range c.KeyValuePairs {
			if kv.BBox == (BBox{}) {
				return fmt.Errorf("chunk %s: key_value pair %d missing bounding box", c.ChunkID, i)
			}
		}
	}
	return nil
}
