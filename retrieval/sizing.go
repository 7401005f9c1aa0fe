package retrieval

// QueryType classifies a chat question for query-adaptive retrieval sizing.
type QueryType string

const (
	QueryDataExtraction QueryType = "data_extraction"
	QuerySummarization  QueryType = "summarization"
	QueryEntityLookup   QueryType = "entity_lookup"
	QueryGeneralQA      QueryType = "general_qa"
	QueryComparison     QueryType = "comparison"
)

// SizingProfile holds the candidate-pool size, post-rerank top-k, per-chunk
// context-expansion budget, and overall chunk cap for a given query type.
type SizingProfile struct {
	CandidatePool int
	TopK          int
	MaxExpansion  int
	MaxTotal      int
}

// sizingTable holds the per-query-type pool/top-k/expansion/total budget.
// Ranges are resolved to their upper bound, sizing for the worst case and
// letting downstream budget enforcement trim.
var sizingTable = map[QueryType]SizingProfile{
	QueryDataExtraction: {CandidatePool: 25, TopK: 12, MaxExpansion: 2, MaxTotal: 24},
	QuerySummarization:  {CandidatePool: 20, TopK: 10, MaxExpansion: 1, MaxTotal: 15},
	QueryEntityLookup:   {CandidatePool: 20, TopK: 10, MaxExpansion: 1, MaxTotal: 10},
	QueryGeneralQA:      {CandidatePool: 20, TopK: 8, MaxExpansion: 1, MaxTotal: 18},
	QueryComparison:     {CandidatePool: 20, TopK: 8, MaxExpansion: 2, MaxTotal: 20},
}

// defaultSizing is used for general_qa and any unrecognized query type.
var defaultSizing = sizingTable[QueryGeneralQA]

// SizingFor returns the sizing profile for a query type, falling back to
// the general_qa default for unknown types.
func SizingFor(qt QueryType) SizingProfile {
	if p, ok := sizingTable[qt]; ok {
		return p
	}
	return defaultSizing
}
