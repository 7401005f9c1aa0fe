package domain

import "time"

// ChatSession is a conversational context scoped to a user, optionally a
// collection, and an explicit document list.
type ChatSession struct {
	ID             string
	OwnerUserID    string
	CollectionID   string // optional
	DocumentIDs    []string
	MessageCount   int
	SummaryText    string
	SummaryFacts   []string
	LastSummarized int // index of the last message folded into SummaryText
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VerbatimThreshold is the number of most-recent messages the chat
// orchestrator always keeps verbatim; anything older is eligible for
// summarization (spec §4.5 step 2).
const VerbatimThreshold = 8

// NeedsResummarization reports whether the session's cached summary is
// stale enough that the orchestrator should recompute it (spec §4.5, §8
// invariant: last_summarized_index <= message_count - verbatim_threshold).
func (s ChatSession) NeedsResummarization() bool {
	return s.MessageCount-VerbatimThreshold > s.LastSummarized
}

// ChatRole identifies who authored a ChatMessage.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// CitationContextItem is one entry of a ChatMessage's citation context: a
// retrieved chunk rendered for UI navigation/highlighting (spec §4.5 step 10).
type CitationContextItem struct {
	Ref            string // first 8 characters of the chunk id
	ChunkID        string
	DocumentID     string
	Filename       string
	Page           int
	SectionHeading string
	BBox           BBox
}

// ComparisonMetadata is attached to assistant messages produced by the
// comparison flow (spec §4.5.1).
type ComparisonMetadata struct {
	DocumentLabels map[string]string // documentID -> "Document A", "Document B", ...
	Pairs          []ComparisonPair
	Clusters       []ComparisonCluster
	Unpaired       []string // chunk ids not consumed by any pair/cluster
}

// ComparisonPair is a matched chunk pair across exactly two documents.
type ComparisonPair struct {
	Topic        string
	ChunkAID     string
	ChunkBID     string
	Similarity   float64
}

// ComparisonCluster is a matched group of chunks across three or more
// documents, anchored on the first document's chunk.
type ComparisonCluster struct {
	Topic    string
	AnchorID string
	MemberIDs map[string]string // documentID -> chunk id
}

// ChatMessage is one append-only entry in a ChatSession's log. Messages are
// never mutated after write.
type ChatMessage struct {
	ID              string
	SessionID       string
	Role            ChatRole
	Content         string
	SourceChunkIDs  []string
	Usage           Usage
	Comparison      *ComparisonMetadata
	CitationContext []CitationContextItem
	Interrupted     bool // true if an in-flight stream was abandoned on disconnect
	CreatedAt       time.Time
}

// Usage mirrors schema.Usage for persistence without importing the schema
// package from domain (domain stays free of upper-layer dependencies).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CacheReadTokens  int
	CacheWriteTokens int
}
