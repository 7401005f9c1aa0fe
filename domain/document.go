// Package domain defines the persistent data model shared by the pipeline
// runtime, retrieval stack, workflow engine, and chat orchestrator: documents,
// chunks, collections, chat sessions/messages, workflow templates/runs,
// extraction records, job states, and artifact pointers (spec §3).
package domain

import "time"

// DocumentStatus tracks a Document's monotonic progress through the
// ingestion pipeline.
type DocumentStatus string

const (
	DocumentUploaded  DocumentStatus = "uploaded"
	DocumentParsing   DocumentStatus = "parsing"
	DocumentChunking  DocumentStatus = "chunking"
	DocumentEmbedding DocumentStatus = "embedding"
	DocumentCompleted DocumentStatus = "completed"
	DocumentFailed    DocumentStatus = "failed"
)

// documentStatusOrder gives each status its position in the monotonic
// progression; CanTransition uses it to reject backward transitions.
var documentStatusOrder = map[DocumentStatus]int{
	DocumentUploaded:  0,
	DocumentParsing:   1,
	DocumentChunking:  2,
	DocumentEmbedding: 3,
	DocumentCompleted: 4,
}

// CanTransition reports whether a Document may move from 'from' to 'to'.
// Status is monotonic except that any non-terminal status may transition to
// DocumentFailed.
func CanTransition(from, to DocumentStatus) bool {
	if to == DocumentFailed {
		return from != DocumentCompleted
	}
	fromOrd, fromOK := documentStatusOrder[from]
	toOrd, toOK := documentStatusOrder[to]
	return fromOK && toOK && toOrd > fromOrd
}

// Document is an uploaded file tracked through parsing, chunking, and
// embedding.
type Document struct {
	ID            string
	OwnerUserID   string
	OrgID         string
	Filename      string
	ContentHash   string // SHA-256 of the raw bytes; unique per (org, hash)
	ByteSize      int64
	PageCount     int
	Status        DocumentStatus
	ParserUsed    string
	ParseArtifact ArtifactPointer
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Collection is a named, owned set of documents used to scope retrieval.
type Collection struct {
	ID          string
	OwnerUserID string
	OrgID       string
	Name        string
	DocumentIDs []string
	CreatedAt   time.Time
}
