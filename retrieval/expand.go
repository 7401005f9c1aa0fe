package retrieval

import (
	"context"
	"fmt"

	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/schema"
)

// ChunkFetcher loads full chunk records by id, backing context expansion's
// need for continuation/sibling/linked-chunk metadata beyond what a
// schema.Document carries (spec §4.4 step 5).
type ChunkFetcher interface {
	GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error)
}

// Expand grows a retrieved set with each chunk's structurally related
// chunks (continuation parent, siblings in the same section, and
// table<->narrative links), honoring a per-chunk expansion budget and an
// overall cap on the final chunk count (spec §4.4 step 5).
func Expand(ctx context.Context, fetcher ChunkFetcher, docs []schema.Document, profile SizingProfile) ([]schema.Document, error) {
	if profile.MaxExpansion <= 0 || len(docs) == 0 {
		return capDocs(docs, profile.MaxTotal), nil
	}

	seed := make([]domain.Chunk, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	chunks, err := fetcher.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("expand: fetch seed chunks: %w", err)
	}
	seed = append(seed, chunks...)

	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		seen[d.ID] = true
	}

	var extraIDs []string
	for _, c := range seed {
		related := relatedChunkIDs(c)
		added := 0
		for _, id := range related {
			if added >= profile.MaxExpansion {
				break
			}
			if seen[id] || id == "" {
				continue
			}
			seen[id] = true
			extraIDs = append(extraIDs, id)
			added++
		}
	}

	if len(extraIDs) == 0 {
		return capDocs(docs, profile.MaxTotal), nil
	}

	extraChunks, err := fetcher.GetChunks(ctx, extraIDs)
	if err != nil {
		return nil, fmt.Errorf("expand: fetch related chunks: %w", err)
	}

	out := append([]schema.Document{}, docs...)
	for _, c := range extraChunks {
		out = append(out, chunkToDocument(c))
	}
	return capDocs(out, profile.MaxTotal), nil
}

// relatedChunkIDs lists the structurally linked chunk ids for c, in
// priority order: continuation parent first, then narrative/table links,
// then same-section siblings.
func relatedChunkIDs(c domain.Chunk) []string {
	var ids []string
	if c.IsContinuation && c.ParentChunkID != "" {
		ids = append(ids, c.ParentChunkID)
	}
	if c.LinkedNarrativeID != "" {
		ids = append(ids, c.LinkedNarrativeID)
	}
	ids = append(ids, c.LinkedTableIDs...)
	ids = append(ids, c.SiblingChunkIDs...)
	return ids
}

func chunkToDocument(c domain.Chunk) schema.Document {
	return schema.NewDocument(c.ChunkID, c.Text, map[string]any{
		"document_id":     c.DocumentID,
		"section_id":      c.SectionID,
		"section_heading": c.SectionHeading,
		"page":            c.Page,
		"kind":            string(c.Kind),
		"expanded":        true,
	})
}

func capDocs(docs []schema.Document, maxTotal int) []schema.Document {
	if maxTotal > 0 && len(docs) > maxTotal {
		return docs[:maxTotal]
	}
	return docs
}
