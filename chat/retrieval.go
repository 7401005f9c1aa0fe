package chat

import (
	"context"

	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/schema"
)

// RetrievalDeps bundles the hybrid+rerank retriever and the chunk fetcher
// context expansion needs, both already wired by the composition root
// (spec §4.4/§4.5 steps 6-7).
type RetrievalDeps struct {
	Retriever retrieval.Retriever
	Expander  retrieval.ChunkFetcher
}

// RetrieveContext runs hybrid retrieval, re-ranking, and context expansion
// for a single query, all sized by queryType (spec §4.5 steps 6-7). Extra
// options (e.g. retrieval.WithMetadata to scope to one document, for the
// comparison flow's per-document fan-out) are layered on top of the sizing
// profile's candidate pool.
func RetrieveContext(ctx context.Context, deps RetrievalDeps, query string, queryType retrieval.QueryType, extra ...retrieval.Option) ([]schema.Document, error) {
	profile := retrieval.SizingFor(queryType)

	opts := append([]retrieval.Option{retrieval.WithTopK(profile.CandidatePool)}, extra...)
	docs, err := deps.Retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	docs = normalizeMetadata(docs)
	if len(docs) > profile.TopK {
		docs = docs[:profile.TopK]
	}

	if deps.Expander == nil {
		return docs, nil
	}
	expanded, err := retrieval.Expand(ctx, deps.Expander, docs, profile)
	if err != nil {
		return docs, nil
	}
	return expanded, nil
}

// normalizeMetadata fills in zero-value defaults for the metadata keys
// downstream citation-context and comparison-topic logic expects, so a
// document missing an optional field (e.g. an expanded chunk with no
// heading hierarchy) never causes a type assertion to panic (spec §4.5
// step 6 "normalize chunk metadata").
func normalizeMetadata(docs []schema.Document) []schema.Document {
	out := make([]schema.Document, len(docs))
	for i, d := range docs {
		if d.Metadata == nil {
			d.Metadata = make(map[string]any)
		}
		if _, ok := d.Metadata["heading_hierarchy"]; !ok {
			d.Metadata["heading_hierarchy"] = []string{}
		}
		out[i] = d
	}
	return out
}
