package chat

import (
	"fmt"
	"strings"

	"github.com/lookatitude/docintel/citation"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/schema"
)

// systemPrompt is the chat orchestrator's fixed system prompt: answer only
// from the provided context, cite every factual claim with a citation
// token (spec §4.5 step 9, §4.3.2's citation discipline reused for chat).
const systemPrompt = `You are a document research assistant. Answer the user's question using
only the summary and retrieved chunks below. Cite every factual claim with
its citation token, e.g. [D1:p4]. If the context does not contain the
answer, say so plainly rather than guessing.`

// docIndex assigns each document a stable 1-based citation index in
// first-seen order, matching engine/context's convention so citation
// tokens mean the same thing across the workflow and chat surfaces.
func docIndex(documentIDs []string) map[string]int {
	idx := make(map[string]int, len(documentIDs))
	for i, id := range documentIDs {
		idx[id] = i + 1
	}
	return idx
}

// BuildPrompt assembles the final user-turn prompt: the rolling summary,
// the verbatim recent messages, the retrieved chunks each prefixed with
// its citation token, and the new question (spec §4.5 step 9).
func BuildPrompt(summary string, recent []domain.ChatMessage, chunks []schema.Document, documentIDs []string, question string) string {
	idx := docIndex(documentIDs)

	var sb strings.Builder
	if summary != "" {
		sb.WriteString("Conversation summary:\n")
		sb.WriteString(summary)
		sb.WriteString("\n\n")
	}
	if len(recent) > 0 {
		sb.WriteString("Recent messages:\n")
		for _, m := range recent {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
		sb.WriteString("\n")
	}
	if len(chunks) > 0 {
		sb.WriteString("Retrieved context:\n")
		for _, d := range chunks {
			token := citation.NewToken(idx[d.MetaString("document_id")], d.MetaInt("page"))
			fmt.Fprintf(&sb, "%s %s\n\n", token, d.Content)
		}
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

// BuildCitationContext renders the UI-facing citation list for a set of
// retrieved chunks (spec §4.5 step 10).
func BuildCitationContext(chunks []schema.Document, filenames map[string]string) []domain.CitationContextItem {
	out := make([]domain.CitationContextItem, 0, len(chunks))
	for _, d := range chunks {
		documentID := d.MetaString("document_id")
		page := d.MetaInt("page")
		if bbox, ok := d.Metadata["bbox"].(domain.BBox); ok && bbox.Page > 0 {
			page = bbox.Page
		}
		ref := d.ID
		if len(ref) > 8 {
			ref = ref[:8]
		}
		item := domain.CitationContextItem{
			Ref:            ref,
			ChunkID:        d.ID,
			DocumentID:     documentID,
			Filename:       filenames[documentID],
			Page:           page,
			SectionHeading: d.MetaString("section_heading"),
		}
		if bbox, ok := d.Metadata["bbox"].(domain.BBox); ok {
			item.BBox = bbox
		}
		out = append(out, item)
	}
	return out
}
