package chat

import (
	"sort"

	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/schema"
)

// promptCharBudget is the hard character budget the assembled prompt must
// fit under, standing in for a real tokenizer the same way engine/context's
// hardCharCap does (spec §4.5 step 8).
const promptCharBudget = 400_000

// EnforceBudget trims chunks and, only if that is not enough, the rolling
// summary, to fit the prompt under promptCharBudget. Recent verbatim
// messages are never trimmed (spec §4.5 step 8).
func EnforceBudget(chunks []schema.Document, summary string, recentChars int) ([]schema.Document, string) {
	available := promptCharBudget - recentChars
	if available < 0 {
		available = 0
	}

	ordered := make([]schema.Document, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	chunkChars := func(docs []schema.Document) int {
		n := 0
		for _, d := range docs {
			n += len(d.Content)
		}
		return n
	}

	for len(ordered) > 0 && chunkChars(ordered)+len(summary) > available {
		ordered = ordered[:len(ordered)-1] // drop the lowest-ranked (last) chunk
	}

	if chunkChars(ordered)+len(summary) <= available {
		return ordered, summary
	}

	remaining := available - chunkChars(ordered)
	if remaining < 0 {
		remaining = 0
	}
	return ordered, llmclient.TruncateToBudget(summary, remaining)
}
