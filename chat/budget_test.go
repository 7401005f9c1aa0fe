package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lookatitude/docintel/schema"
)

func TestEnforceBudget_KeepsEverythingWhenUnderBudget(t *testing.T) {
	chunks := []schema.Document{
		schema.NewDocument("c1", "short chunk one", nil),
		schema.NewDocument("c2", "short chunk two", nil),
	}
	out, summary := EnforceBudget(chunks, "a short summary", 100)
	assert.Len(t, out, 2)
	assert.Equal(t, "a short summary", summary)
}

func TestEnforceBudget_DropsLowestRankedChunksFirst(t *testing.T) {
	big := strings.Repeat("x", promptCharBudget)
	low := schema.NewDocument("low", big, nil)
	low.Score = 0.1
	high := schema.NewDocument("high", "short", nil)
	high.Score = 0.9

	out, _ := EnforceBudget([]schema.Document{low, high}, "", 0)
	assert.Len(t, out, 1)
	assert.Equal(t, "high", out[0].ID)
}

func TestEnforceBudget_TruncatesSummaryWhenChunksAloneDontFit(t *testing.T) {
	huge := strings.Repeat("y", promptCharBudget*2)
	out, summary := EnforceBudget(nil, huge, 0)
	assert.Empty(t, out)
	assert.Less(t, len(summary), len(huge))
}
