package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookatitude/docintel/core"
)

func TestGet_Builtins(t *testing.T) {
	for _, name := range []string{"financial_analysis", "generic_extraction", "generic_synthesis"} {
		g, err := Get(name)
		require.NoError(t, err)
		assert.NotNil(t, g)
	}
}

func TestGet_Missing(t *testing.T) {
	_, err := Get("does_not_exist")
	require.Error(t, err)
	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.ErrConfiguration, ce.Code)
}

func TestList_IncludesBuiltins(t *testing.T) {
	names := List()
	assert.Contains(t, names, "financial_analysis")
	assert.Contains(t, names, "generic_extraction")
}

func TestFinancialAnalysisGenerator_EmbedsContract(t *testing.T) {
	g, err := Get("financial_analysis")
	require.NoError(t, err)

	out, err := g(map[string]any{"focus": "liquidity risk"}, "")
	require.NoError(t, err)
	assert.Contains(t, out.SystemPrompt, "currency")
	assert.Contains(t, out.SystemPrompt, "meta")
	assert.Contains(t, out.SystemPrompt, "liquidity risk")
	assert.Contains(t, out.UserMessageTemplate, ContextPlaceholder)
}

func TestFinancialAnalysisGenerator_MinSections(t *testing.T) {
	g, _ := Get("financial_analysis")
	out, err := g(nil, "")
	require.NoError(t, err)
	for _, key := range financialAnalysisMinSections {
		assert.Contains(t, out.SystemPrompt, key)
	}
}

func TestGenericExtractionGenerator_CustomPromptAppendsContext(t *testing.T) {
	g, _ := Get("generic_extraction")
	out, err := g(nil, "Pull out every invoice line item.")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.UserMessageTemplate, "Pull out every invoice line item."))
	assert.Contains(t, out.UserMessageTemplate, ContextPlaceholder)
}

func TestGenericExtractionGenerator_CustomPromptAlreadyHasContext(t *testing.T) {
	g, _ := Get("generic_extraction")
	custom := "Use this: " + ContextPlaceholder + " to answer."
	out, err := g(nil, custom)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.UserMessageTemplate, ContextPlaceholder))
}

func TestRenderUserMessage(t *testing.T) {
	rendered := RenderUserMessage("before "+ContextPlaceholder+" after", "CTX")
	assert.Equal(t, "before CTX after", rendered)
}
