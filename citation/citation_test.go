package citation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lookatitude/docintel/citation"
)

func TestNewToken(t *testing.T) {
	assert.Equal(t, citation.Token("[D1:p12]"), citation.NewToken(1, 12))
}

func TestExtractTokens(t *testing.T) {
	text := "Revenue grew [D1:p3] year over year [D2:p10], see also [D1:p3] again. Not a token: [Dx:p1]."
	got := citation.ExtractTokens(text)
	assert.Equal(t, []citation.Token{"[D1:p3]", "[D2:p10]"}, got)
}

func TestAdaptiveMinimum(t *testing.T) {
	cases := []struct {
		name           string
		docs           int
		contextLen     int
		whitelistSize  int
		want           int
	}{
		{"single doc", 1, 100, 20, 3},
		{"two docs", 2, 100, 20, 4},
		{"many docs capped at 15", 20, 100, 100, 15},
		{"long context adds two", 2, 200_000, 100, 6},
		{"sparse whitelist clamps down", 2, 100, 4, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := citation.AdaptiveMinimum(c.docs, c.contextLen, c.whitelistSize)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestValidate_UnknownCitation(t *testing.T) {
	whitelist := citation.Map{
		"[D1:p1]": {Token: "[D1:p1]"},
		"[D1:p2]": {Token: "[D1:p2]"},
	}
	result := citation.Validate("See [D1:p1] and [D3:p1].", whitelist, 1, 100)
	assert.False(t, result.OK())
	assert.Equal(t, []citation.Token{"[D3:p1]"}, result.Unknown)
}

func TestValidate_BelowMinimumIsWarningNotFailure(t *testing.T) {
	whitelist := citation.Map{
		"[D1:p1]": {Token: "[D1:p1]"},
		"[D1:p2]": {Token: "[D1:p2]"},
		"[D1:p3]": {Token: "[D1:p3]"},
		"[D1:p4]": {Token: "[D1:p4]"},
	}
	result := citation.Validate("See [D1:p1].", whitelist, 1, 100)
	assert.True(t, result.OK())
	assert.True(t, result.BelowMinimum)
	assert.Equal(t, 1, result.Density)
}

func TestCorrectivePreamble_CapsAtSixtyTokens(t *testing.T) {
	whitelist := make(citation.Map)
	for i := 0; i < 100; i++ {
		tok := citation.NewToken(1, i+1)
		whitelist[tok] = citation.Entry{Token: tok}
	}
	preamble := citation.CorrectivePreamble([]citation.Token{"[D9:p1]"}, whitelist)
	assert.Contains(t, preamble, "[D9:p1]")
	assert.Contains(t, preamble, "may only cite")
	// the invalid token plus the first 60 of the 100 allowed tokens
	assert.Len(t, citation.ExtractTokens(preamble), 61)
}
