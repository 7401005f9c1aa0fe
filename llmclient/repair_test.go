package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma object", `{"a": 1,}`, `{"a": 1}`},
		{"trailing comma array", `[1, 2,]`, `[1, 2]`},
		{"preamble and epilogue", "Sure, here you go:\n{\"a\": 1}\nLet me know if you need anything else.", `{"a": 1}`},
		{"unclosed brace", `{"a": 1`, `{"a": 1}`},
		{"unterminated string", `{"a": "value`, `{"a": "value"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairJSON(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON_RepairsOnFailure(t *testing.T) {
	var out map[string]any
	err := ParseJSON(`{"a": 1,}`, &out)
	assert.NoError(t, err)
	assert.Equal(t, float64(1), out["a"])
}
