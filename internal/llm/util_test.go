package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bare object", input: `  {"score": 4}  `, want: `{"score": 4}`},
		{name: "json fence", input: "```json\n{\"score\": 4}\n```", want: `{"score": 4}`},
		{name: "fence with language tag", input: "```JSON5\n{\"score\": 4}\n```", want: `{"score": 4}`},
		{name: "fence without language", input: "```\n[\"a\"]\n```", want: `["a"]`},
		{name: "single line fence keeps content", input: "```{\"score\": 4}```", want: `{"score": 4}`},
		{name: "signal preamble", input: "Market check complete.\nSCORE follows: {\"score\": 3, \"tam_millions\": 120}", want: `{"score": 3, "tam_millions": 120}`},
		{name: "ideas wrapper with trailer", input: "{\"ideas\": [{\"business\": \"HVAC dispatch\"}]}\nHope this helps.", want: `{"ideas": [{"business": "HVAC dispatch"}]}`},
		{name: "array after preamble", input: "Ideas:\n[{\"business\": \"Roofers\", \"pain\": \"estimates\"}] done", want: `[{"business": "Roofers", "pain": "estimates"}]`},
		{name: "object opener wins over later array", input: "note {\"a\": [1]} then [2]", want: `{"a": [1]}`},
		{name: "no json at all", input: "VERDICT: KILL - crowded market", want: "VERDICT: KILL - crowded market"},
		{name: "unbalanced object returned as is", input: "partial {\"score\": 4", want: "partial {\"score\": 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestCleanJSONBlock_OutputDecodes(t *testing.T) {
	raw := "Here is what I found about dental clinics:\n\n" +
		`{"score": 2, "evidence": "owners cite \"no-shows\" {weekly}", "links": ["a", "b"]}` +
		"\n\nLet me know if you need more."

	var got struct {
		Score    int      `json:"score"`
		Evidence string   `json:"evidence"`
		Links    []string `json:"links"`
	}
	require.NoError(t, json.Unmarshal([]byte(CleanJSONBlock(raw)), &got))
	assert.Equal(t, 2, got.Score)
	assert.Equal(t, `owners cite "no-shows" {weekly}`, got.Evidence)
	assert.Equal(t, []string{"a", "b"}, got.Links)
}

func TestExtractBalanced(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		open    byte
		closing byte
		want    string
	}{
		{name: "nested objects stop at matching brace", input: `{"a": {"b": 1}} {"c": 2}`, open: '{', closing: '}', want: `{"a": {"b": 1}}`},
		{name: "closing brace inside string ignored", input: `{"pain": "quotes like }"} tail`, open: '{', closing: '}', want: `{"pain": "quotes like }"}`},
		{name: "escaped quote keeps string open", input: `{"r": "a \"}\" b"}`, open: '{', closing: '}', want: `{"r": "a \"}\" b"}`},
		{name: "escaped backslash closes string", input: `{"path": "C:\\"} rest`, open: '{', closing: '}', want: `{"path": "C:\\"}`},
		{name: "array of arrays", input: `[[1], [2, [3]]],`, open: '[', closing: ']', want: `[[1], [2, [3]]]`},
		{name: "never balances", input: `{"a": {"b": 1}`, open: '{', closing: '}', want: ""},
		{name: "wrong opener", input: `["a"]`, open: '{', closing: '}', want: ""},
		{name: "empty", input: "", open: '[', closing: ']', want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBalanced(tt.input, tt.open, tt.closing))
		})
	}
}

func TestExtractJSONObjectAndArray(t *testing.T) {
	assert.Equal(t, `{"x": [1]}`, extractJSONObject(`{"x": [1]} trailing`))
	assert.Empty(t, extractJSONObject(`[{"x": 1}]`))
	assert.Equal(t, `[{"x": 1}]`, extractJSONArray(`[{"x": 1}] trailing`))
	assert.Empty(t, extractJSONArray(`{"x": [1]}`))
}
