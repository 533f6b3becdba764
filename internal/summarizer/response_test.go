package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		want       Parsed
		wantReason string
	}{
		{
			name: "plain json",
			raw:  `{"title":"Council Meeting","date":"2024-01-01","summary":"Intro. • point one"}`,
			want: Parsed{Title: "Council Meeting", Date: "2024-01-01", Summary: "Intro. • point one"},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"title\":\"Council\",\"date\":\"2024-03-05\",\"summary\":\"s\"}\n```",
			want: Parsed{Title: "Council", Date: "2024-03-05", Summary: "s"},
		},
		{
			name: "prose around object",
			raw:  "Here is the result:\n{\"title\":\"T\",\"date\":\"2024-03-05\",\"summary\":\"s\"}\nThanks",
			want: Parsed{Title: "T", Date: "2024-03-05", Summary: "s"},
		},
		{
			name: "empty strings are still parsed",
			raw:  `{"title":"","date":"","summary":""}`,
			want: Parsed{},
		},
		{name: "empty", raw: "  ", wantReason: "empty response"},
		{name: "no object", raw: "I cannot help with that.", wantReason: "no JSON object"},
		{name: "missing date", raw: `{"title":"T","summary":"s"}`, wantReason: `missing field "date"`},
		{name: "null title", raw: `{"title":null,"date":"2024-01-01","summary":"s"}`, wantReason: `missing field "title"`},
		{name: "missing summary", raw: `{"title":"T","date":"2024-01-01"}`, wantReason: `missing field "summary"`},
		{name: "wrong type", raw: `{"title":"T","date":20240101,"summary":"s"}`, wantReason: "decode json"},
		{name: "truncated", raw: `{"title":"T","date":"2024`, wantReason: "decode json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := ParseResponse(tt.raw)
			if tt.wantReason != "" {
				malformed, ok := result.(Malformed)
				require.True(t, ok, "expected Malformed, got %#v", result)
				assert.Contains(t, malformed.Reason, tt.wantReason)
				assert.Equal(t, tt.raw, malformed.Raw)
				return
			}
			parsed, ok := result.(Parsed)
			require.True(t, ok, "expected Parsed, got %#v", result)
			assert.Equal(t, tt.want, parsed)
		})
	}
}

func TestBuildPromptEmbedsTextAndContract(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt("MINUTES OF THE 3RD MEETING OF CITY COUNCIL")
	assert.Contains(t, prompt, "MINUTES OF THE 3RD MEETING OF CITY COUNCIL")
	for _, want := range []string{`"title"`, `"date"`, `"summary"`, "YYYY-MM-DD", "• ", "attendance", "bylaws"} {
		assert.Contains(t, prompt, want)
	}
}
