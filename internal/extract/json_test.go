package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsolateJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Here is the extraction you asked for: {"a":1} Let me know if you need more.`, `{"a":1}`},
		{"leading whitespace", "\n\n  {\"a\": 1}\n", `{"a": 1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"no object", "I could not read the document.", ""},
		{"empty", "", ""},
		{"only close brace", "}", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isolateJSON(tc.in))
		})
	}
}
