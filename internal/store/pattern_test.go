package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompilePattern_RedisSemantics(t *testing.T) {
	tests := []struct {
		pattern string
		match   []string
		noMatch []string
	}{
		{"h?llo", []string{"hello", "hallo"}, []string{"hllo", "heello"}},
		{"h*llo", []string{"hllo", "heeeello"}, []string{"hell"}},
		{"h[ae]llo", []string{"hello", "hallo"}, []string{"hillo"}},
		{"h[^e]llo", []string{"hallo", "hbllo"}, []string{"hello", "hllo"}},
		{"h[a-b]llo", []string{"hallo", "hbllo"}, []string{"hcllo"}},
		{"h[b-a]llo", []string{"hallo", "hbllo"}, []string{"hcllo"}},
		{"h[a-cx]llo", []string{"hbllo", "hxllo"}, []string{"hdllo"}},
		{"h[^a-cx]llo", []string{"hdllo"}, []string{"hbllo", "hxllo"}},
		{"h[-a]llo", []string{"h-llo", "hallo"}, []string{"hbllo"}},
		{"h[a-]llo", []string{"h-llo", "hallo"}, []string{"hbllo"}},
		{"h[-]llo", []string{"h-llo"}, []string{"hallo"}},
		{"h[!]llo", []string{"h!llo"}, []string{"hallo"}},
		{`h[\]]llo`, []string{"h]llo"}, []string{"hallo"}},
		{"h[^]llo", []string{"hallo"}, []string{"hllo"}},
		{"h[]llo", nil, []string{"hllo", "hallo", "h[]llo"}},
		{"{a,b}", []string{"{a,b}"}, []string{"a", "b"}},
		{"a,b", []string{"a,b"}, []string{"a"}},
		{`a\*`, []string{"a*"}, []string{"ab"}},
		{`a\`, []string{`a\`}, []string{"a"}},
		{"tenant:[^a]:*", []string{"tenant:b:x"}, []string{"tenant:a:x"}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			g, err := CompilePattern(tt.pattern)
			require.NoError(t, err)
			for _, s := range tt.match {
				assert.True(t, g.Match(s), "%q should match %q", tt.pattern, s)
			}
			for _, s := range tt.noMatch {
				assert.False(t, g.Match(s), "%q should not match %q", tt.pattern, s)
			}
		})
	}
}

func TestCompilePattern_Invalid(t *testing.T) {
	for _, pattern := range []string{"[", "user:[abc", `user:[\`, "[^"} {
		t.Run(pattern, func(t *testing.T) {
			_, err := CompilePattern(pattern)
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}
