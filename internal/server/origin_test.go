package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"http://localhost:3000", "http://localhost:3000", true},
		{"HTTPS://Example.COM", "https://example.com", true},
		{"example.com", "", false},
		{"", "", false},
		{"://bad", "", false},
	}

	for _, tt := range tests {
		got, ok := normalizeOrigin(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestNormalizeOriginsWildcard(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{"*", "http://a.test", " ", "no-scheme"})

	assert.True(t, allowAll)
	assert.Equal(t, []string{"http://a.test"}, normalized)
}

func TestNormalizeOriginsEmpty(t *testing.T) {
	normalized, allowAll := normalizeOrigins(nil)
	assert.Nil(t, normalized)
	assert.False(t, allowAll)
}
