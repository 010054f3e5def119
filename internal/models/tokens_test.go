package models

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"exact boundary", "abcd", 1},
		{"boundary plus one", "abcde", 2},
		{"ten chars", "hello ther", 3},
		{"hello", "hello", 2},
		{"eight chars", "hi there", 2},
		{"long", "The quick brown fox jumps over the lazy dog", 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTokens(tt.content)
			if got != tt.want {
				t.Errorf("EstimateTokens(%q) = %d, want %d", tt.content, got, tt.want)
			}
		})
	}
}
