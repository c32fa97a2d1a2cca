package tokenizer

import "testing"

func TestCounterFunc(t *testing.T) {
	c := CounterFunc(func(text string) int { return len(text) })
	if got := c.Count("abcd"); got != 4 {
		t.Errorf("Count = %d, want 4", got)
	}
}

func TestHeuristic(t *testing.T) {
	h := Heuristic{}

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"ab", 0},
		{"hello", 2},
		{"hello world", 4},
		{"日本語のテキスト", 3},
	}
	for _, tt := range tests {
		if got := h.Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
