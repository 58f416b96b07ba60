package transport

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"no limit", "hello", 0, []string{"hello"}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"newline preferred", "aaaa\nbbbb\ncc", 10, []string{"aaaa\nbbbb", "cc"}},
		{"runes not bytes", "ยินดีต้อนรับ", 4, []string{"ยินด", "ีต้อ", "นรับ"}},
	}
	for _, tt := range tests {
		got := SplitText(tt.in, tt.limit)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Fatalf("%s: SplitText=%q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCommandsAreKnown(t *testing.T) {
	t.Parallel()
	for _, c := range Commands() {
		if c.Command == "" || c.Description == "" {
			t.Fatalf("incomplete command %+v", c)
		}
	}
}
