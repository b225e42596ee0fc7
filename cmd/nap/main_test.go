package main

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"short", "ffmpeg", "ffmpeg"},
		{"ascii cut", "http://localhost:5000/predict/with/a/long/path", "http://localhost:5000/predic…"},
		{"multibyte cut", strings.Repeat("ü", 40), strings.Repeat("ü", 28) + "…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			row := formatRow("Endpoint", tt.value)
			if !utf8.ValidString(row) {
				t.Fatalf("row is not valid UTF-8: %q", row)
			}
			if !strings.Contains(row, tt.want) {
				t.Errorf("row = %q, want it to contain %q", row, tt.want)
			}
			if n := utf8.RuneCountInString(row); n != 49 {
				t.Errorf("row width = %d runes, want 49", n)
			}
		})
	}
}
