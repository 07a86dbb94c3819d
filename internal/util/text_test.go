package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "contains null byte",
			input: "hel\x00lo",
			want:  "hello",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePostgresText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected sanitized value: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{
			name:  "skips leading blanks",
			input: "\n\n  Invoice INV-2041\nsecond line",
			limit: 80,
			want:  "Invoice INV-2041",
		},
		{
			name:  "truncates long lines",
			input: "abcdefghij",
			limit: 5,
			want:  "abcd…",
		},
		{
			name:  "empty input",
			input: "\n \t\n",
			limit: 80,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FirstLine(tt.input, tt.limit)
			if got != tt.want {
				t.Fatalf("unexpected first line: got %q, want %q", got, tt.want)
			}
		})
	}
}
