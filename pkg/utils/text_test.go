package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if Truncate("héllo", 2) != "hé..." {
		t.Errorf("multi-byte: got %s", Truncate("héllo", 2))
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitleFromPath(t *testing.T) {
	if got := TitleFromPath("notes/daily/2024-01-01.md"); got != "2024-01-01" {
		t.Errorf("got %q", got)
	}
	if got := TitleFromPath("README"); got != "README" {
		t.Errorf("got %q", got)
	}
}
