package timeparsing

import (
	"testing"
	"time"
)

// Wednesday, January 15, 2025, 10:00 local
var ref = time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

func TestParseCompactDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"+6h", ref.Add(6 * time.Hour)},
		{"-1d", ref.AddDate(0, 0, -1)},
		{"2w", ref.AddDate(0, 0, 14)},
		{"3m", ref.AddDate(0, 3, 0)},
		{"-1y", ref.AddDate(-1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.input, ref)
			if err != nil {
				t.Fatalf("ParseCompactDuration(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "6", "h", "+6x", "6 h"} {
		if _, err := ParseCompactDuration(bad, ref); err == nil {
			t.Errorf("ParseCompactDuration(%q) should fail", bad)
		}
	}
}

func TestParseSince(t *testing.T) {
	got, err := ParseSince("7d", ref)
	if err != nil {
		t.Fatal(err)
	}
	if want := ref.AddDate(0, 0, -7); !got.Equal(want) {
		t.Errorf("ParseSince(7d) = %v, want %v", got, want)
	}

	got, err = ParseSince("+1d", ref)
	if err != nil {
		t.Fatal(err)
	}
	if want := ref.AddDate(0, 0, 1); !got.Equal(want) {
		t.Errorf("explicit sign should be kept, got %v", got)
	}
}

func TestParseAbsolute(t *testing.T) {
	got, err := ParseRelativeTime("2024-12-01", ref)
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2024 || got.Month() != time.December || got.Day() != 1 {
		t.Errorf("got %v", got)
	}

	got, err = ParseRelativeTime("2024-12-01T08:30:00Z", ref)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(time.Date(2024, 12, 1, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("got %v", got)
	}
}

func TestParseNaturalLanguage(t *testing.T) {
	tests := []struct {
		input   string
		wantDay int
	}{
		{"tomorrow", 16},
		{"yesterday", 14},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.input, ref)
			if err != nil {
				t.Fatalf("ParseRelativeTime(%q) error: %v", tt.input, err)
			}
			if got.Month() != time.January || got.Day() != tt.wantDay {
				t.Errorf("ParseRelativeTime(%q) = %v, want Jan %d", tt.input, got, tt.wantDay)
			}
		})
	}

	if _, err := ParseRelativeTime("xyzzy plugh", ref); err == nil {
		t.Error("expected an error for gibberish")
	}
	if _, err := ParseRelativeTime("  ", ref); err == nil {
		t.Error("expected an error for empty input")
	}
}
