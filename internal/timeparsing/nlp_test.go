package timeparsing

import (
	"testing"
	"time"
)

func TestParseNaturalLanguage(t *testing.T) {
	// Wednesday, January 15 2025, 10:00 local.
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

	tests := []struct {
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantHour  int // -1 skips the hour check
		wantErr   bool
	}{
		{input: "today", wantYear: 2025, wantMonth: time.January, wantDay: 15, wantHour: -1},
		{input: "tomorrow", wantYear: 2025, wantMonth: time.January, wantDay: 16, wantHour: -1},
		{input: "yesterday", wantYear: 2025, wantMonth: time.January, wantDay: 14, wantHour: -1},

		// "next <weekday>" resolves to the first such weekday after now.
		{input: "next monday", wantYear: 2025, wantMonth: time.January, wantDay: 20, wantHour: -1},
		{input: "next friday", wantYear: 2025, wantMonth: time.January, wantDay: 17, wantHour: -1},

		{input: "tomorrow at 9am", wantYear: 2025, wantMonth: time.January, wantDay: 16, wantHour: 9},
		{input: "next monday at 2pm", wantYear: 2025, wantMonth: time.January, wantDay: 20, wantHour: 14},

		{input: "in 3 days", wantYear: 2025, wantMonth: time.January, wantDay: 18, wantHour: -1},
		{input: "in 1 week", wantYear: 2025, wantMonth: time.January, wantDay: 22, wantHour: -1},
		{input: "3 days ago", wantYear: 2025, wantMonth: time.January, wantDay: 12, wantHour: -1},

		{input: "not a date at all", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseNaturalLanguage(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNaturalLanguage(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if got.Year() != tt.wantYear || got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseNaturalLanguage(%q) = %v, want %d %v %d",
					tt.input, got, tt.wantYear, tt.wantMonth, tt.wantDay)
			}
			if tt.wantHour >= 0 && got.Hour() != tt.wantHour {
				t.Errorf("ParseNaturalLanguage(%q) hour = %d, want %d", tt.input, got.Hour(), tt.wantHour)
			}
		})
	}
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

	tests := []struct {
		name      string
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantHour  int // -1 skips the hour check
		wantErr   bool
	}{
		{name: "compact day", input: "+1d", wantYear: 2025, wantMonth: time.January, wantDay: 16, wantHour: 10},
		{name: "compact hours", input: "+6h", wantYear: 2025, wantMonth: time.January, wantDay: 15, wantHour: 16},
		{name: "date only", input: "2025-02-01", wantYear: 2025, wantMonth: time.February, wantDay: 1, wantHour: 0},
		{name: "rfc3339", input: "2025-03-15T14:30:00Z", wantYear: 2025, wantMonth: time.March, wantDay: 15, wantHour: 14},
		{name: "phrase tomorrow", input: "tomorrow", wantYear: 2025, wantMonth: time.January, wantDay: 16, wantHour: -1},
		{name: "phrase next monday", input: "next monday", wantYear: 2025, wantMonth: time.January, wantDay: 20, wantHour: -1},
		{name: "garbage", input: "not-a-date", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRelativeTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if got.Year() != tt.wantYear || got.Month() != tt.wantMonth || got.Day() != tt.wantDay {
				t.Errorf("ParseRelativeTime(%q) = %v, want %d %v %d",
					tt.input, got, tt.wantYear, tt.wantMonth, tt.wantDay)
			}
			if tt.wantHour >= 0 && got.Hour() != tt.wantHour {
				t.Errorf("ParseRelativeTime(%q) hour = %d, want %d", tt.input, got.Hour(), tt.wantHour)
			}
		})
	}
}

// "+1d" is both a valid compact duration and something the phrase
// layer could chew on; the compact layer must win so day arithmetic
// keeps the time of day.
func TestParseRelativeTimeLayerOrder(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

	got, err := ParseRelativeTime("+1d", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(+1d) failed: %v", err)
	}
	if want := now.AddDate(0, 0, 1); !got.Equal(want) {
		t.Errorf("ParseRelativeTime(+1d) = %v, want %v", got, want)
	}

	got, err = ParseRelativeTime("2025-01-20", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(2025-01-20) failed: %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.January || got.Day() != 20 || got.Hour() != 0 {
		t.Errorf("ParseRelativeTime(2025-01-20) = %v, want midnight Jan 20 2025", got)
	}
}
