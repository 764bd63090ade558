package timezone

import (
	"testing"
	"time"
)

func TestParseTimezone(t *testing.T) {
	tests := []struct {
		name    string
		tz      string
		want    string
		wantErr bool
	}{
		{name: "UTC", tz: "UTC", want: "UTC"},
		{name: "empty string defaults to UTC", tz: "", want: "UTC"},
		{name: "local", tz: "Local", want: "Local"},
		{name: "Europe/Paris", tz: "Europe/Paris", want: "Europe/Paris"},
		{name: "invalid timezone", tz: "Invalid/Timezone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseTimezone(tt.tz)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTimezone() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && loc.String() != tt.want {
				t.Errorf("ParseTimezone() = %v, want %v", loc, tt.want)
			}
		})
	}
}

func TestIsValidTimezone(t *testing.T) {
	for tz, want := range map[string]bool{
		"":                 true,
		"local":            true,
		"America/New_York": true,
		"Mars/Olympus":     false,
	} {
		if got := IsValidTimezone(tz); got != want {
			t.Errorf("IsValidTimezone(%q) = %v, want %v", tz, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	paris, _ := time.LoadLocation("Europe/Paris")

	if got := Resolve("", paris); got != paris {
		t.Errorf("Resolve(\"\") = %v, want fallback", got)
	}
	if got := Resolve("Not/AZone", paris); got != paris {
		t.Errorf("Resolve(unknown) = %v, want fallback", got)
	}
	if got := Resolve("UTC", paris); got != time.UTC {
		t.Errorf("Resolve(UTC) = %v", got)
	}
	if got := Resolve("", nil); got != time.UTC {
		t.Errorf("Resolve with nil fallback = %v, want UTC", got)
	}
}

func TestDayBounds(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 02:00 UTC on Mar 10 is still Mar 9 in New York.
	ts := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)

	if got, want := StartOfDay(ts, ny), time.Date(2024, 3, 9, 0, 0, 0, 0, ny); !got.Equal(want) {
		t.Errorf("StartOfDay() = %v, want %v", got, want)
	}
	if got, want := EndOfDay(ts, ny), time.Date(2024, 3, 9, 23, 59, 59, 999999999, ny); !got.Equal(want) {
		t.Errorf("EndOfDay() = %v, want %v", got, want)
	}
	if got, want := LastSecondOfDay(ts, ny), time.Date(2024, 3, 9, 23, 59, 59, 0, ny); !got.Equal(want) {
		t.Errorf("LastSecondOfDay() = %v, want %v", got, want)
	}
}

func TestSameOrBeforeDay(t *testing.T) {
	morning := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)
	next := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	if !SameOrBeforeDay(evening, morning) {
		t.Error("same day should count as on or before")
	}
	if !SameOrBeforeDay(morning, next) {
		t.Error("earlier day should count as before")
	}
	if SameOrBeforeDay(next, evening) {
		t.Error("later day should not count as before")
	}
}

func TestFormatSpan(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		end    time.Time
		allDay bool
		want   string
	}{
		{name: "same day", end: start.Add(time.Hour), want: "2024-03-04 09:00 - 10:00"},
		{name: "all day", end: start.Add(24 * time.Hour), allDay: true, want: "2024-03-04"},
		{name: "spans days", end: start.Add(25 * time.Hour), want: "2024-03-04 09:00 - 2024-03-05 10:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSpan(start, tt.end, tt.allDay, time.UTC); got != tt.want {
				t.Errorf("FormatSpan() = %q, want %q", got, tt.want)
			}
		})
	}
}
