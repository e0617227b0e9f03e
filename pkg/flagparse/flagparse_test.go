package flagparse

import (
	"testing"
	"time"

	"github.com/tarvault/tarvault/pkg/retention"
)

func TestParsePathList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/a", []string{"/a"}},
		{"/a,/b", []string{"/a", "/b"}},
		{" /a , /b ", []string{"/a", "/b"}},
		{"/a,,/b,", []string{"/a", "/b"}},
	}
	for _, tc := range tests {
		got := ParsePathList(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("ParsePathList(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParsePathList(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestParseTiers(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    retention.Policy
		wantErr bool
	}{
		{"empty disables pruning", "", retention.Policy{}, false},
		{"single tier", "last=3", retention.Policy{Last: 3}, false},
		{"all tiers", "last=2,hourly=24,daily=7,weekly=4,monthly=12,yearly=5",
			retention.Policy{Last: 2, Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12, Yearly: 5}, false},
		{"case insensitive with spaces", " Last=1 , DAILY=7 ", retention.Policy{Last: 1, Daily: 7}, false},
		{"unknown tier", "minutely=5", retention.Policy{}, true},
		{"zero count", "daily=0", retention.Policy{}, true},
		{"negative count", "daily=-1", retention.Policy{}, true},
		{"non-numeric count", "daily=seven", retention.Policy{}, true},
		{"missing equals", "daily", retention.Policy{}, true},
		{"duplicate tier", "daily=1,daily=2", retention.Policy{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTiers(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseTiers(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if err == nil && got != tc.want {
				t.Errorf("ParseTiers(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseAgeSpecAbsolute(t *testing.T) {
	now := time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)

	got, err := ParseAgeSpec("2025-06-01 08:30", now)
	if err != nil {
		t.Fatalf("ParseAgeSpec failed: %v", err)
	}
	want := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseAgeSpec = %v, want %v", got, want)
	}
}

func TestParseAgeSpecDayCount(t *testing.T) {
	now := time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"7", now.Add(-7 * 24 * time.Hour)},
		{"0.5", now.Add(-12 * time.Hour)},
		{"0", now},
	}
	for _, tc := range tests {
		got, err := ParseAgeSpec(tc.in, now)
		if err != nil {
			t.Errorf("ParseAgeSpec(%q) failed: %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseAgeSpec(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseAgeSpecInvalid(t *testing.T) {
	now := time.Now()
	for _, in := range []string{"", "yesterday", "-1", "2025-06-01", "2025-06-01T08:30"} {
		if _, err := ParseAgeSpec(in, now); err == nil {
			t.Errorf("ParseAgeSpec(%q) expected error", in)
		}
	}
}
