package selection

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func days(ss ...string) []time.Time {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		out[i] = day(s)
	}
	return out
}

func TestPickPrimary(t *testing.T) {
	w := Window{Start: day("2025-03-01"), End: day("2025-03-31")}

	tests := []struct {
		name       string
		avail      []time.Time
		wantDate   string
		wantWindow bool
		wantOK     bool
	}{
		{"earliest in window wins", days("2025-02-20", "2025-03-15", "2025-03-02"), "2025-03-02", true, true},
		{"fallback to earliest overall", days("2025-02-10", "2025-01-01"), "2025-01-01", false, true},
		{"window bounds inclusive", days("2025-03-31", "2025-04-01"), "2025-03-31", true, true},
		{"start bound inclusive", days("2025-03-01"), "2025-03-01", true, true},
		{"empty list yields nothing", nil, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := PickPrimary(tt.avail, w)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got := c.Date.Format("2006-01-02"); got != tt.wantDate {
				t.Errorf("date = %s, want %s", got, tt.wantDate)
			}
			if c.InWindow != tt.wantWindow {
				t.Errorf("InWindow = %v, want %v", c.InWindow, tt.wantWindow)
			}
		})
	}
}

func TestPickPrimaryDoesNotMutateInput(t *testing.T) {
	avail := days("2025-03-15", "2025-03-02")
	w := Window{Start: day("2025-03-01"), End: day("2025-03-31")}
	PickPrimary(avail, w)
	if !avail[0].Equal(day("2025-03-15")) {
		t.Error("input slice was reordered")
	}
}

func TestClaimMode(t *testing.T) {
	cutoff := day("2025-03-10")

	tests := []struct {
		name      string
		candidate time.Time
		cutoff    time.Time
		dryRun    bool
		want      Mode
	}{
		{"before cutoff overrides live run", day("2025-03-02"), cutoff, false, ModeNotifyOnly},
		{"on cutoff claims", day("2025-03-10"), cutoff, false, ModeClaim},
		{"after cutoff claims", day("2025-03-20"), cutoff, false, ModeClaim},
		{"dry run still gates after cutoff", day("2025-03-20"), cutoff, true, ModeNotifyOnly},
		{"no cutoff, live run claims", day("2025-03-02"), time.Time{}, false, ModeClaim},
		{"no cutoff, dry run gates", day("2025-03-02"), time.Time{}, true, ModeNotifyOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClaimMode(tt.candidate, tt.cutoff, tt.dryRun); got != tt.want {
				t.Errorf("ClaimMode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPickSecondaryTakesLatest(t *testing.T) {
	d, ok := PickSecondary(days("2025-04-10", "2025-04-22", "2025-04-15"))
	if !ok || !d.Equal(day("2025-04-22")) {
		t.Errorf("got %v ok=%v, want latest 2025-04-22", d, ok)
	}
	if _, ok := PickSecondary(nil); ok {
		t.Error("empty secondary list should fail soft")
	}
}

func TestPickTimeTakesEarliest(t *testing.T) {
	got, ok := PickTime([]string{"10:15", "07:30", "13:00"})
	if !ok || got != "07:30" {
		t.Errorf("got %q ok=%v, want 07:30", got, ok)
	}
	if _, ok := PickTime(nil); ok {
		t.Error("empty time list should fail soft")
	}
}

func TestWindowValidate(t *testing.T) {
	if err := (Window{Start: day("2025-03-01"), End: day("2025-02-01")}).Validate(); err == nil {
		t.Error("inverted window should be rejected")
	}
	if err := (Window{Start: day("2025-03-01"), End: day("2025-03-01")}).Validate(); err != nil {
		t.Errorf("single-day window should be valid, got %v", err)
	}
}
