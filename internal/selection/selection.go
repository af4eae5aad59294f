// Package selection holds the pure slot-picking policy: which day to chase on
// the primary calendar, whether a claim may actually be attempted, and which
// secondary (CAS) day/time to pair with it.
package selection

import (
	"fmt"
	"sort"
	"time"
)

// Window is the operator-configured acceptance range, inclusive on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return fmt.Errorf("selection: window end %s before start %s",
			w.End.Format("2006-01-02"), w.Start.Format("2006-01-02"))
	}
	return nil
}

func (w Window) Contains(d time.Time) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Candidate is a primary day chosen for a claim attempt. InWindow is false
// when the pick is the whole-list fallback, so the caller can apply cutoff
// logic before claiming.
type Candidate struct {
	Date     time.Time
	InWindow bool
}

// PickPrimary returns the earliest available date inside the window. When no
// date qualifies it falls back to the earliest date of the entire list,
// flagged out-of-window. The input order carries no meaning.
func PickPrimary(dates []time.Time, w Window) (Candidate, bool) {
	if len(dates) == 0 {
		return Candidate{}, false
	}
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for _, d := range sorted {
		if w.Contains(d) {
			return Candidate{Date: d, InWindow: true}, true
		}
	}
	return Candidate{Date: sorted[0], InWindow: false}, true
}

// Mode says whether a found slot may be claimed or only reported.
type Mode int

const (
	ModeClaim Mode = iota
	ModeNotifyOnly
)

func (m Mode) String() string {
	if m == ModeNotifyOnly {
		return "notify-only"
	}
	return "claim"
}

// ClaimMode applies the cutoff gate: a candidate strictly before the cutoff
// forces notify-only no matter what the global dry-run flag says. A zero
// cutoff means no cutoff is configured.
func ClaimMode(candidate, cutoff time.Time, dryRun bool) Mode {
	if !cutoff.IsZero() && candidate.Before(cutoff) {
		return ModeNotifyOnly
	}
	if dryRun {
		return ModeNotifyOnly
	}
	return ModeClaim
}

// PickSecondary chooses the CAS day: the latest available one. Pushing the
// secondary visit as late as possible is intentional policy, the inverse of
// the primary earliest-day preference.
func PickSecondary(days []time.Time) (time.Time, bool) {
	if len(days) == 0 {
		return time.Time{}, false
	}
	latest := days[0]
	for _, d := range days[1:] {
		if d.After(latest) {
			latest = d
		}
	}
	return latest, true
}

// PickTime chooses the earliest time-of-day from the service's HH:MM list.
func PickTime(times []string) (string, bool) {
	if len(times) == 0 {
		return "", false
	}
	earliest := times[0]
	for _, t := range times[1:] {
		if t < earliest {
			earliest = t
		}
	}
	return earliest, true
}
