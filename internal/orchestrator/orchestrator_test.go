package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/example/visa-watch/internal/governor"
	"github.com/example/visa-watch/internal/journal"
	"github.com/example/visa-watch/internal/reschedule"
	"github.com/example/visa-watch/internal/selection"
)

type fakePortal struct {
	// batches is consumed one entry per AvailableDates call; a nil error
	// function means success.
	batches  [][]time.Time
	errAt    map[int]error
	calls    int
	signIns  int
	signOuts int
}

func (p *fakePortal) SignIn(context.Context) error  { p.signIns++; return nil }
func (p *fakePortal) SignOut(context.Context) error { p.signOuts++; return nil }

func (p *fakePortal) AvailableDates(context.Context) ([]time.Time, error) {
	i := p.calls
	p.calls++
	if err, ok := p.errAt[i]; ok {
		return nil, err
	}
	if i < len(p.batches) {
		return p.batches[i], nil
	}
	return nil, errors.New("fake portal exhausted")
}

type fakeClaimer struct {
	res   reschedule.Result
	dates []time.Time
	modes []selection.Mode
}

func (c *fakeClaimer) Attempt(_ context.Context, date time.Time, mode selection.Mode) reschedule.Result {
	c.dates = append(c.dates, date)
	c.modes = append(c.modes, mode)
	r := c.res
	r.Date = date
	return r
}

type memNotifier struct {
	titles   []string
	messages []string
}

func (n *memNotifier) Notify(title, message string) {
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
}

type memRecorder struct {
	attempts []journal.Attempt
	err      error
}

func (r *memRecorder) Record(_ context.Context, a journal.Attempt) error {
	r.attempts = append(r.attempts, a)
	return r.err
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func window(lo, hi string) selection.Window {
	return selection.Window{Start: day(lo), End: day(hi)}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrch(p *fakePortal, c *fakeClaimer, n *memNotifier) (*Orchestrator, *[]time.Duration) {
	var slept []time.Duration
	o := &Orchestrator{
		Portal:   p,
		Claimer:  c,
		Notifier: n,
		Gov: &governor.Governor{
			BanCooldown:  3 * time.Hour,
			WorkLimit:    time.Hour,
			WorkCooldown: 30 * time.Minute,
			Log:          quiet(),
			Sleep:        func(d time.Duration) { slept = append(slept, d) },
		},
		Window:        window("2025-04-01", "2025-04-30"),
		RetryLowerSec: "30",
		RetryUpperSec: "90",
		Rand:          rand.New(rand.NewSource(7)),
		Sleep:         func(d time.Duration) { slept = append(slept, d) },
		Log:           quiet(),
	}
	return o, &slept
}

func TestRunSingleShotSuccess(t *testing.T) {
	p := &fakePortal{batches: [][]time.Time{{day("2025-04-10"), day("2025-05-02")}}}
	c := &fakeClaimer{res: reschedule.Result{Outcome: reschedule.OutcomeSuccess, Time: "09:00", Detail: "booked"}}
	n := &memNotifier{}
	o, slept := newOrch(p, c, n)
	o.SingleShot = true

	status, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusSuccess {
		t.Fatalf("status = %s, want SUCCESS", status)
	}
	if len(c.dates) != 1 || !c.dates[0].Equal(day("2025-04-10")) {
		t.Fatalf("claimed dates = %v, want the earliest in-window date", c.dates)
	}
	if c.modes[0] != selection.ModeClaim {
		t.Fatalf("mode = %v, want claim", c.modes[0])
	}
	if len(n.titles) != 1 || n.titles[0] != "SUCCESS" {
		t.Fatalf("notifications = %v, want one SUCCESS", n.titles)
	}
	if len(*slept) != 0 {
		t.Fatalf("single-shot run slept: %v", *slept)
	}
	if p.signIns != 1 || p.signOuts != 1 {
		t.Fatalf("signIns=%d signOuts=%d, want 1/1", p.signIns, p.signOuts)
	}
}

func TestRunSingleShotBanOnEmptyAvailability(t *testing.T) {
	p := &fakePortal{batches: [][]time.Time{{}}}
	c := &fakeClaimer{}
	n := &memNotifier{}
	o, slept := newOrch(p, c, n)
	o.SingleShot = true

	status, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusBan {
		t.Fatalf("status = %s, want BAN", status)
	}
	if len(c.dates) != 0 {
		t.Fatal("empty availability must not reach selection or claiming")
	}
	if len(n.titles) != 0 {
		t.Fatalf("ban produced notifications: %v", n.titles)
	}
	if len(*slept) != 0 {
		t.Fatal("single-shot ban must not sleep out the cooldown")
	}
	if p.signOuts != 1 {
		t.Fatalf("signOuts = %d, want 1 (cooldown entry)", p.signOuts)
	}
}

func TestRunEmptyAvailabilityCoolsDownThenResumes(t *testing.T) {
	p := &fakePortal{
		batches: [][]time.Time{{}, {day("2025-04-15")}},
		errAt:   map[int]error{2: errors.New("portal down")},
	}
	c := &fakeClaimer{res: reschedule.Result{Outcome: reschedule.OutcomeFail, Detail: "lost race"}}
	n := &memNotifier{}
	o, slept := newOrch(p, c, n)

	status, err := o.Run(context.Background())
	if status != StatusException || err == nil {
		t.Fatalf("status = %s err = %v, want EXCEPTION with error", status, err)
	}
	// Iteration 1: empty list, full ban cooldown slept inside the governor,
	// fresh session, no claim attempted.
	if len(*slept) == 0 || (*slept)[0] != 3*time.Hour {
		t.Fatalf("slept = %v, want ban cooldown first", *slept)
	}
	if p.signIns != 2 {
		t.Fatalf("signIns = %d, want re-establish after cooldown", p.signIns)
	}
	// Iteration 2 claimed the now-available date.
	if len(c.dates) != 1 || !c.dates[0].Equal(day("2025-04-15")) {
		t.Fatalf("claimed = %v, want 2025-04-15 once", c.dates)
	}
	// FAIL from the attempt, then EXCEPTION when the portal errored.
	if len(n.titles) != 2 || n.titles[0] != "FAIL" || n.titles[1] != "EXCEPTION" {
		t.Fatalf("notifications = %v", n.titles)
	}
}

func TestRunExceptionNotifiesAndSignsOut(t *testing.T) {
	p := &fakePortal{errAt: map[int]error{0: errors.New("boom")}}
	n := &memNotifier{}
	o, _ := newOrch(p, &fakeClaimer{}, n)

	status, err := o.Run(context.Background())
	if status != StatusException {
		t.Fatalf("status = %s, want EXCEPTION", status)
	}
	if err == nil {
		t.Fatal("want underlying error returned")
	}
	if len(n.titles) != 1 || n.titles[0] != "EXCEPTION" {
		t.Fatalf("notifications = %v", n.titles)
	}
	if n.messages[0] == "" {
		t.Fatal("exception notification needs detail")
	}
	if p.signOuts != 1 {
		t.Fatalf("signOuts = %d, want best-effort sign-out", p.signOuts)
	}
}

func TestRunNotifyOnlyPastCutoff(t *testing.T) {
	p := &fakePortal{batches: [][]time.Time{{day("2025-04-10")}}}
	c := &fakeClaimer{res: reschedule.Result{Outcome: reschedule.OutcomeFound, Detail: "date only"}}
	n := &memNotifier{}
	o, _ := newOrch(p, c, n)
	o.SingleShot = true
	o.Cutoff = day("2025-04-05")

	status, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != StatusFound {
		t.Fatalf("status = %s, want FOUND", status)
	}
	if c.modes[0] != selection.ModeNotifyOnly {
		t.Fatalf("mode = %v, want notify-only past cutoff", c.modes[0])
	}
}

func TestRunRecordsAttempts(t *testing.T) {
	p := &fakePortal{batches: [][]time.Time{{day("2025-04-10")}}}
	c := &fakeClaimer{res: reschedule.Result{
		Outcome: reschedule.OutcomeSuccess,
		Time:    "09:00",
		CASDate: day("2025-04-22"),
		CASTime: "08:00",
		Detail:  "booked",
	}}
	rec := &memRecorder{}
	o, _ := newOrch(p, c, &memNotifier{})
	o.Recorder = rec
	o.SingleShot = true

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.attempts) != 1 {
		t.Fatalf("recorded %d attempts, want 1", len(rec.attempts))
	}
	a := rec.attempts[0]
	if a.Outcome != "SUCCESS" || a.Time != "09:00" || a.Iteration != 1 {
		t.Fatalf("attempt = %+v", a)
	}
	if a.CASDate == nil || !a.CASDate.Equal(day("2025-04-22")) || a.CASTime != "08:00" {
		t.Fatalf("cas fields = %v %q", a.CASDate, a.CASTime)
	}
}

func TestRunJournalFailureIsNonFatal(t *testing.T) {
	p := &fakePortal{batches: [][]time.Time{{day("2025-04-10")}}}
	c := &fakeClaimer{res: reschedule.Result{Outcome: reschedule.OutcomeSuccess, Detail: "booked"}}
	o, _ := newOrch(p, c, &memNotifier{})
	o.Recorder = &memRecorder{err: errors.New("db gone")}
	o.SingleShot = true

	status, err := o.Run(context.Background())
	if err != nil || status != StatusSuccess {
		t.Fatalf("status = %s err = %v, journal failure must not change the outcome", status, err)
	}
}

func TestRunWorkLimitTriggersRest(t *testing.T) {
	p := &fakePortal{
		batches: [][]time.Time{{day("2025-04-10")}},
		errAt:   map[int]error{1: errors.New("stop the test")},
	}
	c := &fakeClaimer{res: reschedule.Result{Outcome: reschedule.OutcomeFail, Detail: "x"}}
	n := &memNotifier{}
	o, slept := newOrch(p, c, n)

	// Each Now() call advances well past the one-hour ceiling, so the first
	// iteration already exceeds it.
	clock := day("2025-04-01")
	tick := func() time.Time {
		clock = clock.Add(2 * time.Hour)
		return clock
	}
	o.Now = tick
	o.Gov.Now = tick

	if status, _ := o.Run(context.Background()); status != StatusException {
		t.Fatalf("status = %v", status)
	}
	// The rest replaces the short randomized wait entirely.
	if len(*slept) != 1 || (*slept)[0] != 30*time.Minute {
		t.Fatalf("slept = %v, want only the work cooldown", *slept)
	}
	if p.signIns != 2 {
		t.Fatalf("signIns = %d, want session re-established after rest", p.signIns)
	}
}

func TestBackoffIntervalWithinBounds(t *testing.T) {
	o := &Orchestrator{
		RetryLowerSec: "10",
		RetryUpperSec: "20",
		Rand:          rand.New(rand.NewSource(1)),
		Log:           quiet(),
	}
	for i := 0; i < 200; i++ {
		d := o.backoffInterval()
		if d < 10*time.Second || d > 20*time.Second {
			t.Fatalf("interval %v outside [10s, 20s]", d)
		}
	}
}

func TestBackoffIntervalFallsBack(t *testing.T) {
	cases := []struct {
		name         string
		lower, upper string
	}{
		{"non-numeric lower", "soon", "90"},
		{"non-numeric upper", "30", "later"},
		{"inverted", "90", "30"},
		{"negative", "-5", "30"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := &Orchestrator{
				RetryLowerSec: tc.lower,
				RetryUpperSec: tc.upper,
				Rand:          rand.New(rand.NewSource(1)),
				Log:           quiet(),
			}
			if d := o.backoffInterval(); d != fallbackRetry {
				t.Fatalf("interval = %v, want fixed fallback %v", d, fallbackRetry)
			}
		})
	}
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("é", 10)
	got := snippet(s, 5)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet produced invalid UTF-8: %q", got)
	}
	if got != "éé" {
		t.Fatalf("snippet = %q, want two whole runes", got)
	}
}

func TestBackoffIntervalEqualBounds(t *testing.T) {
	o := &Orchestrator{
		RetryLowerSec: "45",
		RetryUpperSec: "45",
		Rand:          rand.New(rand.NewSource(1)),
		Log:           quiet(),
	}
	if d := o.backoffInterval(); d != 45*time.Second {
		t.Fatalf("interval = %v, want exactly 45s", d)
	}
}
