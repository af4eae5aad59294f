// Package orchestrator runs the top-level polling loop: poll availability,
// evaluate it, maybe drive a claim, report, wait a randomized interval, and
// repeat until a terminal condition. The loop is strictly sequential; one
// session, one claim attempt in flight, ever.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/visa-watch/internal/governor"
	"github.com/example/visa-watch/internal/journal"
	"github.com/example/visa-watch/internal/portal"
	"github.com/example/visa-watch/internal/reschedule"
	"github.com/example/visa-watch/internal/selection"
)

// Status is the logical exit state of a run.
type Status string

const (
	StatusBan       Status = "BAN"
	StatusDone      Status = "DONE"
	StatusFound     Status = "FOUND"
	StatusSuccess   Status = "SUCCESS"
	StatusFail      Status = "FAIL"
	StatusException Status = "EXCEPTION"
)

// Portal is the authenticated session surface the loop owns exclusively.
type Portal interface {
	governor.Session
	AvailableDates(ctx context.Context) ([]time.Time, error)
}

// Claimer drives one reschedule transaction to a classified outcome.
type Claimer interface {
	Attempt(ctx context.Context, date time.Time, mode selection.Mode) reschedule.Result
}

type Notifier interface {
	Notify(title, message string)
}

// Recorder is the optional attempt journal.
type Recorder interface {
	Record(ctx context.Context, a journal.Attempt) error
}

// Diagnostics is an optional peek at the browser for exception reports.
type Diagnostics interface {
	CurrentURL() (string, error)
	PageSource() (string, error)
}

const fallbackRetry = 60 * time.Second

type Orchestrator struct {
	Portal   Portal
	Claimer  Claimer
	Notifier Notifier
	Recorder Recorder
	Diag     Diagnostics
	Gov      *governor.Governor
	Log      *slog.Logger

	Window selection.Window
	Cutoff time.Time

	DryRun     bool
	SingleShot bool

	// RetryLowerSec/RetryUpperSec are the raw configured bounds for the
	// randomized inter-iteration wait. Malformed bounds fall back to a
	// fixed interval; the loop never crashes over them.
	RetryLowerSec string
	RetryUpperSec string

	// Rand, Sleep and Now are injectable for tests.
	Rand  *rand.Rand
	Sleep func(time.Duration)
	Now   func() time.Time
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

func (o *Orchestrator) sleep(d time.Duration) {
	if o.Sleep != nil {
		o.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Run executes the loop until a terminal condition and reports how it ended.
// The returned error is non-nil only for StatusException.
func (o *Orchestrator) Run(ctx context.Context) (Status, error) {
	if err := o.Portal.SignIn(ctx); err != nil {
		return o.exception(ctx, fmt.Errorf("sign in: %w", err))
	}
	st := &governor.RunState{}
	st.Reset(o.now())

	for {
		st.Iterations++
		o.log().Info("polling availability", "iteration", st.Iterations)

		dates, err := o.Portal.AvailableDates(ctx)
		if err != nil {
			return o.exception(ctx, fmt.Errorf("fetch availability: %w", err))
		}

		if len(dates) == 0 {
			// The service returns at least some unusable dates under
			// normal operation; an empty list reads as a soft ban.
			o.log().Warn("availability list empty, probably banned",
				"cooldown", o.Gov.BanCooldown.String())
			resumed, gerr := o.Gov.CoolDown(ctx, governor.TriggerPossibleBan, o.Portal, st, o.SingleShot)
			if gerr != nil {
				return o.exception(ctx, gerr)
			}
			if !resumed {
				return StatusBan, nil
			}
			continue
		}

		o.log().Info("available dates", "count", len(dates), "dates", formatDates(dates))

		last := StatusDone
		if cand, ok := selection.PickPrimary(dates, o.Window); ok {
			mode := selection.ClaimMode(cand.Date, o.Cutoff, o.DryRun)
			if !cand.InWindow {
				o.log().Info("no date inside target window, falling back to earliest overall",
					"date", cand.Date.Format(portal.DateFormat))
			}
			o.log().Info("candidate selected",
				"date", cand.Date.Format(portal.DateFormat),
				"inWindow", cand.InWindow,
				"mode", mode.String())

			res := o.Claimer.Attempt(ctx, cand.Date, mode)
			o.report(ctx, st, res)
			last = Status(res.Outcome)
		}

		if o.SingleShot {
			o.log().Info("single-shot iteration complete", "status", string(last))
			if err := o.Portal.SignOut(ctx); err != nil {
				o.log().Warn("final sign-out failed", "err", err)
			}
			return last, nil
		}

		interval := o.backoffInterval()

		if o.Gov.WorkLimitExceeded(st) {
			o.log().Info("continuous work limit reached, resting",
				"worked", st.CumulativeWork(o.now()).String())
			resumed, gerr := o.Gov.CoolDown(ctx, governor.TriggerWorkLimit, o.Portal, st, false)
			if gerr != nil {
				return o.exception(ctx, gerr)
			}
			_ = resumed
			continue
		}

		o.log().Info("waiting before next poll", "interval", interval.String())
		o.sleep(interval)
	}
}

// report pushes the attempt outcome to the operator and, when configured,
// the journal. Journal failures are logged only.
func (o *Orchestrator) report(ctx context.Context, st *governor.RunState, res reschedule.Result) {
	o.log().Info("attempt finished", "outcome", string(res.Outcome), "detail", res.Detail)
	o.Notifier.Notify(string(res.Outcome), res.Detail)

	if o.Recorder == nil {
		return
	}
	a := journal.Attempt{
		Date:      res.Date,
		Time:      res.Time,
		CASTime:   res.CASTime,
		Outcome:   string(res.Outcome),
		Detail:    res.Detail,
		Iteration: st.Iterations,
	}
	if !res.CASDate.IsZero() {
		d := res.CASDate
		a.CASDate = &d
	}
	if err := o.Recorder.Record(ctx, a); err != nil {
		o.log().Warn("attempt journal write failed", "err", err)
	}
}

// backoffInterval draws a uniform random wait from the configured inclusive
// bounds. The randomization avoids a detectable fixed cadence; malformed
// bounds mean the fixed fallback, never a crash.
func (o *Orchestrator) backoffInterval() time.Duration {
	lower, errL := strconv.Atoi(strings.TrimSpace(o.RetryLowerSec))
	upper, errU := strconv.Atoi(strings.TrimSpace(o.RetryUpperSec))
	if errL != nil || errU != nil || lower < 0 || upper < lower {
		o.log().Warn("retry bounds unusable, using fixed fallback",
			"lower", o.RetryLowerSec, "upper", o.RetryUpperSec, "fallback", fallbackRetry.String())
		return fallbackRetry
	}
	n := lower
	if upper > lower {
		n = lower + o.rand().Intn(upper-lower+1)
	}
	return time.Duration(n) * time.Second
}

func (o *Orchestrator) rand() *rand.Rand {
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o.Rand
}

// exception implements the fail-loud-and-stop policy: report, sign out,
// terminate. Nothing in the iteration body is retried.
func (o *Orchestrator) exception(ctx context.Context, err error) (Status, error) {
	msg := fmt.Sprintf("Break the loop after exception! %v", err)
	if o.Diag != nil {
		if url, derr := o.Diag.CurrentURL(); derr == nil && url != "" {
			msg += " URL: " + url + "."
		}
		if page, derr := o.Diag.PageSource(); derr == nil && page != "" {
			msg += " Snippet: " + snippet(page, 200)
		}
	}
	o.log().Error("terminating on exception", "err", err)
	o.Notifier.Notify(string(StatusException), msg)
	if serr := o.Portal.SignOut(ctx); serr != nil {
		o.log().Warn("sign-out after exception failed", "err", serr)
	}
	return StatusException, err
}

func formatDates(dates []time.Time) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.Format(portal.DateFormat)
	}
	return strings.Join(parts, ", ")
}

func snippet(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary so multi-byte text stays valid UTF-8.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
