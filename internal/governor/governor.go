// Package governor owns the ban-avoidance policy: interpreting an empty
// availability list as a probable soft ban, and capping continuous work time.
// Both triggers resolve the same way: sign out, sleep, re-authenticate, reset
// the run counters.
package governor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunState tracks one orchestrator run between fresh sign-ins.
type RunState struct {
	Iterations           int
	SessionEstablishedAt time.Time
}

func (s *RunState) Reset(now time.Time) {
	s.Iterations = 0
	s.SessionEstablishedAt = now
}

func (s *RunState) CumulativeWork(now time.Time) time.Duration {
	if s.SessionEstablishedAt.IsZero() {
		return 0
	}
	return now.Sub(s.SessionEstablishedAt)
}

// Session is the slice of the portal the governor drives through a cooldown
// cycle.
type Session interface {
	SignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

type Trigger string

const (
	// TriggerPossibleBan fires on an empty availability list. The service
	// normally returns at least some unusable dates, so an empty list is
	// read as a temporary block, not a booked-out calendar.
	TriggerPossibleBan Trigger = "possible-ban"
	// TriggerWorkLimit fires when cumulative session time passes the
	// ceiling. Purely preventive, independent of any error signal.
	TriggerWorkLimit Trigger = "work-limit"
)

type Governor struct {
	BanCooldown  time.Duration
	WorkLimit    time.Duration
	WorkCooldown time.Duration

	Log *slog.Logger

	// Sleep and Now are injectable for tests.
	Sleep func(time.Duration)
	Now   func() time.Time
}

func (g *Governor) log() *slog.Logger {
	if g.Log != nil {
		return g.Log
	}
	return slog.Default()
}

func (g *Governor) sleep(d time.Duration) {
	if g.Sleep != nil {
		g.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (g *Governor) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

// WorkLimitExceeded reports whether the continuous-work trigger should fire.
func (g *Governor) WorkLimitExceeded(st *RunState) bool {
	return g.WorkLimit > 0 && st.CumulativeWork(g.now()) > g.WorkLimit
}

// CoolDown runs one sign-out/sleep/sign-in cycle for the given trigger. In
// single-shot mode it only signs out and reports resumed=false: there is no
// next iteration to resume into. A failed re-authentication is returned as an
// error; a failed sign-out is logged and the cooldown proceeds, since the
// upcoming sleep supersedes whatever state the session was left in.
func (g *Governor) CoolDown(ctx context.Context, trigger Trigger, s Session, st *RunState, singleShot bool) (resumed bool, err error) {
	cooldown := g.WorkCooldown
	if trigger == TriggerPossibleBan {
		cooldown = g.BanCooldown
	}

	if err := s.SignOut(ctx); err != nil {
		g.log().Warn("sign-out before cooldown failed", "trigger", string(trigger), "err", err)
	}
	if singleShot {
		g.log().Info("cooldown trigger in single-shot mode, terminating", "trigger", string(trigger))
		return false, nil
	}

	g.log().Info("cooling down", "trigger", string(trigger), "sleep", cooldown.String())
	g.sleep(cooldown)

	if err := s.SignIn(ctx); err != nil {
		return false, fmt.Errorf("governor: re-authenticate after %s cooldown: %w", trigger, err)
	}
	st.Reset(g.now())
	return true, nil
}
