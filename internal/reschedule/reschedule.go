// Package reschedule drives the multi-step claim transaction: set the date,
// wait for times to populate, pick one, optionally set the secondary (CAS)
// pair, submit, confirm, and detect the outcome.
package reschedule

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/visa-watch/internal/portal"
	"github.com/example/visa-watch/internal/selection"
	"github.com/example/visa-watch/internal/wait"
)

// Outcome classifies one claim attempt.
type Outcome string

const (
	// OutcomeFound means a slot was discovered but no claim was attempted
	// (dry run or cutoff gate).
	OutcomeFound   Outcome = "FOUND"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFail    Outcome = "FAIL"
)

// Result is the ephemeral record of one attempt, reported and then dropped.
type Result struct {
	Outcome Outcome
	Date    time.Time
	Time    string
	CASDate time.Time
	CASTime string
	Detail  string
}

// Portal is the slice of the portal client the state machine needs.
type Portal interface {
	AppointmentURL() string
	AvailableTimes(ctx context.Context, date time.Time) ([]string, error)
	CASAvailableDates(ctx context.Context, casID string, primaryDate time.Time, primaryTime string) ([]time.Time, error)
	CASAvailableTimes(ctx context.Context, casID string, date time.Time) ([]string, error)
	ResolveCASFacility(ctx context.Context, override string) (id, source string)
}

type Notifier interface {
	Notify(title, message string)
}

// Timeouts bound the three in-attempt polling waits.
type Timeouts struct {
	TimeOptions time.Duration
	Confirm     time.Duration
	Outcome     time.Duration
}

func (t *Timeouts) defaults() {
	if t.TimeOptions == 0 {
		t.TimeOptions = 15 * time.Second
	}
	if t.Confirm == 0 {
		t.Confirm = 15 * time.Second
	}
	if t.Outcome == 0 {
		t.Outcome = 20 * time.Second
	}
}

const (
	pageDebugFile  = "page_debug.html"
	screenshotFile = "screenshot.png"

	modalSelector   = `div[class*="modal"], div[id*="fancybox"], div[role="dialog"]`
	bannerSelector  = ".alert, .flash, .notice, .error, .alert-success, .alert-danger"
	confirmMark     = "data-visawatch-confirm"
	confirmSelector = "[" + confirmMark + "]"
)

// Confirmation wording and success phrases, matched in both languages the
// service renders.
var (
	confirmWords   = []string{"confirm", "confirmar"}
	successPhrases = []string{"Successfully Scheduled", "Programado exitosamente"}
	successPaths   = []string{"/appointment/instructions", "/instructions"}
)

type Rescheduler struct {
	D      portal.Driver
	P      Portal
	Notify Notifier
	Log    *slog.Logger

	UpdateCAS   bool
	CASOverride string

	// ArtifactDir receives page_debug.html and screenshot.png on failure,
	// overwritten each time: last failure only, not a history.
	ArtifactDir string

	Timeouts     Timeouts
	PollInterval time.Duration
}

func (r *Rescheduler) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *Rescheduler) interval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return time.Second
}

// Attempt runs one claim transaction for the chosen date. In notify-only mode
// it stops after the found-slot alert. It never returns an error: every
// failure is classified into the Result.
func (r *Rescheduler) Attempt(ctx context.Context, date time.Time, mode selection.Mode) Result {
	r.Timeouts.defaults()
	day := date.Format(portal.DateFormat)

	if err := r.D.Navigate(r.P.AppointmentURL()); err != nil {
		return r.failed(Result{Date: date}, fmt.Sprintf("open appointment page: %v", err))
	}
	r.log().Info("opened appointment page", "date", day)

	res := Result{Date: date}

	if mode == selection.ModeNotifyOnly {
		res.Time = "(dry-run)"
		r.notify(OutcomeFound, fmt.Sprintf("Date available: %s %s.", day, res.Time))
		res.Outcome = OutcomeFound
		res.Detail = fmt.Sprintf("Date available: %s. Claim suppressed, no changes made.", day)
		return res
	}

	times, err := r.P.AvailableTimes(ctx, date)
	if err != nil {
		return r.failed(res, fmt.Sprintf("list times for %s: %v", day, err))
	}
	chosen, ok := selection.PickTime(times)
	if !ok {
		return r.failed(res, fmt.Sprintf("no times offered for %s", day))
	}
	res.Time = chosen
	r.log().Info("primary time chosen", "date", day, "time", chosen)

	if r.UpdateCAS {
		res.CASDate, res.CASTime = r.pickSecondary(ctx, date, chosen)
	}

	// Alert the operator the moment a slot is found, before the claim is
	// driven; the claim can still fail and the human may want to act.
	r.notify(OutcomeFound, fmt.Sprintf("Date available: %s %s.", day, chosen))

	if err := r.fillAndSubmit(ctx, date, res); err != nil {
		return r.failed(res, err.Error())
	}

	if r.detectSuccess(ctx) {
		res.Outcome = OutcomeSuccess
		suffix := ""
		if !res.CASDate.IsZero() && res.CASTime != "" {
			suffix = fmt.Sprintf("; CAS set to %s %s", res.CASDate.Format(portal.DateFormat), res.CASTime)
		}
		res.Detail = fmt.Sprintf("Rescheduled Successfully! %s %s%s", day, chosen, suffix)
		if url, err := r.D.CurrentURL(); err == nil {
			r.log().Info("success detected", "url", url)
		}
		return res
	}

	return r.failed(res, "no success signal within the detection window")
}

// pickSecondary resolves the CAS facility and selects latest-day then
// earliest-time. It fails soft: any miss leaves the attempt primary-only.
func (r *Rescheduler) pickSecondary(ctx context.Context, primary time.Time, primaryTime string) (time.Time, string) {
	casID, source := r.P.ResolveCASFacility(ctx, r.CASOverride)
	r.log().Info("CAS facility resolved", "facility", casID, "source", source)

	days, err := r.P.CASAvailableDates(ctx, casID, primary, primaryTime)
	if err != nil {
		r.log().Warn("CAS day fetch failed, proceeding primary-only", "err", err)
		return time.Time{}, ""
	}
	day, ok := selection.PickSecondary(days)
	if !ok {
		r.log().Info("CAS has no available days, proceeding primary-only")
		return time.Time{}, ""
	}
	times, err := r.P.CASAvailableTimes(ctx, casID, day)
	if err != nil {
		r.log().Warn("CAS time fetch failed, proceeding primary-only", "err", err)
		return time.Time{}, ""
	}
	t, ok := selection.PickTime(times)
	if !ok {
		r.log().Info("CAS day has no times, proceeding primary-only", "date", day.Format(portal.DateFormat))
		return time.Time{}, ""
	}
	r.log().Info("CAS selection", "date", day.Format(portal.DateFormat), "time", t)
	return day, t
}

func (r *Rescheduler) fillAndSubmit(ctx context.Context, date time.Time, res Result) error {
	if err := r.setDatePair(ctx, portal.FieldConsulateDate, portal.FieldConsulateTime, date); err != nil {
		return fmt.Errorf("primary %w", err)
	}
	if !res.CASDate.IsZero() && res.CASTime != "" {
		if err := r.setDatePair(ctx, portal.FieldASCDate, portal.FieldASCTime, res.CASDate); err != nil {
			return fmt.Errorf("secondary %w", err)
		}
	}

	r.log().Info("submitting reschedule")
	if err := r.clickWithFallback("#" + portal.SubmitButton); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	r.confirmModal(ctx)
	return nil
}

// setDatePair forces the date into its field, fires the change event, waits
// for the dependent time select to populate, and picks its first option.
func (r *Rescheduler) setDatePair(ctx context.Context, dateField, timeField string, date time.Time) error {
	day := date.Format(portal.DateFormat)
	if err := r.D.SetFieldValue(dateField, day); err != nil {
		return fmt.Errorf("date set: %w", err)
	}
	if err := r.D.DispatchChange(dateField); err != nil {
		return fmt.Errorf("date change event: %w", err)
	}
	r.log().Info("date field set, waiting for times", "field", dateField, "date", day)

	err := wait.For(ctx, r.Timeouts.TimeOptions, r.interval(), func() (bool, error) {
		opts, err := r.D.OptionValues(timeField)
		if err != nil {
			return false, err
		}
		return len(opts) > 1, nil
	})
	if err != nil {
		return fmt.Errorf("time options never loaded: %w", err)
	}

	picked, err := r.D.SelectFirstOption(timeField)
	if err != nil || picked == "" {
		return fmt.Errorf("time select: no usable option (%v)", err)
	}
	r.log().Info("time option selected", "field", timeField, "value", picked)
	return nil
}

// confirmModal handles the service-dependent confirmation prompt. Absence
// within the wait window is not an error.
func (r *Rescheduler) confirmModal(ctx context.Context) {
	err := wait.For(ctx, r.Timeouts.Confirm, r.interval(), func() (bool, error) {
		return r.D.Present(modalSelector)
	})
	if err != nil {
		r.log().Info("no confirmation modal detected, proceeding")
		return
	}
	if ok, err := r.markConfirmAffordance(); err != nil || !ok {
		r.log().Warn("confirmation modal present but no confirm affordance found", "err", err)
		return
	}
	if err := r.clickWithFallback(confirmSelector); err != nil {
		r.log().Warn("confirm click failed", "err", err)
		return
	}
	r.log().Info("confirmation modal accepted")
}

// markConfirmAffordance tags the confirm link in the modal so it can be
// clicked through the normal element path. Matching is case-insensitive
// against the known confirmation wording.
func (r *Rescheduler) markConfirmAffordance() (bool, error) {
	out, err := r.D.ExecScript(`var words = arguments[0].split(',');
var cands = Array.prototype.slice.call(document.querySelectorAll(
  'a.btn.btn-primary, a.button.alert, a[onclick*="confirm"], a[data-method="post"]'));
var as = document.getElementsByTagName('a');
for (var i = 0; i < as.length; i++) {
  var txt = (as[i].textContent || '').toLowerCase();
  for (var j = 0; j < words.length; j++) {
    if (words[j] && txt.indexOf(words[j]) !== -1) { cands.push(as[i]); break; }
  }
}
if (cands.length === 0) { return 'n'; }
var el = cands[cands.length - 1];
el.scrollIntoView({block: 'center'});
el.setAttribute(arguments[1], '1');
return 'y';`, strings.Join(confirmWords, ","), confirmMark)
	if err != nil {
		return false, err
	}
	return out == "y", nil
}

// clickWithFallback tries the direct interaction once, then the forced
// script click once; two failures make the step failed.
func (r *Rescheduler) clickWithFallback(selector string) error {
	if err := r.D.Click(selector); err == nil {
		return nil
	}
	if err := r.D.ForceClick(selector); err != nil {
		return fmt.Errorf("click %s failed directly and via script: %w", selector, err)
	}
	r.log().Info("clicked via script fallback", "selector", selector)
	return nil
}

// detectSuccess polls for either a post-success URL or a success phrase in
// the page, whichever appears first.
func (r *Rescheduler) detectSuccess(ctx context.Context) bool {
	err := wait.For(ctx, r.Timeouts.Outcome, r.interval(), func() (bool, error) {
		if url, err := r.D.CurrentURL(); err == nil {
			for _, p := range successPaths {
				if strings.Contains(url, p) {
					return true, nil
				}
			}
		}
		page, err := r.D.PageSource()
		if err != nil {
			return false, err
		}
		for _, phrase := range successPhrases {
			if strings.Contains(page, phrase) {
				return true, nil
			}
		}
		return false, nil
	})
	return err == nil
}

// failed classifies the attempt, enriches the detail with the current URL,
// banner text and a content snippet, and captures diagnostics. All of that
// is best-effort and never masks the FAIL itself.
func (r *Rescheduler) failed(res Result, reason string) Result {
	res.Outcome = OutcomeFail
	day := res.Date.Format(portal.DateFormat)

	detail := fmt.Sprintf("Reschedule Failed!!! %s %s. %s", day, res.Time, reason)
	if url, err := r.D.CurrentURL(); err == nil && url != "" {
		detail += " URL: " + url + "."
	}
	page, perr := r.D.PageSource()
	if perr == nil && page != "" {
		detail += " Snippet: " + snippet(page, 400)
	}
	if banners := r.bannerText(); banners != "" {
		detail += " | Banners: " + banners
	}
	res.Detail = detail

	r.captureDiagnostics(page, perr == nil)
	r.log().Error("reschedule failed", "date", day, "time", res.Time, "reason", reason)
	return res
}

func (r *Rescheduler) bannerText() string {
	out, err := r.D.ExecScript(`var els = document.querySelectorAll(arguments[0]);
var parts = [];
for (var i = 0; i < els.length; i++) {
  var t = (els[i].textContent || '').trim();
  if (t) { parts.push(t); }
}
return parts.join(' || ');`, bannerSelector)
	if err != nil {
		return ""
	}
	return out
}

func (r *Rescheduler) captureDiagnostics(page string, havePage bool) {
	dir := r.ArtifactDir
	if dir == "" {
		dir = "."
	}
	if havePage {
		if err := os.WriteFile(filepath.Join(dir, pageDebugFile), []byte(page), 0o644); err != nil {
			r.log().Warn("page snapshot not written", "err", err)
		}
	}
	if png, err := r.D.Screenshot(); err == nil {
		if werr := os.WriteFile(filepath.Join(dir, screenshotFile), png, 0o644); werr != nil {
			r.log().Warn("screenshot not written", "err", werr)
		}
	} else {
		r.log().Warn("screenshot not captured", "err", err)
	}
}

func (r *Rescheduler) notify(o Outcome, msg string) {
	if r.Notify == nil {
		return
	}
	r.Notify.Notify(string(o), msg)
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
