// Package portal is the glue between the core loop and the visa booking
// service: URLs, the sign-in/out flow, in-page JSON fetches with the session
// cookie, and the DOM ids of the reschedule form.
package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/example/visa-watch/internal/wait"
)

const (
	defaultBaseURL = "https://ais.usvisa-info.com"

	sessionCookie = "_yatri_session"

	// DOM ids of the appointment form.
	FieldConsulateDate = "appointments_consulate_appointment_date"
	FieldConsulateTime = "appointments_consulate_appointment_time"
	FieldASCDate       = "appointments_asc_appointment_date"
	FieldASCTime       = "appointments_asc_appointment_time"
	FieldASCFacility   = "appointments_asc_appointment_facility_id"
	SubmitButton       = "appointments_submit"

	// DateFormat is the service's wire format for calendar dates.
	DateFormat = "2006-01-02"
)

// xhrScript performs a synchronous in-page fetch so the request rides the
// authenticated browser session. Kept synchronous on purpose: the loop is
// strictly sequential and the result is needed before anything else happens.
const xhrScript = `var req = new XMLHttpRequest();
req.open('GET', arguments[0], false);
req.setRequestHeader('Accept', 'application/json, text/javascript, */*; q=0.01');
req.setRequestHeader('X-Requested-With', 'XMLHttpRequest');
req.send(null);
return req.responseText;`

// TokenCache persists the portal session token across process restarts. It
// must be purged on sign-out so no token leaks across session epochs.
type TokenCache interface {
	Save(token string) error
	Load() (token string, ok bool)
	Purge() error
}

type Client struct {
	D          Driver
	Embassy    Embassy
	ScheduleID string
	Email      string
	Password   string
	Log        *slog.Logger

	// Tokens is optional; nil disables caching.
	Tokens TokenCache

	// BaseURL overrides the live service address, for tests.
	BaseURL string

	// ResumeTimeout bounds the warm-start probe; zero means 10s.
	ResumeTimeout time.Duration
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *Client) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

func (c *Client) SignInURL() string {
	return fmt.Sprintf("%s/%s/niv/users/sign_in", c.base(), c.Embassy.Locale)
}

func (c *Client) SignOutURL() string {
	return fmt.Sprintf("%s/%s/niv/users/sign_out", c.base(), c.Embassy.Locale)
}

func (c *Client) AppointmentURL() string {
	return fmt.Sprintf("%s/%s/niv/schedule/%s/appointment", c.base(), c.Embassy.Locale, c.ScheduleID)
}

func (c *Client) daysURL(facilityID string) string {
	return fmt.Sprintf("%s/%s/niv/schedule/%s/appointment/days/%s.json?appointments[expedite]=false",
		c.base(), c.Embassy.Locale, c.ScheduleID, facilityID)
}

func (c *Client) timesURL(facilityID, date string) string {
	return fmt.Sprintf("%s/%s/niv/schedule/%s/appointment/times/%s.json?date=%s&appointments[expedite]=false",
		c.base(), c.Embassy.Locale, c.ScheduleID, facilityID, date)
}

// casDaysURL carries the already-chosen consulate slot as context; the
// service wants it when listing the dependent facility's days.
func (c *Client) casDaysURL(casID, consulateDate, consulateTime string) string {
	return fmt.Sprintf("%s/%s/niv/schedule/%s/appointment/days/%s.json?consulate_id=%s&consulate_date=%s&consulate_time=%s&appointments[expedite]=false",
		c.base(), c.Embassy.Locale, c.ScheduleID, casID, c.Embassy.FacilityID, consulateDate, consulateTime)
}

// FetchJSON runs an in-page XHR against url using the current session.
func (c *Client) FetchJSON(url string) (string, error) {
	out, err := c.D.ExecScript(xhrScript, url)
	if err != nil {
		return "", fmt.Errorf("portal: fetch %s: %w", url, err)
	}
	return out, nil
}

// AvailableDates lists the open days on the primary facility's calendar.
// Order is not guaranteed by the service and not normalized here.
func (c *Client) AvailableDates(ctx context.Context) ([]time.Time, error) {
	raw, err := c.FetchJSON(c.daysURL(c.Embassy.FacilityID))
	if err != nil {
		return nil, err
	}
	return parseDates(raw)
}

// AvailableTimes lists the open times-of-day for one primary-calendar date.
func (c *Client) AvailableTimes(ctx context.Context, date time.Time) ([]string, error) {
	raw, err := c.FetchJSON(c.timesURL(c.Embassy.FacilityID, date.Format(DateFormat)))
	if err != nil {
		return nil, err
	}
	return parseTimes(raw), nil
}

// CASAvailableDates lists the secondary facility's open days, in the context
// of the chosen primary date and time.
func (c *Client) CASAvailableDates(ctx context.Context, casID string, primaryDate time.Time, primaryTime string) ([]time.Time, error) {
	url := c.casDaysURL(casID, primaryDate.Format(DateFormat), primaryTime)
	c.log().Info("fetching CAS days", "facility", casID, "url", url)
	raw, err := c.FetchJSON(url)
	if err != nil {
		return nil, err
	}
	return parseDates(raw)
}

// CASAvailableTimes lists the open times on one secondary-facility date.
func (c *Client) CASAvailableTimes(ctx context.Context, casID string, date time.Time) ([]string, error) {
	raw, err := c.FetchJSON(c.timesURL(casID, date.Format(DateFormat)))
	if err != nil {
		return nil, err
	}
	return parseTimes(raw), nil
}

func parseDates(raw string) ([]time.Time, error) {
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("portal: availability response is not a list: %s", snippet(raw, 120))
	}
	var out []time.Time
	for _, entry := range parsed.Array() {
		ds := entry.Get("date").String()
		if ds == "" {
			continue
		}
		d, err := time.Parse(DateFormat, ds)
		if err != nil {
			return nil, fmt.Errorf("portal: bad date %q in availability response: %w", ds, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseTimes(raw string) []string {
	var out []string
	for _, t := range gjson.Get(raw, "available_times").Array() {
		if s := t.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ResolveCASFacility picks the secondary facility id: explicit operator
// override first, then whatever the portal's own facility picker holds
// (selected option preferred, else the first non-empty one), and the primary
// facility id as the last resort. The picker probe is best-effort.
func (c *Client) ResolveCASFacility(ctx context.Context, override string) (id, source string) {
	if o := strings.TrimSpace(override); o != "" {
		return o, "config-override"
	}
	if cur, err := c.D.CurrentURL(); err == nil && !strings.Contains(cur, c.AppointmentURL()) {
		if err := c.D.Navigate(c.AppointmentURL()); err != nil {
			c.log().Warn("CAS facility probe: appointment page unavailable", "err", err)
			return c.Embassy.FacilityID, "embassy-default"
		}
	}
	if sel, err := c.D.SelectedOption(FieldASCFacility); err == nil && strings.TrimSpace(sel) != "" {
		return strings.TrimSpace(sel), "page-selected"
	}
	if vals, err := c.D.OptionValues(FieldASCFacility); err == nil {
		for _, v := range vals {
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), "page-first-option"
			}
		}
	}
	return c.Embassy.FacilityID, "embassy-default"
}

// SessionToken reads the current session cookie.
func (c *Client) SessionToken() (string, error) {
	return c.D.Cookie(sessionCookie)
}

const signedOutMarker = `a[href*="sign_out"]`

// resumeSession attempts a warm start from the cached token: inject the
// session cookie, open the appointment page, and look for the signed-in
// marker. Any miss falls back to the credential flow; a token that no longer
// authenticates is purged so the next start goes straight to credentials.
func (c *Client) resumeSession(ctx context.Context) bool {
	if c.Tokens == nil {
		return false
	}
	tok, ok := c.Tokens.Load()
	if !ok || tok == "" {
		return false
	}
	// The cookie can only be set once the browser is on the service origin.
	if err := c.D.Navigate(c.SignInURL()); err != nil {
		return false
	}
	if err := c.D.AddCookie(sessionCookie, tok); err != nil {
		c.log().Debug("cached session cookie rejected", "err", err)
		return false
	}
	if err := c.D.Navigate(c.AppointmentURL()); err != nil {
		return false
	}
	timeout := c.ResumeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	err := wait.For(ctx, timeout, time.Second, func() (bool, error) {
		return c.D.Present(signedOutMarker)
	})
	if err != nil {
		c.log().Info("cached session token is stale, signing in with credentials")
		if perr := c.Tokens.Purge(); perr != nil {
			c.log().Warn("stale session token purge failed", "err", perr)
		}
		return false
	}
	c.log().Info("session resumed from cached token")
	return true
}

// SignIn drives the credential form to an established session. A cached
// session token is tried first so a restart does not burn a credential
// sign-in. Cosmetic page furniture (bounce arrow, cookie banner, automation
// fingerprint) is handled best-effort; credential entry, submission, and the
// post-login continue link are essential and fail the sign-in.
func (c *Client) SignIn(ctx context.Context) error {
	if c.resumeSession(ctx) {
		return nil
	}
	if err := c.D.Navigate(c.SignInURL()); err != nil {
		return fmt.Errorf("portal: open sign-in page: %w", err)
	}
	err := wait.For(ctx, 60*time.Second, time.Second, func() (bool, error) {
		return c.D.Present("#user_email")
	})
	if err != nil {
		// One reload before giving up; the landing page is flaky under load.
		if nerr := c.D.Navigate(c.SignInURL()); nerr != nil {
			return fmt.Errorf("portal: reload sign-in page: %w", nerr)
		}
		if err = wait.For(ctx, 90*time.Second, time.Second, func() (bool, error) {
			return c.D.Present("#user_email")
		}); err != nil {
			return fmt.Errorf("portal: sign-in form never appeared: %w", err)
		}
	}

	c.optional("bounce arrow", func() error { return c.D.Click("a.down-arrow") })
	c.optional("cookie banner", c.dismissCookieBanner)
	c.optional("fingerprint reduction", func() error {
		_, err := c.D.ExecScript("Object.defineProperty(navigator, 'webdriver', {get: () => undefined});")
		return err
	})

	if err := c.D.SendKeys("#user_email", c.Email); err != nil {
		return fmt.Errorf("portal: fill email: %w", err)
	}
	if err := c.D.SendKeys("#user_password", c.Password); err != nil {
		return fmt.Errorf("portal: fill password: %w", err)
	}
	c.optional("privacy checkbox", func() error {
		if err := c.D.Click(".icheckbox"); err == nil {
			return nil
		}
		return c.D.Click(`label[for="policy_confirmed"]`)
	})
	if err := c.D.Click(`input[name="commit"]`); err != nil {
		if err2 := c.D.Click(`button[type="submit"], input[type="submit"]`); err2 != nil {
			return fmt.Errorf("portal: submit sign-in: %w", err)
		}
	}

	err = wait.For(ctx, 120*time.Second, time.Second, func() (bool, error) {
		return c.continueLinkPresent()
	})
	if err != nil {
		return fmt.Errorf("portal: no %q link after sign-in: %w", c.Embassy.ContinueText, err)
	}

	c.log().Info("login successful and session established")
	if c.Tokens != nil {
		if tok, terr := c.SessionToken(); terr == nil {
			if serr := c.Tokens.Save(tok); serr != nil {
				c.log().Warn("session token cache write failed", "err", serr)
			}
		}
	}
	return nil
}

// SignOut ends the session epoch. The cached token is purged even when the
// sign-out navigation fails.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.D.Navigate(c.SignOutURL())
	if c.Tokens != nil {
		if perr := c.Tokens.Purge(); perr != nil {
			c.log().Warn("session token cache purge failed", "err", perr)
		}
	}
	if err != nil {
		return fmt.Errorf("portal: sign out: %w", err)
	}
	return nil
}

func (c *Client) continueLinkPresent() (bool, error) {
	out, err := c.D.ExecScript(`var want = arguments[0].toLowerCase();
var as = document.getElementsByTagName('a');
for (var i = 0; i < as.length; i++) {
  if ((as[i].textContent || '').toLowerCase().indexOf(want) !== -1) { return 'y'; }
}
return 'n';`, c.Embassy.ContinueText)
	if err != nil {
		return false, err
	}
	return out == "y", nil
}

func (c *Client) dismissCookieBanner() error {
	for _, sel := range []string{
		"button#onetrust-accept-btn-handler",
		`button[class*="accept"]`,
		`button[aria-label*="Accept"]`,
		`button[title*="Accept"]`,
	} {
		ok, err := c.D.Present(sel)
		if err != nil {
			return err
		}
		if ok {
			return c.D.Click(sel)
		}
	}
	return nil
}

// optional runs a cosmetic step and logs instead of failing. The swallow is
// deliberate: none of these affect whether the claim can proceed.
func (c *Client) optional(label string, fn func() error) {
	if err := fn(); err != nil {
		c.log().Debug("optional step skipped", "step", label, "err", err)
	}
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
