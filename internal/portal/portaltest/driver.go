// Package portaltest provides a scriptable in-memory Driver for tests.
package portaltest

import (
	"errors"
	"strings"
	"sync"
)

// Driver implements portal.Driver. Behavior is configured per method via the
// hook fields; unset hooks succeed with zero values. All calls are recorded.
type Driver struct {
	mu    sync.Mutex
	calls []string

	URL     string
	Source  string
	Cookies map[string]string
	PNG     []byte

	// Present-by-selector and select-element contents.
	Selectors map[string]bool
	Options   map[string][]string
	Selected  map[string]string

	// OnExecScript receives the script and args; return value and error are
	// passed through. When nil, scripts return "".
	OnExecScript func(script string, args ...any) (string, error)

	FailClick      map[string]error
	FailForceClick map[string]error
	FailSetField   map[string]error
	NavigateErr    error
	AddCookieErr   error
}

func (d *Driver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

// Calls returns the ordered method log, entries like "click:#foo".
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// Called reports whether any recorded call has the given prefix.
func (d *Driver) Called(prefix string) bool {
	for _, c := range d.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (d *Driver) Navigate(url string) error {
	d.record("navigate:" + url)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.URL = url
	return nil
}

func (d *Driver) CurrentURL() (string, error) {
	d.record("currentURL")
	return d.URL, nil
}

func (d *Driver) PageSource() (string, error) {
	d.record("pageSource")
	return d.Source, nil
}

func (d *Driver) Screenshot() ([]byte, error) {
	d.record("screenshot")
	if d.PNG == nil {
		return []byte("png"), nil
	}
	return d.PNG, nil
}

func (d *Driver) Cookie(name string) (string, error) {
	d.record("cookie:" + name)
	if v, ok := d.Cookies[name]; ok {
		return v, nil
	}
	return "", errors.New("no such cookie " + name)
}

func (d *Driver) AddCookie(name, value string) error {
	d.record("addCookie:" + name)
	if d.AddCookieErr != nil {
		return d.AddCookieErr
	}
	if d.Cookies == nil {
		d.Cookies = map[string]string{}
	}
	d.Cookies[name] = value
	return nil
}

func (d *Driver) ExecScript(script string, args ...any) (string, error) {
	d.record("execScript")
	if d.OnExecScript != nil {
		return d.OnExecScript(script, args...)
	}
	return "", nil
}

func (d *Driver) SetFieldValue(fieldID, value string) error {
	d.record("setField:" + fieldID + "=" + value)
	if err := d.FailSetField[fieldID]; err != nil {
		return err
	}
	return nil
}

func (d *Driver) DispatchChange(fieldID string) error {
	d.record("dispatchChange:" + fieldID)
	return nil
}

func (d *Driver) Click(selector string) error {
	d.record("click:" + selector)
	if err := d.FailClick[selector]; err != nil {
		return err
	}
	return nil
}

func (d *Driver) ForceClick(selector string) error {
	d.record("forceClick:" + selector)
	if err := d.FailForceClick[selector]; err != nil {
		return err
	}
	return nil
}

func (d *Driver) SendKeys(selector, text string) error {
	d.record("sendKeys:" + selector)
	return nil
}

func (d *Driver) Present(selector string) (bool, error) {
	d.record("present:" + selector)
	return d.Selectors[selector], nil
}

func (d *Driver) OptionValues(selectID string) ([]string, error) {
	d.record("optionValues:" + selectID)
	return d.Options[selectID], nil
}

func (d *Driver) SelectedOption(selectID string) (string, error) {
	d.record("selectedOption:" + selectID)
	return d.Selected[selectID], nil
}

func (d *Driver) SelectFirstOption(selectID string) (string, error) {
	d.record("selectFirst:" + selectID)
	for _, v := range d.Options[selectID] {
		if strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return "", nil
}
