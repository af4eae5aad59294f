// Package webdriver is a minimal W3C WebDriver wire-protocol client, just
// enough surface to drive the booking portal through a local chromedriver or
// a remote Selenium hub.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	hc        *http.Client
	base      string
	sessionID string
}

// Options shape the browser session we ask the hub for.
type Options struct {
	// HubAddress is the WebDriver endpoint, e.g. http://localhost:9515 or a
	// remote grid's /wd/hub URL.
	HubAddress string
	Headless   bool
	UserAgent  string
}

// Connect opens a new browser session against the hub.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	args := []string{
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--window-size=1920,1080",
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent="+opts.UserAgent)
	}
	caps := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName": "chrome",
				"goog:chromeOptions": map[string]any{
					"args":            args,
					"excludeSwitches": []string{"enable-automation"},
				},
			},
		},
	}

	c := &Client{
		hc:   &http.Client{Timeout: 2 * time.Minute},
		base: strings.TrimRight(opts.HubAddress, "/"),
	}
	var res struct {
		Value struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", caps, &res); err != nil {
		return nil, fmt.Errorf("webdriver: create session: %w", err)
	}
	if res.Value.SessionID == "" {
		return nil, fmt.Errorf("webdriver: hub returned no session id")
	}
	c.sessionID = res.Value.SessionID
	return c, nil
}

// Quit tears the browser session down.
func (c *Client) Quit(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, c.spath(""), nil, nil)
}

func (c *Client) Navigate(url string) error {
	return c.do(context.Background(), http.MethodPost, c.spath("/url"), map[string]string{"url": url}, nil)
}

func (c *Client) CurrentURL() (string, error) {
	var res struct {
		Value string `json:"value"`
	}
	if err := c.do(context.Background(), http.MethodGet, c.spath("/url"), nil, &res); err != nil {
		return "", err
	}
	return res.Value, nil
}

func (c *Client) PageSource() (string, error) {
	var res struct {
		Value string `json:"value"`
	}
	if err := c.do(context.Background(), http.MethodGet, c.spath("/source"), nil, &res); err != nil {
		return "", err
	}
	return res.Value, nil
}

// Screenshot returns the viewport as PNG bytes.
func (c *Client) Screenshot() ([]byte, error) {
	var res struct {
		Value []byte `json:"value"` // base64 in JSON, decoded by encoding/json
	}
	if err := c.do(context.Background(), http.MethodGet, c.spath("/screenshot"), nil, &res); err != nil {
		return nil, err
	}
	return res.Value, nil
}

// AddCookie installs a cookie for the current page's domain. The browser
// must already be on the target origin or the hub rejects it.
func (c *Client) AddCookie(name, value string) error {
	body := map[string]any{
		"cookie": map[string]any{
			"name":  name,
			"value": value,
			"path":  "/",
		},
	}
	if err := c.do(context.Background(), http.MethodPost, c.spath("/cookie"), body, nil); err != nil {
		return fmt.Errorf("webdriver: add cookie %q: %w", name, err)
	}
	return nil
}

// Cookie returns the value of a named cookie, or an error when absent.
func (c *Client) Cookie(name string) (string, error) {
	var res struct {
		Value struct {
			Value string `json:"value"`
		} `json:"value"`
	}
	if err := c.do(context.Background(), http.MethodGet, c.spath("/cookie/"+name), nil, &res); err != nil {
		return "", fmt.Errorf("webdriver: cookie %q: %w", name, err)
	}
	return res.Value.Value, nil
}

// ExecScript runs a synchronous script in the page and returns its result
// rendered as a string. Arguments land in the script's `arguments` array.
func (c *Client) ExecScript(script string, args ...any) (string, error) {
	if args == nil {
		args = []any{}
	}
	body := map[string]any{"script": script, "args": args}
	var res struct {
		Value any `json:"value"`
	}
	if err := c.do(context.Background(), http.MethodPost, c.spath("/execute/sync"), body, &res); err != nil {
		return "", err
	}
	switch v := res.Value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		b, _ := json.Marshal(v)
		return string(b), nil
	}
}

// SetFieldValue forces a value into an input by id, stripping any readonly
// attribute first so datepicker-guarded fields accept it.
func (c *Client) SetFieldValue(fieldID, value string) error {
	_, err := c.ExecScript(`var el = document.getElementById(arguments[0]);
if (!el) { throw new Error('no element #' + arguments[0]); }
el.scrollIntoView({block: 'center'});
el.removeAttribute('readonly');
el.value = arguments[1];`, fieldID, value)
	return err
}

// DispatchChange fires a bubbling change event so dependent controls reload.
func (c *Client) DispatchChange(fieldID string) error {
	_, err := c.ExecScript(`var el = document.getElementById(arguments[0]);
if (!el) { throw new Error('no element #' + arguments[0]); }
el.dispatchEvent(new Event('change', {bubbles: true}));`, fieldID)
	return err
}

// Click performs a real WebDriver click on the first element matching the
// CSS selector.
func (c *Client) Click(selector string) error {
	id, err := c.findElement(selector)
	if err != nil {
		return err
	}
	return c.do(context.Background(), http.MethodPost, c.spath("/element/"+id+"/click"), map[string]any{}, nil)
}

// ForceClick clicks via script, the fallback for elements that reject a
// direct interaction.
func (c *Client) ForceClick(selector string) error {
	_, err := c.ExecScript(`var el = document.querySelector(arguments[0]);
if (!el) { throw new Error('no element ' + arguments[0]); }
el.scrollIntoView({block: 'center'});
el.click();`, selector)
	return err
}

// SendKeys types text into the first element matching the CSS selector.
func (c *Client) SendKeys(selector, text string) error {
	id, err := c.findElement(selector)
	if err != nil {
		return err
	}
	return c.do(context.Background(), http.MethodPost, c.spath("/element/"+id+"/value"),
		map[string]any{"text": text}, nil)
}

// Present reports whether any element matches the CSS selector.
func (c *Client) Present(selector string) (bool, error) {
	out, err := c.ExecScript(`return document.querySelector(arguments[0]) ? 'y' : 'n';`, selector)
	if err != nil {
		return false, err
	}
	return out == "y", nil
}

// OptionValues returns the value attribute of every option in a select, in
// document order.
func (c *Client) OptionValues(selectID string) ([]string, error) {
	out, err := c.ExecScript(`var el = document.getElementById(arguments[0]);
if (!el) { return '[]'; }
return JSON.stringify(Array.prototype.map.call(el.options, function(o){ return o.value; }));`, selectID)
	if err != nil {
		return nil, err
	}
	var vals []string
	if err := json.Unmarshal([]byte(out), &vals); err != nil {
		return nil, fmt.Errorf("webdriver: option values for #%s: %w", selectID, err)
	}
	return vals, nil
}

// SelectedOption returns the value currently selected in a select element,
// empty when none or when the element is missing.
func (c *Client) SelectedOption(selectID string) (string, error) {
	return c.ExecScript(`var el = document.getElementById(arguments[0]);
if (!el || el.selectedIndex < 0) { return ''; }
return el.options[el.selectedIndex].value;`, selectID)
}

// SelectFirstOption picks the first non-empty option of a select and fires a
// change event, returning the chosen value.
func (c *Client) SelectFirstOption(selectID string) (string, error) {
	return c.ExecScript(`var el = document.getElementById(arguments[0]);
if (!el) { throw new Error('no element #' + arguments[0]); }
for (var i = 0; i < el.options.length; i++) {
  var v = el.options[i].value;
  if (v && v.trim() !== '') {
    el.value = v;
    el.dispatchEvent(new Event('change', {bubbles: true}));
    return v;
  }
}
return '';`, selectID)
}

func (c *Client) findElement(selector string) (string, error) {
	body := map[string]string{"using": "css selector", "value": selector}
	var res struct {
		Value map[string]string `json:"value"`
	}
	if err := c.do(context.Background(), http.MethodPost, c.spath("/element"), body, &res); err != nil {
		return "", fmt.Errorf("webdriver: find %q: %w", selector, err)
	}
	for _, id := range res.Value {
		return id, nil
	}
	return "", fmt.Errorf("webdriver: find %q: empty element reference", selector)
}

func (c *Client) spath(suffix string) string {
	return "/session/" + c.sessionID + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var werr struct {
			Value struct {
				Error   string `json:"error"`
				Message string `json:"message"`
			} `json:"value"`
		}
		_ = json.Unmarshal(raw, &werr)
		if werr.Value.Error != "" {
			return fmt.Errorf("webdriver: %s %s: %s: %s", method, path, werr.Value.Error, firstLine(werr.Value.Message))
		}
		return fmt.Errorf("webdriver: %s %s: http %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("webdriver: decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
