package portal

// Driver is the browser-session capability the core consumes. The webdriver
// client satisfies it; tests substitute fakes. Every method can fail, and
// callers decide per call site whether a failure is attempt-terminating or
// merely cosmetic.
type Driver interface {
	Navigate(url string) error
	CurrentURL() (string, error)
	PageSource() (string, error)
	Screenshot() ([]byte, error)
	Cookie(name string) (string, error)
	AddCookie(name, value string) error
	ExecScript(script string, args ...any) (string, error)
	SetFieldValue(fieldID, value string) error
	DispatchChange(fieldID string) error
	Click(selector string) error
	ForceClick(selector string) error
	SendKeys(selector, text string) error
	Present(selector string) (bool, error)
	OptionValues(selectID string) ([]string, error)
	SelectedOption(selectID string) (string, error)
	SelectFirstOption(selectID string) (string, error)
}
