package portal

import (
	"fmt"
	"sort"
	"strings"
)

// Embassy identifies one consular post on the booking service: the locale
// segment used in its URLs, the facility id of its appointment calendar, and
// the localized text of the link that appears once sign-in succeeds.
type Embassy struct {
	Locale       string
	FacilityID   string
	ContinueText string
}

var embassies = map[string]Embassy{
	"en-am": {Locale: "en-am", FacilityID: "122", ContinueText: "Continue"},
	"en-ca": {Locale: "en-ca", FacilityID: "89", ContinueText: "Continue"},
	"es-co": {Locale: "es-co", FacilityID: "25", ContinueText: "Continuar"},
	"es-mx": {Locale: "es-mx", FacilityID: "65", ContinueText: "Continuar"},
	"pt-br": {Locale: "pt-br", FacilityID: "54", ContinueText: "Continuar"},
	"en-ae": {Locale: "en-ae", FacilityID: "91", ContinueText: "Continue"},
	"en-il": {Locale: "en-il", FacilityID: "106", ContinueText: "Continue"},
	"es-ec": {Locale: "es-ec", FacilityID: "69", ContinueText: "Continuar"},
}

// LookupEmbassy resolves an operator-supplied embassy code. Unknown codes are
// a configuration error and fatal at startup.
func LookupEmbassy(code string) (Embassy, error) {
	e, ok := embassies[strings.TrimSpace(code)]
	if !ok {
		known := make([]string, 0, len(embassies))
		for k := range embassies {
			known = append(known, k)
		}
		sort.Strings(known)
		return Embassy{}, fmt.Errorf("portal: unknown embassy %q, available: %s", code, strings.Join(known, ", "))
	}
	return e, nil
}
