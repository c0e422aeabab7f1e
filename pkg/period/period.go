package period

import (
	"strings"

	"datimsync/pkg/syncerr"
)

// Default lists the periods defined in the PEPFAR metadata.
var Default = []string{"FY17"}

// Validate fails when p is not one of allowed. An empty allow list means
// Default.
func Validate(p string, allowed []string) error {
	if len(allowed) == 0 {
		allowed = Default
	}
	for _, a := range allowed {
		if p == a {
			return nil
		}
	}
	return &syncerr.ValidationError{
		Field: "period",
		Value: p,
		Msg:   "period not recognized, expected one of " + strings.Join(allowed, ", "),
	}
}
