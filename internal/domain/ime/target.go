package ime

import (
	"strings"

	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// Target names an IME to run: its bundle, the extension ability inside the
// bundle and optionally the subtype to select.
type Target struct {
	BundleName    string `json:"bundle_name"`
	ExtensionName string `json:"extension_name"`
	SubName       string `json:"sub_name,omitempty"`
}

// String renders "bundle/extension".
func (t Target) String() string {
	return t.BundleName + "/" + t.ExtensionName
}

// IsZero reports whether t names nothing.
func (t Target) IsZero() bool { return t.BundleName == "" }

// Same reports whether t and o run the same extension, ignoring subtype.
func (t Target) Same(o Target) bool {
	return t.BundleName == o.BundleName && t.ExtensionName == o.ExtensionName
}

// ParseTarget parses "bundle/extension".
func ParseTarget(s string) (Target, error) {
	bundle, ext, ok := strings.Cut(s, "/")
	if !ok || bundle == "" || ext == "" {
		return Target{}, errs.Wrap(errs.ErrorBadParameters, "ime target %q", s)
	}
	return Target{BundleName: bundle, ExtensionName: ext}, nil
}
