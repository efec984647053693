package monitoring

import (
	"github.com/GriffinCanCode/imf/internal/shared/errs"
)

// StatusLabel maps an error to a bounded label value
func StatusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return errs.From(err).Error()
}
