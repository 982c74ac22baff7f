// Package settings holds process-wide operator controls, currently the
// global automation switch.
package settings

import (
	"context"
	"time"
)

// AutomationSwitch is the fleet-wide automation kill switch. It is read
// before every automation invocation and written only by operator action.
type AutomationSwitch struct {
	Enabled   bool      `json:"enabled"`
	ToggledAt time.Time `json:"toggled_at"`
}

// Repository persists the switch. Reads are always fresh: the switch is
// never cached per worker so a toggle takes effect on the next evaluation.
type Repository interface {
	GetAutomationSwitch(ctx context.Context) (AutomationSwitch, error)
	SetAutomationSwitch(ctx context.Context, enabled bool) (AutomationSwitch, error)
}
