package perfgate

import (
	"errors"
	"fmt"
)

// ErrBudgetNotFound is returned by UpdateBudget when the named budget has
// never been registered (or was removed). RemoveBudget deliberately does not
// return it: deletes are idempotent.
var ErrBudgetNotFound = errors.New("budget not found")

// ConfigError reports an invalid budget definition rejected at registration
// time. Threshold ordering is validated eagerly so a misconfigured budget
// fails fast instead of silently misclassifying samples.
type ConfigError struct {
	Budget string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid budget %q: %s", e.Budget, e.Reason)
}
