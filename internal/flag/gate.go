package flag

import (
	"fmt"
	"strings"

	"fiskeat/internal/menu"
)

const (
	reasonUnavailable = "Flagging is unavailable right now."
	reasonNotToday    = "Flagging is only available for today's menu."
)

// Decision is the outcome of a gate check. Reason is empty when Eligible.
type Decision struct {
	Eligible bool
	Reason   string
}

// Check decides whether requestedMeal may be flagged. The active meal is whatever
// the backend declared; it is never derived from the clock.
func Check(navigatedDate, requestedMeal, activeMeal, today string) Decision {
	active := strings.TrimSpace(activeMeal)
	if navigatedDate != today {
		if active != "" {
			return Decision{Reason: fmt.Sprintf("Flagging is only available for %s on today's menu.", active)}
		}
		return Decision{Reason: reasonNotToday}
	}

	if active == "" {
		return Decision{Reason: reasonUnavailable}
	}

	if !menu.SameMeal(requestedMeal, active) {
		return Decision{Reason: fmt.Sprintf("Flagging is only available for %s right now.", active)}
	}
	return Decision{Eligible: true}
}
