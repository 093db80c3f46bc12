package countdown

import (
	"fmt"
	"time"
)

// FormatRemaining renders time left as "Mm Ss" under a minute and as
// "Dd Hh Mm Ss" otherwise, flooring at every unit.
func FormatRemaining(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	total := int64(remaining / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60
	if remaining < time.Minute {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}
