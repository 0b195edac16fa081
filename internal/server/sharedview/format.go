package sharedview

import (
	"fmt"
	"time"
)

// FormatTimeRemaining renders a countdown collapsed to its two largest
// units: "2d 5h", "1h 1m", "1m 30s", "45s". Negative input reads "0s".
func FormatTimeRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case days >= 1:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours >= 1:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes >= 1:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
