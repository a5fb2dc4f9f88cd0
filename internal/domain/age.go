package domain

import (
	"fmt"
	"time"
)

// FormatCompactAge renders the PR list timestamp column: <1m, 3m, 2h, 2d 4h, 2w.
func FormatCompactAge(now, t time.Time) string {
	seconds := int(now.Sub(t) / time.Second)
	if seconds < 60 {
		return "<1m"
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	days := hours / 24
	if days < 7 {
		if rem := hours % 24; rem > 0 {
			return fmt.Sprintf("%dd %dh", days, rem)
		}
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dw", days/7)
}

func FormatRelative(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < time.Second {
		return "just now"
	}
	seconds := int(d / time.Second)
	if seconds < 60 {
		return fmt.Sprintf("%ds ago", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}
	return fmt.Sprintf("%dh ago", minutes/60)
}
