package observability

import (
	"fmt"
	"strings"
	"time"
)

// FormatStats renders the session metrics as one line.
func FormatStats(stats SessionMetrics) string {
	var parts []string

	duration := stats.EndTime.Sub(stats.StartTime)
	if duration < time.Second {
		parts = append(parts, fmt.Sprintf("%dms", duration.Milliseconds()))
	} else {
		parts = append(parts, fmt.Sprintf("%.1fs", duration.Seconds()))
	}

	if stats.TotalRequests > 0 {
		parts = append(parts, plural(stats.TotalRequests, "request", "requests"))
	}
	if stats.Exchanges > 0 {
		parts = append(parts, plural(stats.Exchanges, "refresh", "refreshes"))
	}
	if stats.SharedRefreshes > 0 {
		parts = append(parts, fmt.Sprintf("%d shared", stats.SharedRefreshes))
	}
	if stats.Replays > 0 {
		parts = append(parts, plural(stats.Replays, "replay", "replays"))
	}
	if stats.Expirations > 0 {
		parts = append(parts, "session expired")
	}
	if stats.FailedOps > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.FailedOps))
	}

	return "Stats: " + strings.Join(parts, " | ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
