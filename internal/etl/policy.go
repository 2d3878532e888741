package etl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Selection policies for incremental jobs. A policy maps the run start time
// to the lower bound of the rows a job should pick up.
const (
	PolicyTodayStartUTC = "today_start_utc"
	PolicyLast24h       = "last_24h"
	PolicyFull          = "full"
)

// SinceForPolicy resolves a selection policy against the run start time.
// "hours:<n>" selects a custom lookback window.
func SinceForPolicy(policy string, startedAt time.Time) (time.Time, error) {
	switch {
	case policy == "" || policy == PolicyTodayStartUTC:
		return TodayStartUTC(startedAt), nil
	case policy == PolicyLast24h:
		return startedAt.Add(-24 * time.Hour), nil
	case policy == PolicyFull:
		return time.Time{}, nil
	case strings.HasPrefix(policy, "hours:"):
		n, err := strconv.Atoi(strings.TrimPrefix(policy, "hours:"))
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("invalid lookback policy %q", policy)
		}
		return startedAt.Add(-time.Duration(n) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unknown selection policy %q", policy)
	}
}

// TodayStartUTC truncates the given time to midnight UTC.
func TodayStartUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
