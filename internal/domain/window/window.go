// Package window computes rolling and period-segmented aggregates over a
// user's event history. All functions are pure reads over the ledger.
package window

import (
	"time"

	"github.com/roamly/xpledger/internal/domain/model"
)

// TrailingWindow is the span of the rolling weekly aggregate.
const TrailingWindow = 7 * 24 * time.Hour

// periodLayout formats a UTC instant as a monthly period key, e.g. "2026-08".
const periodLayout = "2006-01"

// WeeklySum returns the sum of event amounts with a timestamp inside the
// trailing seven-day window ending at now. The window boundary is exclusive:
// an event exactly seven days old does not count.
func WeeklySum(history []model.XPEvent, now time.Time) int64 {
	cutoff := now.Add(-TrailingWindow)
	var sum int64
	for _, e := range history {
		if e.Timestamp.After(cutoff) && !e.Timestamp.After(now) {
			sum += e.Amount
		}
	}
	return sum
}

// PeriodKey returns the monthly leaderboard segment key for an instant.
// Keys always derive from UTC so that devices in different timezones agree
// on segment boundaries; a skewed calendar would split one logical month
// into two segments.
func PeriodKey(now time.Time) string {
	return now.UTC().Format(periodLayout)
}
