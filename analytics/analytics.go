// Package analytics aggregates spending from confirmed transactions.
package analytics

import (
	"sort"
	"time"

	"github.com/tunegate/tunegate/channel"
	"github.com/tunegate/tunegate/types"
)

// DayBucket is one UTC day of spending.
type DayBucket struct {
	Day   string      `json:"day"` // "2006-01-02"
	Spent types.Money `json:"spent"`
	Count int         `json:"count"`
}

// Report aggregates a user's spending over a trailing window.
type Report struct {
	UserID          string      `json:"user_id"`
	Days            int         `json:"days"`
	TotalSpent      types.Money `json:"total_spent"`
	Count           int         `json:"transaction_count"`
	Average         types.Money `json:"average_transaction"`
	ContentAccessed int         `json:"content_accessed"`
	Daily           []DayBucket `json:"daily"`
}

// Spending builds a Report from confirmed transactions within the trailing
// window of the given number of days, bucketed by UTC day. Refunds are
// excluded from spend totals.
func Spending(userID string, txns []*channel.Transaction, days int, currency string, now time.Time) *Report {
	if days <= 0 {
		days = 30
	}

	cutoff := now.UTC().AddDate(0, 0, -days)

	report := &Report{
		UserID:     userID,
		Days:       days,
		TotalSpent: types.Zero(currency),
		Average:    types.Zero(currency),
	}

	buckets := make(map[string]*DayBucket)
	seen := make(map[string]struct{})

	for _, t := range txns {
		if t.Status != channel.TxConfirmed || t.Type == channel.TxRefund {
			continue
		}
		if t.Timestamp.Before(cutoff) {
			continue
		}

		report.TotalSpent = report.TotalSpent.Add(t.Amount)
		report.Count++

		if t.ContentID != "" {
			if _, ok := seen[t.ContentID]; !ok {
				seen[t.ContentID] = struct{}{}
				report.ContentAccessed++
			}
		}

		day := t.Timestamp.UTC().Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &DayBucket{Day: day, Spent: types.Zero(currency)}
			buckets[day] = b
		}
		b.Spent = b.Spent.Add(t.Amount)
		b.Count++
	}

	if report.Count > 0 {
		report.Average = report.TotalSpent.Divide(int64(report.Count))
	}

	report.Daily = make([]DayBucket, 0, len(buckets))
	for _, b := range buckets {
		report.Daily = append(report.Daily, *b)
	}
	sort.Slice(report.Daily, func(i, j int) bool {
		return report.Daily[i].Day < report.Daily[j].Day
	})

	return report
}
