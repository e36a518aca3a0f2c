package sync

import (
	"time"

	json "github.com/goccy/go-json"
)

// Record is an opaque upstream JSON object; the orchestrator only ever
// inspects the handful of indexed fields spec.md §3 names, never the full
// domain schema.
type Record = json.RawMessage

type indexedAccountFields struct {
	AccountID string `json:"account_id"`
	SortCode  string `json:"sort_code"`
	Number    string `json:"number"`
}

// AccountKey computes the directory name for an account/card record:
// "{sort_code} {number}" when both are present, else the bare account_id
// (spec.md §4.7 step 4).
func AccountKey(raw Record) (string, error) {
	var f indexedAccountFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", err
	}
	if f.SortCode != "" && f.Number != "" {
		return f.SortCode + " " + f.Number, nil
	}
	return f.AccountID, nil
}

type indexedTransactionDates struct {
	BookingDate     string `json:"booking_date"`
	BookingDateTime string `json:"booking_date_time"`
	ValueDate       string `json:"value_date"`
}

// TransactionBucketDate extracts the calendar date used to assign a
// transaction to a month bucket, consulting booking_date,
// booking_date_time (truncated to a UTC calendar date) and value_date in
// that priority order (spec.md §3). The second return is false when none
// of the three fields are present or parseable, meaning the record belongs
// in the undated bucket.
func TransactionBucketDate(raw Record) (time.Time, bool) {
	var d indexedTransactionDates
	if err := json.Unmarshal(raw, &d); err != nil {
		return time.Time{}, false
	}
	if d.BookingDate != "" {
		if t, err := time.Parse("2006-01-02", d.BookingDate); err == nil {
			return t, true
		}
	}
	if d.BookingDateTime != "" {
		if t, err := time.Parse(time.RFC3339, d.BookingDateTime); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	if d.ValueDate != "" {
		if t, err := time.Parse("2006-01-02", d.ValueDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MonthKey formats t as the "YYYY-MM" bucket filename stem.
func MonthKey(t time.Time) string { return t.Format("2006-01") }
