package sync

import "time"

// Bucket is a closed calendar-month interval, clamped at both ends to the
// requested range (spec.md §4.7 step 2, §8 "month partitioning").
type Bucket struct {
	Start time.Time
	End   time.Time
}

// ComputeRange derives the scrape window from historyDays relative to now,
// rounding a partial starting month up to its first day (spec.md §4.7 step
// 2 / §8 "history_days with start.day != 1 advances start to the first of
// the next month"). now is expected to already be in the desired local
// zone; end is truncated to a calendar date.
//
// Grounded on original_source/gocardless/src/sync.rs's run(): `end_date =
// Local::now().date_naive(); start_date = end_date - history_days; if
// start_date.day() > 1 { round up to next month start }`.
func ComputeRange(now time.Time, historyDays int) (start, end time.Time) {
	end = truncateToDate(now)
	start = end.AddDate(0, 0, -historyDays)
	if start.Day() != 1 {
		start = time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, start.Location())
	}
	return start, end
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// MonthBuckets partitions [start, end] into one Bucket per calendar month
// touched by the range, the first starting at start and the last ending at
// end; every other boundary falls on a month start/end. Buckets cover the
// range without gaps or overlaps (spec.md §8).
func MonthBuckets(start, end time.Time) []Bucket {
	if !end.After(start) && !end.Equal(start) {
		return nil
	}
	var buckets []Bucket
	cursor := start
	for !cursor.After(end) {
		monthStart := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, cursor.Location())
		nextMonthStart := monthStart.AddDate(0, 1, 0)
		monthEnd := nextMonthStart.AddDate(0, 0, -1)

		bucketStart := cursor
		bucketEnd := monthEnd
		if bucketEnd.After(end) {
			bucketEnd = end
		}
		buckets = append(buckets, Bucket{Start: bucketStart, End: bucketEnd})

		cursor = nextMonthStart
	}
	return buckets
}
