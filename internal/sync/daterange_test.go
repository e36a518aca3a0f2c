package sync

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeRangeRoundsPartialStartMonthUp(t *testing.T) {
	start, end := ComputeRange(date(2024, 3, 10), 45)
	if !start.Equal(date(2024, 2, 1)) {
		t.Fatalf("got start %v, want 2024-02-01", start)
	}
	if !end.Equal(date(2024, 3, 10)) {
		t.Fatalf("got end %v, want 2024-03-10", end)
	}
}

func TestComputeRangeLeavesExactMonthStartAlone(t *testing.T) {
	start, _ := ComputeRange(date(2024, 4, 1), 31)
	if !start.Equal(date(2024, 3, 1)) {
		t.Fatalf("got start %v, want 2024-03-01", start)
	}
}

func TestMonthBucketsCoverRangeWithoutGapsOrOverlaps(t *testing.T) {
	buckets := MonthBuckets(date(2024, 2, 1), date(2024, 3, 10))
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d: %+v", len(buckets), buckets)
	}
	if !buckets[0].Start.Equal(date(2024, 2, 1)) || !buckets[0].End.Equal(date(2024, 2, 29)) {
		t.Fatalf("bucket 0 = %+v", buckets[0])
	}
	if !buckets[1].Start.Equal(date(2024, 3, 1)) || !buckets[1].End.Equal(date(2024, 3, 10)) {
		t.Fatalf("bucket 1 = %+v", buckets[1])
	}
	for i := 1; i < len(buckets); i++ {
		if !buckets[i].Start.Equal(buckets[i-1].End.AddDate(0, 0, 1)) {
			t.Fatalf("gap/overlap between bucket %d and %d: %+v", i-1, i, buckets)
		}
	}
	if buckets[len(buckets)-1].End.After(date(2024, 3, 10)) {
		t.Fatal("last bucket end exceeds requested end")
	}
}

func TestMonthBucketsSingleMonth(t *testing.T) {
	buckets := MonthBuckets(date(2024, 6, 5), date(2024, 6, 20))
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}
	if !buckets[0].Start.Equal(date(2024, 6, 5)) || !buckets[0].End.Equal(date(2024, 6, 20)) {
		t.Fatalf("bucket = %+v", buckets[0])
	}
}
