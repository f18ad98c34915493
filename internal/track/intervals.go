package track

import "sort"

// intervalIndex provides O(log n + k) overlap queries using a sorted-slice
// approach. Intervals are loaded once and never modified after build.
type intervalIndex struct {
	intervals []interval
	maxEnd    []int64 // maxEnd[i] = max(end) for intervals[:i+1]
}

// interval is a half-open [start, end) range carrying one signal value.
type interval struct {
	start int64
	end   int64
	value float64
}

// buildIntervalIndex creates an index from unsorted intervals.
func buildIntervalIndex(intervals []interval) *intervalIndex {
	if len(intervals) == 0 {
		return &intervalIndex{}
	}

	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].start < intervals[j].start
	})

	// Prefix-max array: maxEnd[i] = max(end) for intervals[:i+1]
	maxEnd := make([]int64, len(intervals))
	maxEnd[0] = intervals[0].end
	for i := 1; i < len(intervals); i++ {
		maxEnd[i] = max(maxEnd[i-1], intervals[i].end)
	}

	return &intervalIndex{intervals: intervals, maxEnd: maxEnd}
}

// overlaps calls fn for every interval overlapping [start, end).
func (t *intervalIndex) overlaps(start, end int64, fn func(interval)) {
	if len(t.intervals) == 0 || start >= end {
		return
	}

	// hi is the first index with start >= end; candidates are [0, hi).
	hi := sort.Search(len(t.intervals), func(i int) bool {
		return t.intervals[i].start >= end
	})

	// lo is the first index whose prefix max end passes the query start;
	// no interval before it can reach into the query.
	lo := sort.Search(hi, func(i int) bool {
		return t.maxEnd[i] > start
	})

	for i := lo; i < hi; i++ {
		if t.intervals[i].end > start {
			fn(t.intervals[i])
		}
	}
}

// maxEndpoint returns the largest interval end, or 0 for an empty index.
func (t *intervalIndex) maxEndpoint() int64 {
	if len(t.maxEnd) == 0 {
		return 0
	}
	return t.maxEnd[len(t.maxEnd)-1]
}
