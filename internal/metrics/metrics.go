// Package metrics provides in-process operation metrics for fwmerge.
//
// A Collector counts merge and list/verify operations, the bytes and
// segments they handled, and failures broken down by error kind. It has no
// external dependencies; callers read a Snapshot and export it however
// they like.
//
// Usage:
//
//	collector := metrics.NewCollector("factory-line-3")
//	tool, err := fwmerge.New(&fwmerge.Options{MetricsCollector: collector})
//
//	// ... run merges and lists ...
//
//	snap := collector.GetSnapshot()
//	fmt.Println(snap.MergeTotal, snap.ChecksumFailures)
package metrics

import (
	"math"
	"sync/atomic"
	"time"
)

// FailureKind classifies a failed operation.
type FailureKind int

// Failure kinds
const (
	FailureTruncated FailureKind = iota
	FailureUnknownType
	FailureChecksum
	FailurePayloadTooLarge
	FailureTooLarge
	FailureIO
)

// Collector tracks tool metrics. Safe for concurrent use.
type Collector struct {
	name string

	// Operation counters
	mergeTotal atomic.Uint64
	listTotal  atomic.Uint64

	// Payload metrics
	mergeBytes    atomic.Uint64
	listBytes     atomic.Uint64
	mergeSegments atomic.Uint64
	listSegments  atomic.Uint64

	// Duration histograms (stored as buckets for simplicity)
	mergeDurations *durationHistogram
	listDurations  *durationHistogram

	// Failures by kind
	truncatedFailures   atomic.Uint64
	unknownTypeFailures atomic.Uint64
	checksumFailures    atomic.Uint64
	payloadFailures     atomic.Uint64
	tooLargeFailures    atomic.Uint64
	ioFailures          atomic.Uint64

	lastFailureSec atomic.Int64 // Unix seconds
}

// NewCollector creates a new metrics collector.
func NewCollector(name string) *Collector {
	return &Collector{
		name:           name,
		mergeDurations: newDurationHistogram(),
		listDurations:  newDurationHistogram(),
	}
}

// RecordMerge records a successful merge that produced containerSize bytes.
func (c *Collector) RecordMerge(segments int, containerSize int, duration time.Duration) {
	c.mergeTotal.Add(1)
	c.mergeSegments.Add(uint64(segments))   //nolint:gosec // G115: counts are non-negative
	c.mergeBytes.Add(uint64(containerSize)) //nolint:gosec // G115: sizes are non-negative
	c.mergeDurations.observe(duration)
}

// RecordList records a successful list/verify over containerSize bytes.
func (c *Collector) RecordList(segments int, containerSize int, duration time.Duration) {
	c.listTotal.Add(1)
	c.listSegments.Add(uint64(segments))   //nolint:gosec // G115: counts are non-negative
	c.listBytes.Add(uint64(containerSize)) //nolint:gosec // G115: sizes are non-negative
	c.listDurations.observe(duration)
}

// RecordFailure records a failed merge or list.
func (c *Collector) RecordFailure(kind FailureKind) {
	switch kind {
	case FailureTruncated:
		c.truncatedFailures.Add(1)
	case FailureUnknownType:
		c.unknownTypeFailures.Add(1)
	case FailureChecksum:
		c.checksumFailures.Add(1)
	case FailurePayloadTooLarge:
		c.payloadFailures.Add(1)
	case FailureTooLarge:
		c.tooLargeFailures.Add(1)
	default:
		c.ioFailures.Add(1)
	}
	c.lastFailureSec.Store(time.Now().Unix())
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() *Snapshot {
	return &Snapshot{
		Name:                c.name,
		MergeTotal:          c.mergeTotal.Load(),
		ListTotal:           c.listTotal.Load(),
		MergeBytes:          c.mergeBytes.Load(),
		ListBytes:           c.listBytes.Load(),
		MergeSegments:       c.mergeSegments.Load(),
		ListSegments:        c.listSegments.Load(),
		MergeDurationP50:    c.mergeDurations.percentile(0.50),
		MergeDurationP95:    c.mergeDurations.percentile(0.95),
		MergeDurationP99:    c.mergeDurations.percentile(0.99),
		ListDurationP50:     c.listDurations.percentile(0.50),
		ListDurationP95:     c.listDurations.percentile(0.95),
		ListDurationP99:     c.listDurations.percentile(0.99),
		TruncatedFailures:   c.truncatedFailures.Load(),
		UnknownTypeFailures: c.unknownTypeFailures.Load(),
		ChecksumFailures:    c.checksumFailures.Load(),
		PayloadFailures:     c.payloadFailures.Load(),
		TooLargeFailures:    c.tooLargeFailures.Load(),
		IOFailures:          c.ioFailures.Load(),
		LastFailureUnixSec:  c.lastFailureSec.Load(),
	}
}

// Reset resets all metrics (useful for testing).
func (c *Collector) Reset() {
	c.mergeTotal.Store(0)
	c.listTotal.Store(0)
	c.mergeBytes.Store(0)
	c.listBytes.Store(0)
	c.mergeSegments.Store(0)
	c.listSegments.Store(0)
	c.mergeDurations.reset()
	c.listDurations.reset()
	c.truncatedFailures.Store(0)
	c.unknownTypeFailures.Store(0)
	c.checksumFailures.Store(0)
	c.payloadFailures.Store(0)
	c.tooLargeFailures.Store(0)
	c.ioFailures.Store(0)
	c.lastFailureSec.Store(0)
}

// Snapshot is a point-in-time view of metrics.
type Snapshot struct {
	Name string

	// Operation counters
	MergeTotal uint64
	ListTotal  uint64

	// Payload metrics
	MergeBytes    uint64
	ListBytes     uint64
	MergeSegments uint64
	ListSegments  uint64

	// Duration percentiles
	MergeDurationP50 time.Duration
	MergeDurationP95 time.Duration
	MergeDurationP99 time.Duration
	ListDurationP50  time.Duration
	ListDurationP95  time.Duration
	ListDurationP99  time.Duration

	// Failures by kind
	TruncatedFailures   uint64
	UnknownTypeFailures uint64
	ChecksumFailures    uint64
	PayloadFailures     uint64
	TooLargeFailures    uint64
	IOFailures          uint64
	LastFailureUnixSec  int64
}

// TotalFailures returns the sum of all failure counters.
func (s *Snapshot) TotalFailures() uint64 {
	return s.TruncatedFailures + s.UnknownTypeFailures + s.ChecksumFailures +
		s.PayloadFailures + s.TooLargeFailures + s.IOFailures
}

// durationHistogram is a simple histogram for tracking durations.
// Uses fixed buckets for simplicity (no external dependencies).
type durationHistogram struct {
	buckets [10]atomic.Uint64 // 10 buckets for different duration ranges
}

func newDurationHistogram() *durationHistogram {
	return &durationHistogram{}
}

// reset zeroes every bucket in place.
func (h *durationHistogram) reset() {
	for i := range h.buckets {
		h.buckets[i].Store(0)
	}
}

// observe records a duration in the appropriate bucket.
func (h *durationHistogram) observe(d time.Duration) {
	micros := d.Microseconds()
	var bucket int

	// Bucket boundaries (microseconds):
	// 0: < 1μs, 1: 1-10μs, 2: 10-100μs, 3: 100μs-1ms
	// 4: 1-10ms, 5: 10-100ms, 6: 100ms-1s, 7: 1-10s, 8: >10s
	switch {
	case micros < 1:
		bucket = 0
	case micros < 10:
		bucket = 1
	case micros < 100:
		bucket = 2
	case micros < 1000:
		bucket = 3
	case micros < 10000:
		bucket = 4
	case micros < 100000:
		bucket = 5
	case micros < 1000000:
		bucket = 6
	case micros < 10000000:
		bucket = 7
	case micros < 100000000:
		bucket = 8
	default:
		bucket = 9
	}

	h.buckets[bucket].Add(1)
}

// percentile approximates a percentile from histogram buckets.
func (h *durationHistogram) percentile(p float64) time.Duration {
	// Count total observations
	var total uint64
	for i := 0; i < 10; i++ {
		total += h.buckets[i].Load()
	}

	if total == 0 {
		return 0
	}

	// Find the bucket holding the ceil(total*p)-th observation
	target := uint64(math.Ceil(float64(total) * p))
	if target < 1 {
		target = 1
	}
	var count uint64
	for i := 0; i < 10; i++ {
		n := h.buckets[i].Load()
		if n == 0 {
			continue
		}
		count += n
		if count >= target {
			// Return the upper bound of this bucket
			switch i {
			case 0:
				return 500 * time.Nanosecond
			case 1:
				return 5 * time.Microsecond
			case 2:
				return 50 * time.Microsecond
			case 3:
				return 500 * time.Microsecond
			case 4:
				return 5 * time.Millisecond
			case 5:
				return 50 * time.Millisecond
			case 6:
				return 500 * time.Millisecond
			case 7:
				return 5 * time.Second
			case 8:
				return 50 * time.Second
			default:
				return 100 * time.Second
			}
		}
	}

	return 0
}

// NoopCollector is a metrics collector that does nothing.
// Useful when metrics are disabled.
type NoopCollector struct{}

func (n NoopCollector) RecordMerge(segments int, containerSize int, duration time.Duration) {}
func (n NoopCollector) RecordList(segments int, containerSize int, duration time.Duration)  {}
func (n NoopCollector) RecordFailure(kind FailureKind)                                      {}
