package utils

import (
	"sync"

	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// MetricsRing is a fixed-size circular buffer of invocation samples.
// True ring buffer - no resizing on append!
// -----------------------------------------------------------------------------

type MetricsRing struct {
	mu sync.Mutex

	// Sample storage as 2D slice (rows x features)
	data     [][models.MX_NUM_FEATURES]float64
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewMetricsRing creates a new ring with fixed capacity
func NewMetricsRing(capacity int) *MetricsRing {
	if capacity <= 0 {
		capacity = 1000 // Default reasonable size
	}

	return &MetricsRing{
		data:     make([][models.MX_NUM_FEATURES]float64, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Record adds one invocation sample (Strict Type)
func (mr *MetricsRing) Record(inv models.MInvocation) {
	ok := 0.0
	if inv.OK {
		ok = 1.0
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	mr.data[mr.index] = [models.MX_NUM_FEATURES]float64{
		float64(inv.Timestamp),
		float64(inv.DurationMs),
		ok,
		float64(inv.OutputByte),
	}

	mr.index = (mr.index + 1) % mr.capacity

	// Update size (never exceeds capacity)
	if mr.size < mr.capacity {
		mr.size++
	}
}

// -----------------------------------------------------------------------------

// Summary aggregates the retained samples into processing metrics.
// Cache counters are filled in by the caller which owns the cache.
func (mr *MetricsRing) Summary() models.MProcessingMetrics {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	out := models.MProcessingMetrics{Calls: mr.size}
	if mr.size == 0 {
		return out
	}

	var durSum, byteSum float64

	// Calculate start index (oldest element)
	startIdx := 0
	if mr.size == mr.capacity {
		startIdx = mr.index
	}

	for i := 0; i < mr.size; i++ {
		idx := (startIdx + i) % mr.capacity
		row := mr.data[idx]

		durSum += row[models.MX_IDX_DURATION]
		byteSum += row[models.MX_IDX_BYTES]
		if row[models.MX_IDX_OK] == 0 {
			out.Errors++
		}
	}

	out.AvgDurationMs = durSum / float64(mr.size)
	out.AvgOutputByte = byteSum / float64(mr.size)
	return out
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (mr *MetricsRing) Size() int {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.size
}

// -----------------------------------------------------------------------------

// Capacity returns ring capacity (fixed)
func (mr *MetricsRing) Capacity() int {
	return mr.capacity
}

// -----------------------------------------------------------------------------

// Clear resets the ring
func (mr *MetricsRing) Clear() {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.index = 0
	mr.size = 0
}
