package models

// Metrics ring sample layout
const (
	MX_IDX_TIMESTAMP = 0
	MX_IDX_DURATION  = 1
	MX_IDX_OK        = 2
	MX_IDX_BYTES     = 3
	MX_NUM_FEATURES  = 4
)

// MProcessingMetrics summarizes recent tool call performance.
type MProcessingMetrics struct {
	Calls         int     `json:"calls"`
	Errors        int     `json:"errors"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	AvgOutputByte float64 `json:"avg_output_bytes"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
}
