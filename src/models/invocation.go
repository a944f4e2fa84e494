package models

import "time"

// MInvocation represents one stored tool call record.
type MInvocation struct {
	Tool       string    `json:"tool"`
	ArgsJSON   string    `json:"args_json"`
	OK         bool      `json:"ok"`
	ErrorCode  int       `json:"error_code"`
	DurationMs int64     `json:"duration_ms"`
	OutputByte int       `json:"output_bytes"`
	Timestamp  int64     `json:"timestamp"`
	CreatedAt  time.Time `json:"created_at"`
}

// MSnapshot represents an archived analytics payload for later inspection.
type MSnapshot struct {
	Tool      string    `json:"tool"`
	Ccy       string    `json:"ccy"`
	Payload   string    `json:"payload"`
	Timestamp int64     `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}
