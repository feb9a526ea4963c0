package store

import "time"

// Run status values
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial" // some buckets failed
	StatusFailed  = "failed"  // every bucket failed or the run aborted
)

// Run records one fetch invocation
type Run struct {
	ID           string // uuid
	StartedAt    time.Time
	FinishedAt   time.Time
	Mode         string // "raw", "decompressed", "transcoded"
	Concurrency  int
	ThrottleMS   int64
	OutputDir    string
	Total        int
	Succeeded    int
	Failed       int
	Bytes        int64
	Status       string
	ErrorMessage string
}

// BucketRecord is the outcome of one archive within a run
type BucketRecord struct {
	ID         int64
	RunID      string
	Key        string
	Status     string // "success" or "failed"
	Bytes      int64
	Records    int
	Files      string // comma-separated paths
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
