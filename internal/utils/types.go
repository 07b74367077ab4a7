package utils

import "time"

// Job is one download handled by the scheduler.
type Job struct {
	ID          string
	URL         string
	OutputPath  string
	Connections int
	KeepCache   bool
}

// DownloadSettings holds engine tuning shared by every job of a run.
type DownloadSettings struct {
	Connections    int
	KeepCache      bool
	Retries        int
	RetryBackoff   time.Duration
	StatusInterval time.Duration
	RateLimit      int64
	ReadTimeout    time.Duration
	S3Profile      string
}

type DownloadEntry struct {
	OutputPath string `yaml:"op"`
	URL        string `yaml:"link"`
}
