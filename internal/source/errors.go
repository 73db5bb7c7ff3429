package source

import "fmt"

// AcquisitionError reports which source failed and why. Always user-facing.
type AcquisitionError struct {
	SourceIndex int
	URL         string
	Err         error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("source %d (%s): %v", e.SourceIndex, e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// DownloadError is an HTTP download that completed with a non-success status.
type DownloadError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx) are
// considered permanent. The pipeline never retries; this classification is
// for the caller issuing a brand-new job.
func (e *DownloadError) IsRetryable() bool {
	return e.StatusCode >= 500
}
