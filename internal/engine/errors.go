package engine

import (
	"fmt"
	"time"
)

// EngineError reports an ffmpeg invocation that exited non-zero or failed to
// spawn. Stderr carries the trimmed diagnostic tail for support/debugging.
type EngineError struct {
	ExitCode int
	Stderr   string
}

func (e *EngineError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("media engine exited %d", e.ExitCode)
	}
	return fmt.Sprintf("media engine exited %d: %s", e.ExitCode, e.Stderr)
}

// TimeoutError is the distinguished engine failure for invocations that were
// forcibly terminated after exceeding their time limit.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("media engine timed out after %s (limit %s)", e.Elapsed.Round(time.Millisecond), e.Limit)
}
