package render

import "fmt"

// PlanningError reports an edit plan that cannot produce output: inverted
// trim range, or cuts that remove everything. Always user-facing, never
// retried.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return "edit plan cannot be rendered: " + e.Reason
}

// VerificationError reports an output file that was still missing or empty
// after bounded retries. Treated as an engine failure: the encoder claimed
// success but the filesystem disagrees.
type VerificationError struct {
	Path     string
	Attempts int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("output %s missing or empty after %d checks", e.Path, e.Attempts)
}
