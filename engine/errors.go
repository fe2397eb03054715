package engine

import "fmt"

// ResolutionError wraps failures of address prediction, deployment-status or
// registration reads. Callers must not assume "not deployed" or "not
// registered" when one of these surfaces.
type ResolutionError struct {
	Op  string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("engine resolution failed (%s): %v", e.Op, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// SubmissionError wraps a rejected or unreachable state-changing call. These
// are never retried locally; redelivery of the same logical event reuses the
// same idempotency key instead.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("engine submission failed (%s): %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
