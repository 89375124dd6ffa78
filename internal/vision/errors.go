package vision

import "fmt"

// Upload validation error codes.
const (
	CodeEmpty    = "empty_upload"
	CodeTooLarge = "file_too_large"
	CodeBadImage = "invalid_image"
)

// ValidationError rejects a user-supplied image before it replaces any state.
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// InferenceError marks a detection run that failed inside the runtime. The
// session that produced it stays usable.
type InferenceError struct {
	Cause error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Cause)
}

func (e *InferenceError) Unwrap() error {
	return e.Cause
}
