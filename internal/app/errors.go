package app

import "errors"

var (
	// ErrFolderConflict indicates both folder designators were supplied.
	ErrFolderConflict = errors.New("provide either folder_id or folder_path, not both")
	// ErrFolderNotFound indicates the folder does not exist for this user.
	// Folders owned by other users are reported identically on purpose.
	ErrFolderNotFound = errors.New("folder not found for this user")
	// ErrJobNotFound indicates no job row matches the prediction id.
	ErrJobNotFound = errors.New("prediction not found")
	// ErrNotJobOwner indicates the job belongs to a different user.
	ErrNotJobOwner = errors.New("not authorized")
	// ErrWebhookNotConfigured indicates the callback base URL is missing.
	ErrWebhookNotConfigured = errors.New("webhook base URL is not configured")
	// ErrMissingPredictionID indicates a callback payload without a job id.
	ErrMissingPredictionID = errors.New("missing prediction id in webhook payload")
	// ErrInputRequired indicates a generation request with nothing to generate.
	ErrInputRequired = errors.New("prompt or image_url is required")
)

// UpstreamError wraps a store or provider failure. It is surfaced as an
// upstream-dependency failure and never retried locally.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
