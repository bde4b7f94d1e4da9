// Package errs defines the error taxonomy of the panel.
package errs

import "errors"

// Error kinds. Every failure surfaced by the panel matches exactly one of them with errors.Is.
var (
	// ErrInvalidInput indicates an empty or malformed URL, or a bad selection, caught before any network call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAnalysis indicates that metadata extraction failed.
	ErrAnalysis = errors.New("analysis failed")
	// ErrStart indicates that the backend refused or failed to start a job.
	ErrStart = errors.New("start download failed")
	// ErrPollTransport indicates that a progress query failed at the transport or decode level.
	ErrPollTransport = errors.New("poll transport failed")
	// ErrJob indicates that the backend reported the job itself as failed.
	ErrJob = errors.New("job failed")
	// ErrList indicates that listing completed downloads failed.
	ErrList = errors.New("list downloads failed")
	// ErrFetch indicates that retrieving a completed file failed.
	ErrFetch = errors.New("fetch file failed")
)

// Backend errors.
var (
	// ErrEmptyDownloadID indicates that the backend accepted a job without returning its id.
	ErrEmptyDownloadID = errors.New("download_id is empty")
	// ErrUnexpectedStatus indicates a non-2xx backend response.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// Error carries a user-visible message next to its kind and cause.
type Error struct {
	// Kind is one of the sentinel kinds above.
	Kind error
	// Message is what the user sees.
	Message string
	// Err is the underlying cause, may be nil.
	Err error
}

// New builds an *Error.
func New(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}

	if e.Err != nil {
		out = append(out, e.Err)
	}

	return out
}

// Message returns the user-visible message of err, or fallback when err carries none.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}

	return fallback
}
