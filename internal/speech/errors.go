package speech

import "github.com/rotisserie/eris"

// Failure kinds surfaced by the pipeline. Every error returned by a Stage, the
// Pipeline or the Service wraps exactly one of them; match with eris.Is.
var (
	// ErrMissingCredential means no hosted backend credential was supplied or configured.
	ErrMissingCredential = eris.New("backend credential is missing")

	// ErrEmptyInput means the topic, or the title fed to the speech stage, was blank.
	ErrEmptyInput = eris.New("input is empty")

	// ErrBackendUnavailable means the backend could not be reached or returned a service error.
	ErrBackendUnavailable = eris.New("backend unavailable")

	// ErrMalformedResponse means the reply was not JSON or lacked the expected string key.
	ErrMalformedResponse = eris.New("backend response is malformed")

	// ErrStageTimeout means a stage exceeded its configured deadline.
	ErrStageTimeout = eris.New("stage deadline exceeded")

	// ErrCancelled means the caller's context ended before the run finished. It is
	// never replaced by a fallback value.
	ErrCancelled = eris.New("run cancelled by caller")
)

// Kind names the failure kind wrapped by err, for logs, metrics and run records.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case eris.Is(err, ErrMissingCredential):
		return "missing_credential"
	case eris.Is(err, ErrEmptyInput):
		return "empty_input"
	case eris.Is(err, ErrCancelled):
		return "cancelled"
	case eris.Is(err, ErrStageTimeout):
		return "timeout"
	case eris.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case eris.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "internal"
	}
}
