package llm

import (
	"fmt"
	"strings"
)

// BackendUnreachableError reports a failure to connect to the model
// backend. It is the only error class the startup validator retries.
type BackendUnreachableError struct {
	Endpoint string
	Err      error
}

func (e *BackendUnreachableError) Error() string {
	return fmt.Sprintf("model backend unreachable at %s: %v", e.Endpoint, e.Err)
}

func (e *BackendUnreachableError) Unwrap() error { return e.Err }

// ModelNotFoundError reports that the configured model is not served
// by the backend. Available names the alternatives so the operator can
// fix configuration without another round trip.
type ModelNotFoundError struct {
	Model     string
	Available []string
}

func (e *ModelNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("model %q not found (backend serves no models)", e.Model)
	}
	return fmt.Sprintf("model %q not found, available: %s",
		e.Model, strings.Join(e.Available, ", "))
}

// EmptyProbeResponseError reports that the startup "ping" inference
// returned no content. Fatal: a backend that answers with nothing
// cannot serve chat traffic.
type EmptyProbeResponseError struct {
	Model string
}

func (e *EmptyProbeResponseError) Error() string {
	return fmt.Sprintf("model %q returned an empty probe response", e.Model)
}

// StreamTimeoutError reports a timeout while consuming the backend's
// token stream. The orchestrator maps it to the stream_timeout wire
// code.
type StreamTimeoutError struct {
	Err error
}

func (e *StreamTimeoutError) Error() string {
	return fmt.Sprintf("stream timeout: %v", e.Err)
}

func (e *StreamTimeoutError) Unwrap() error { return e.Err }
