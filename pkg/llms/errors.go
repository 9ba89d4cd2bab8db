package llms

import "fmt"

// Kind classifies a gateway failure so the HTTP boundary can tell
// retryable conditions (timeout, network) from non-retryable ones.
type Kind int

const (
	// KindUpstream is an error reported by the upstream API itself.
	KindUpstream Kind = iota

	// KindTimeout means the upstream call exceeded the timeout budget.
	KindTimeout

	// KindNetwork is a connection-level failure before any response.
	KindNetwork
)

// Codes surfaced to HTTP callers for non-upstream failures.
const (
	CodeTimeout = "TIMEOUT"
	CodeNetwork = "NETWORK_ERROR"
)

// Error is a classified gateway failure.
type Error struct {
	// Kind is the failure classification.
	Kind Kind

	// Message is safe to surface to the caller. For upstream errors it is
	// the upstream message verbatim.
	Message string

	// Status is the upstream HTTP status for KindUpstream, 0 otherwise.
	Status int

	// Code is the upstream error code for KindUpstream, or CodeTimeout /
	// CodeNetwork for the other kinds.
	Code string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Kind == KindUpstream && e.Status != 0 {
		return fmt.Sprintf("upstream API error (status %d): %s", e.Status, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	gerr, ok := err.(*Error)
	return ok && gerr.Kind == KindTimeout
}

// IsNetwork reports whether err is a gateway network failure.
func IsNetwork(err error) bool {
	gerr, ok := err.(*Error)
	return ok && gerr.Kind == KindNetwork
}

func newTimeoutError(err error) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: "A requisição demorou muito tempo. Tente novamente.",
		Code:    CodeTimeout,
		Err:     err,
	}
}

func newNetworkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "Erro de conexão com o serviço de IA",
		Code:    CodeNetwork,
		Err:     err,
	}
}

func newUpstreamError(status int, message, code string) *Error {
	if message == "" {
		message = "Erro ao executar prompt"
	}
	return &Error{
		Kind:    KindUpstream,
		Message: message,
		Status:  status,
		Code:    code,
	}
}
