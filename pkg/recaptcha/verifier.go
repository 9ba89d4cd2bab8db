package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eduprompt/eduprompt/pkg/config"
)

// Error codes surfaced to HTTP callers.
const (
	CodeRequired          = "RECAPTCHA_REQUIRED"
	CodeFailed            = "RECAPTCHA_FAILED"
	CodeSecurityCheck     = "SECURITY_CHECK_FAILED"
	CodeVerificationError = "RECAPTCHA_VERIFICATION_ERROR"
	CodeUpstreamError     = "RECAPTCHA_UPSTREAM_ERROR"
)

// Result is the outcome of one verification call. It lives only for the
// duration of the request being verified.
type Result struct {
	// Success is the provider's hard pass/fail verdict.
	Success bool `json:"success"`

	// Score is the optional trust score (v3 only). Nil when absent.
	Score *float64 `json:"score,omitempty"`

	// ErrorCodes are the provider failure codes, if any.
	ErrorCodes []string `json:"error-codes,omitempty"`
}

// Error is a verification-service failure: the service could not be
// reached, timed out, or answered with something that is not a result.
// It is distinct from a negative verification verdict.
type Error struct {
	// Code distinguishes unreachable/timeout (CodeVerificationError)
	// from a malformed upstream response (CodeUpstreamError).
	Code    string
	Message string
	Err     error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Verifier validates CAPTCHA tokens against the external verification
// service. A Verifier with no secret is disabled and must not be called;
// the middleware handles that as a pass-through.
type Verifier struct {
	secret    string
	verifyURL string
	threshold float64
	client    *http.Client
}

// NewVerifier creates a verifier from config.
func NewVerifier(cfg *config.RecaptchaConfig) *Verifier {
	threshold := 0.5
	if cfg.ScoreThreshold != nil {
		threshold = *cfg.ScoreThreshold
	}
	return &Verifier{
		secret:    cfg.Secret,
		verifyURL: cfg.VerifyURL,
		threshold: threshold,
		client:    &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}
}

// Enabled reports whether a server-side secret is configured.
func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Threshold returns the minimum accepted trust score.
func (v *Verifier) Threshold() float64 {
	return v.threshold
}

// Verify submits a token to the verification service. The returned Result
// carries the provider verdict; a non-nil error means the service itself
// failed, not the verification.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{
			Code:    CodeVerificationError,
			Message: "failed to build verification request",
			Err:     err,
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, &Error{
			Code:    CodeVerificationError,
			Message: "verification service unreachable",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			Code:    CodeVerificationError,
			Message: "failed to read verification response",
			Err:     err,
		}
	}

	// Anything that does not decode into a result object is an upstream
	// failure, never a pass.
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &Error{
			Code:    CodeUpstreamError,
			Message: "verification service returned a malformed response",
			Err:     err,
		}
	}

	return &result, nil
}
