package recaptcha

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
)

// TokenHeader is the alternative to the body field for supplying a token.
const TokenHeader = "x-recaptcha-token"

// TokenFunc extracts the verification token from an HTTP request.
type TokenFunc func(r *http.Request) string

// HeaderTokenFunc reads the token from the dedicated header.
func HeaderTokenFunc(r *http.Request) string {
	return r.Header.Get(TokenHeader)
}

// Verification is the per-request verification outcome attached to the
// request context on success.
type Verification struct {
	Verified bool
	Score    *float64
}

// verificationCtxKey is the context key for the verification outcome.
type verificationCtxKey struct{}

// FromContext extracts the verification outcome recorded by the middleware.
func FromContext(ctx context.Context) (Verification, bool) {
	v, ok := ctx.Value(verificationCtxKey{}).(Verification)
	return v, ok
}

// Middleware gates sensitive endpoints behind CAPTCHA verification.
//
// With no secret configured the gate is a pass-through; this degraded mode
// is logged once at construction. With a secret, a missing token is
// rejected before any network call, a failed verdict and a low trust score
// are rejected with distinct codes, and verification-service failures are
// reported as such rather than treated as a pass or a fail.
func Middleware(verifier *Verifier, tokenFn TokenFunc) func(http.Handler) http.Handler {
	if tokenFn == nil {
		tokenFn = HeaderTokenFunc
	}

	if !verifier.Enabled() {
		slog.Warn("reCAPTCHA secret not configured, verification gate disabled")
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFn(r)
			if token == "" {
				writeError(w, http.StatusBadRequest, CodeRequired, "reCAPTCHA token é obrigatório", nil)
				return
			}

			result, err := verifier.Verify(r.Context(), token, remoteIP(r))
			if err != nil {
				verr, ok := err.(*Error)
				if ok && verr.Code == CodeUpstreamError {
					slog.Error("Malformed response from reCAPTCHA service", "error", err)
					writeError(w, http.StatusBadGateway, CodeUpstreamError, "Erro ao verificar reCAPTCHA", nil)
					return
				}
				slog.Error("Error verifying reCAPTCHA", "error", err)
				writeError(w, http.StatusInternalServerError, CodeVerificationError, "Erro ao verificar reCAPTCHA", nil)
				return
			}

			if !result.Success {
				slog.Warn("reCAPTCHA verification failed", "error_codes", result.ErrorCodes)
				writeError(w, http.StatusBadRequest, CodeFailed, "Verificação reCAPTCHA falhou", result.ErrorCodes)
				return
			}

			// A low score is a likely-bot signal, softer than a hard
			// verification failure. The threshold is inclusive: a score
			// equal to it passes.
			if result.Score != nil && *result.Score < verifier.Threshold() {
				slog.Warn("Low reCAPTCHA score", "score", *result.Score, "ip", remoteIP(r))
				writeError(w, http.StatusForbidden, CodeSecurityCheck, "Verificação de segurança falhou", nil)
				return
			}

			verification := Verification{Verified: true, Score: result.Score}
			ctx := context.WithValue(r.Context(), verificationCtxKey{}, verification)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// remoteIP strips the port from the remote address when present.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeError(w http.ResponseWriter, status int, code, message string, details []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errObj := map[string]interface{}{
		"message": message,
		"code":    code,
	}
	if details != nil {
		errObj["details"] = details
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errObj,
	})
}
