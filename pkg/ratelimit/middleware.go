package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// FingerprintHeader carries the client-supplied device fingerprint.
const FingerprintHeader = "x-device-fingerprint"

// KeyFunc extracts the quota attribution key from an HTTP request.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc prefers the device-fingerprint header and falls back to
// the remote address. Mount chi's RealIP middleware before this one so the
// fallback sees the client IP rather than a proxy address.
func DefaultKeyFunc(r *http.Request) string {
	if fingerprint := r.Header.Get(FingerprintHeader); fingerprint != "" {
		return fingerprint
	}
	return r.RemoteAddr
}

// MiddlewareConfig configures the quota middleware.
type MiddlewareConfig struct {
	// Store is the quota store to consult. Required.
	Store *Store

	// KeyFunc extracts the attribution key. If nil, DefaultKeyFunc is used.
	KeyFunc KeyFunc

	// OnLimited is called when a request is rejected.
	// If nil, a default JSON error response is sent.
	OnLimited func(w http.ResponseWriter, r *http.Request, status Status)
}

// statusCtxKey is the context key for the quota status.
type statusCtxKey struct{}

// StatusFromContext extracts the quota status recorded by the middleware.
func StatusFromContext(ctx context.Context) (Status, bool) {
	status, ok := ctx.Value(statusCtxKey{}).(Status)
	return status, ok
}

// Middleware enforces the per-key quota. Over-limit callers are rejected
// with 429 before any downstream work; admitted callers get their usage
// recorded, exposed via X-RateLimit-* headers and the request context.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultKeyFunc
	}
	if cfg.OnLimited == nil {
		cfg.OnLimited = DefaultOnLimited
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)

			status, allowed := cfg.Store.CheckAndIncrement(key)
			if !allowed {
				setRateLimitHeaders(w, status)
				cfg.OnLimited(w, r, status)
				return
			}

			setRateLimitHeaders(w, status)

			ctx := context.WithValue(r.Context(), statusCtxKey{}, status)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DefaultOnLimited sends the standard 429 response. Custom OnLimited
// hooks can delegate to it after their own bookkeeping.
func DefaultOnLimited(w http.ResponseWriter, r *http.Request, status Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"message": "Limite diário de requisições atingido. Tente novamente amanhã.",
			"code":    "RATE_LIMIT_EXCEEDED",
			"resetAt": status.ResetAt.Format(time.RFC3339),
			"limit":   status.Limit,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

func setRateLimitHeaders(w http.ResponseWriter, status Status) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(status.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(status.Remaining))
	if !status.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", status.ResetAt.Format(time.RFC3339))
	}
}
