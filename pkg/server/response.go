package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/eduprompt/eduprompt/pkg/ratelimit"
)

// rateLimitInfo is the usage metadata echoed on quota-checked responses.
type rateLimitInfo struct {
	Count     int    `json:"count"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
	Limit     int    `json:"limit"`
}

func newRateLimitInfo(status ratelimit.Status) *rateLimitInfo {
	resetAt := ""
	if !status.ResetAt.IsZero() {
		resetAt = status.ResetAt.Format(time.RFC3339)
	}
	return &rateLimitInfo{
		Count:     status.Count,
		Remaining: status.Remaining,
		ResetAt:   resetAt,
		Limit:     status.Limit,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// respondData writes the success envelope, attaching quota usage when the
// request passed through the quota middleware.
func respondData(w http.ResponseWriter, r *http.Request, data interface{}) {
	body := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	if status, ok := ratelimit.StatusFromContext(r.Context()); ok {
		body["rateLimit"] = newRateLimitInfo(status)
	}
	writeJSON(w, http.StatusOK, body)
}

// respondError writes the error envelope. Extra fields are merged into
// the error object.
func respondError(w http.ResponseWriter, status int, code, message string, extra map[string]interface{}) {
	errObj := map[string]interface{}{
		"message": message,
		"code":    code,
	}
	for k, v := range extra {
		errObj[k] = v
	}

	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   errObj,
	})
}
