package recaptcha

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduprompt/eduprompt/pkg/config"
)

type gateFixture struct {
	handler      http.Handler
	serviceCalls *atomic.Int32
	reached      *atomic.Int32
}

// newGateFixture wires the middleware to a fake verification service that
// answers with the given body, counting calls to both the service and the
// protected handler.
func newGateFixture(t *testing.T, serviceBody string) *gateFixture {
	t.Helper()

	serviceCalls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serviceCalls.Add(1)
		_, _ = w.Write([]byte(serviceBody))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.RecaptchaConfig{
		Secret:    "test-secret",
		VerifyURL: srv.URL,
		Timeout:   5,
	}
	cfg.SetDefaults()

	reached := &atomic.Int32{}
	mw := Middleware(NewVerifier(cfg), nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		v, ok := FromContext(r.Context())
		if !ok || !v.Verified {
			http.Error(w, "no verification in context", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	return &gateFixture{handler: handler, serviceCalls: serviceCalls, reached: reached}
}

func (f *gateFixture) request(token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/execute", nil)
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (code string, details []string) {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string   `json:"code"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	return body.Error.Code, body.Error.Details
}

func TestMiddleware_MissingTokenRejectedBeforeServiceCall(t *testing.T) {
	f := newGateFixture(t, `{"success": true}`)

	rec := f.request("")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	code, _ := decodeError(t, rec)
	assert.Equal(t, CodeRequired, code)
	assert.Equal(t, int32(0), f.serviceCalls.Load())
	assert.Equal(t, int32(0), f.reached.Load())
}

func TestMiddleware_SuccessReachesHandler(t *testing.T) {
	f := newGateFixture(t, `{"success": true, "score": 0.9}`)

	rec := f.request("tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), f.serviceCalls.Load())
	assert.Equal(t, int32(1), f.reached.Load())
}

func TestMiddleware_FailedVerdictRejected(t *testing.T) {
	f := newGateFixture(t, `{"success": false, "error-codes": ["timeout-or-duplicate"]}`)

	rec := f.request("tok")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	code, details := decodeError(t, rec)
	assert.Equal(t, CodeFailed, code)
	assert.Equal(t, []string{"timeout-or-duplicate"}, details)
	assert.Equal(t, int32(0), f.reached.Load())
}

func TestMiddleware_ScoreBelowThresholdRejected(t *testing.T) {
	f := newGateFixture(t, `{"success": true, "score": 0.49}`)

	rec := f.request("tok")
	require.Equal(t, http.StatusForbidden, rec.Code)

	code, _ := decodeError(t, rec)
	assert.Equal(t, CodeSecurityCheck, code)
	assert.Equal(t, int32(0), f.reached.Load())
}

func TestMiddleware_ScoreAtThresholdPasses(t *testing.T) {
	f := newGateFixture(t, `{"success": true, "score": 0.5}`)

	rec := f.request("tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), f.reached.Load())
}

func TestMiddleware_MissingScorePasses(t *testing.T) {
	// v2 responses carry no score; the hard verdict alone decides.
	f := newGateFixture(t, `{"success": true}`)

	rec := f.request("tok")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_MalformedServiceResponse(t *testing.T) {
	f := newGateFixture(t, `<html>oops</html>`)

	rec := f.request("tok")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	code, _ := decodeError(t, rec)
	assert.Equal(t, CodeUpstreamError, code)
	assert.Equal(t, int32(0), f.reached.Load())
}

func TestMiddleware_DisabledIsPassThrough(t *testing.T) {
	cfg := &config.RecaptchaConfig{Timeout: 1}
	cfg.SetDefaults()

	reached := false
	mw := Middleware(NewVerifier(cfg), nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/execute", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached, "disabled gate should pass requests through without a token")
}
