package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eduprompt/eduprompt/pkg/config"
	"github.com/eduprompt/eduprompt/pkg/llms"
	"github.com/eduprompt/eduprompt/pkg/question"
	"github.com/eduprompt/eduprompt/pkg/ratelimit"
	"github.com/eduprompt/eduprompt/pkg/recaptcha"
)

// Executor is the gateway surface the handlers need. Satisfied by
// *llms.Gateway; replaced by fakes in tests.
type Executor interface {
	Execute(ctx context.Context, prompt string, opts llms.Options) (*llms.Result, error)
	Models() map[string]string
}

// QuestionGenerator is the synthesizer surface the handlers need.
type QuestionGenerator interface {
	Generate(ctx context.Context, p question.Params) (*question.Question, error)
}

type handlers struct {
	cfg       *config.Config
	store     *ratelimit.Store
	executor  Executor
	questions QuestionGenerator
	metrics   *Metrics
}

// executeRequest is the body of POST /api/execute.
type executeRequest struct {
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	MaxTokens      int      `json:"maxTokens"`
	Temperature    *float64 `json:"temperature"`
	RecaptchaToken string   `json:"recaptchaToken"`
}

// questionRequest is the body of POST /api/gerar-questao.
type questionRequest struct {
	Materia        string `json:"materia"`
	Descritor      string `json:"descritor"`
	Turma          string `json:"turma"`
	Complexidade   string `json:"complexidade"`
	Tamanho        string `json:"tamanho"`
	InfoAdicional  string `json:"infoAdicional"`
	RecaptchaToken string `json:"recaptchaToken"`
}

type executePayloadKey struct{}
type questionPayloadKey struct{}
type recaptchaTokenKey struct{}

// tokenFromRequest hands the verification token to the recaptcha
// middleware: body field (stashed by the parse middleware) first, then
// the dedicated header.
func tokenFromRequest(r *http.Request) string {
	if token, ok := r.Context().Value(recaptchaTokenKey{}).(string); ok && token != "" {
		return token
	}
	return r.Header.Get(recaptcha.TokenHeader)
}

// parseExecute validates the execute payload before the quota middleware
// runs, so malformed requests never consume quota and never reach the
// verification service.
func (h *handlers) parseExecute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload executeRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Corpo da requisição inválido", nil)
			return
		}

		if strings.TrimSpace(payload.Prompt) == "" {
			respondError(w, http.StatusBadRequest, "INVALID_PROMPT",
				`O campo "prompt" é obrigatório e deve ser uma string não vazia`, nil)
			return
		}

		if payload.Model == "" {
			payload.Model = string(llms.ModelBase)
		}
		if !llms.ModelAlias(payload.Model).Valid() {
			respondError(w, http.StatusBadRequest, "INVALID_MODEL",
				`Modelo inválido. Use "base" ou "flash"`, nil)
			return
		}

		ctx := context.WithValue(r.Context(), executePayloadKey{}, &payload)
		ctx = context.WithValue(ctx, recaptchaTokenKey{}, payload.RecaptchaToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// parseGerarQuestao validates the question payload before quota and
// verification, mirroring parseExecute.
func (h *handlers) parseGerarQuestao(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload questionRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "Corpo da requisição inválido", nil)
			return
		}

		for _, field := range []struct {
			name  string
			value string
		}{
			{"materia", payload.Materia},
			{"descritor", payload.Descritor},
			{"turma", payload.Turma},
		} {
			if strings.TrimSpace(field.value) == "" {
				respondError(w, http.StatusBadRequest, "INVALID_PAYLOAD",
					`O campo "`+field.name+`" é obrigatório`, nil)
				return
			}
		}

		ctx := context.WithValue(r.Context(), questionPayloadKey{}, &payload)
		ctx = context.WithValue(ctx, recaptchaTokenKey{}, payload.RecaptchaToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// execute handles POST /api/execute.
func (h *handlers) execute(w http.ResponseWriter, r *http.Request) {
	payload, ok := r.Context().Value(executePayloadKey{}).(*executeRequest)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Erro interno do servidor", nil)
		return
	}

	start := time.Now()
	result, err := h.executor.Execute(r.Context(), payload.Prompt, llms.Options{
		Model:       llms.ModelAlias(payload.Model),
		MaxTokens:   payload.MaxTokens,
		Temperature: payload.Temperature,
	})
	h.observeLLM(payload.Model, time.Since(start), err)

	if err != nil {
		var gerr *llms.Error
		if errors.As(err, &gerr) {
			extra := map[string]interface{}{}
			if gerr.Status != 0 {
				extra["status"] = gerr.Status
			}
			respondError(w, http.StatusInternalServerError, gerr.Code, gerr.Message, extra)
			return
		}
		slog.Error("Unexpected error executing prompt", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Erro interno do servidor", nil)
		return
	}

	respondData(w, r, result)
}

// gerarQuestao handles POST /api/gerar-questao. Upstream LLM failures do
// not reach the error branch: the synthesizer degrades to its fallback
// payload instead.
func (h *handlers) gerarQuestao(w http.ResponseWriter, r *http.Request) {
	payload, ok := r.Context().Value(questionPayloadKey{}).(*questionRequest)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Erro interno do servidor", nil)
		return
	}

	data, err := h.questions.Generate(r.Context(), question.Params{
		Materia:       payload.Materia,
		Descritor:     payload.Descritor,
		Turma:         payload.Turma,
		Complexidade:  payload.Complexidade,
		Tamanho:       payload.Tamanho,
		InfoAdicional: payload.InfoAdicional,
	})
	if err != nil {
		var verr *question.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, "INVALID_PAYLOAD",
				`O campo "`+verr.Field+`" é obrigatório`, nil)
			return
		}
		slog.Error("Unexpected error generating question", "error", err)
		respondError(w, http.StatusInternalServerError, "QUESTAO_ERROR", "Erro ao gerar questão", nil)
		return
	}

	respondData(w, r, data)
}

// rateLimitStatus handles GET /api/rate-limit-status without mutating
// the store.
func (h *handlers) rateLimitStatus(w http.ResponseWriter, r *http.Request) {
	key := ratelimit.DefaultKeyFunc(r)
	status := h.store.Get(key)

	var resetAt interface{}
	if !status.ResetAt.IsZero() {
		resetAt = status.ResetAt.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"limit":           status.Limit,
			"used":            status.Count,
			"remaining":       status.Remaining,
			"resetAt":         resetAt,
			"isLimitExceeded": status.Count >= status.Limit,
		},
	})
}

// models handles GET /api/models.
func (h *handlers) models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    h.executor.Models(),
	})
}

// publicConfig handles GET /api/config. The server-side secret is never
// part of this payload.
func (h *handlers) publicConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"recaptchaSiteKey": h.cfg.Recaptcha.SiteKey,
		},
	})
}

// health handles GET /health.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) observeLLM(model string, elapsed time.Duration, err error) {
	if h.metrics == nil {
		return
	}

	outcome := "success"
	if err != nil {
		switch {
		case llms.IsTimeout(err):
			outcome = "timeout"
		case llms.IsNetwork(err):
			outcome = "network"
		default:
			outcome = "upstream"
		}
	}
	h.metrics.LLMDuration.WithLabelValues(model, outcome).Observe(elapsed.Seconds())
}
