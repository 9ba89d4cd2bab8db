package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/eduprompt/eduprompt/pkg/config"
	"github.com/eduprompt/eduprompt/pkg/llms"
	"github.com/eduprompt/eduprompt/pkg/question"
	"github.com/eduprompt/eduprompt/pkg/ratelimit"
	"github.com/eduprompt/eduprompt/pkg/recaptcha"
)

const shutdownTimeout = 10 * time.Second

// Server is the eduprompt HTTP server: the rate-limited, verified proxy
// in front of the upstream LLM.
type Server struct {
	cfg       *config.Config
	store     *ratelimit.Store
	verifier  *recaptcha.Verifier
	executor  Executor
	questions QuestionGenerator
	metrics   *Metrics

	router     chi.Router
	httpServer *http.Server
}

// Option configures the server. Used by tests to swap components.
type Option func(*Server)

// WithStore sets the quota store.
func WithStore(store *ratelimit.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithVerifier sets the human-verification gate.
func WithVerifier(verifier *recaptcha.Verifier) Option {
	return func(s *Server) { s.verifier = verifier }
}

// WithExecutor sets the LLM gateway.
func WithExecutor(executor Executor) Option {
	return func(s *Server) { s.executor = executor }
}

// WithQuestionGenerator sets the question synthesizer.
func WithQuestionGenerator(generator QuestionGenerator) Option {
	return func(s *Server) { s.questions = generator }
}

// New creates a server from config, building any component not supplied
// via options.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = ratelimit.NewStore(
			cfg.RateLimit.DailyLimit,
			time.Duration(cfg.RateLimit.WindowHours)*time.Hour,
		)
	}
	if s.verifier == nil {
		s.verifier = recaptcha.NewVerifier(&cfg.Recaptcha)
	}
	if s.executor == nil {
		gateway, err := llms.NewGateway(&cfg.LLM)
		if err != nil {
			return nil, err
		}
		s.executor = gateway
	}
	if s.questions == nil {
		s.questions = question.NewSynthesizer(s.executor)
	}

	s.metrics = NewMetrics(s.store)
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: s.router,
	}

	return s, nil
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	h := &handlers{
		cfg:       s.cfg,
		store:     s.store,
		executor:  s.executor,
		questions: s.questions,
		metrics:   s.metrics,
	}

	quota := ratelimit.Middleware(ratelimit.MiddlewareConfig{
		Store: s.store,
		OnLimited: func(w http.ResponseWriter, r *http.Request, status ratelimit.Status) {
			s.metrics.QuotaRejections.Inc()
			ratelimit.DefaultOnLimited(w, r, status)
		},
	})
	verify := recaptcha.Middleware(s.verifier, tokenFromRequest)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.metrics))
	r.Use(recoverer)

	r.Get("/health", h.health)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", h.health)
		api.Get("/models", h.models)
		api.Get("/config", h.publicConfig)
		api.Get("/rate-limit-status", h.rateLimitStatus)

		// Cheapest-reject-first: shape validation, then quota, then the
		// verification gate, then the upstream call.
		api.With(h.parseExecute, quota, verify).Post("/execute", h.execute)
		api.With(h.parseGerarQuestao, quota, verify).Post("/gerar-questao", h.gerarQuestao)
	})

	return r
}

// Run serves HTTP until ctx is cancelled, with the quota sweeper running
// alongside. Shutdown is graceful within shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		s.store.StartSweeper(ctx, time.Duration(s.cfg.RateLimit.SweepIntervalMinutes)*time.Minute)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		slog.Info("Shutting down server")
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
