package http

import (
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"speechwriter/app/internal/speech"
)

// Options configures the HTTP server wiring.
type Options struct {
	SpeechService speech.Service
	Database      *gorm.DB
	// Gatherer backs /metrics. The route is not registered when nil.
	Gatherer    prometheus.Gatherer
	Backends    BackendStatus
	Logger      *logrus.Logger
	SentryHub   *sentry.Hub
	RateLimiter RateLimiterSettings
}

// BackendStatus describes the configured stage backends for the health report.
type BackendStatus struct {
	Title  string
	Speech string
}

// RateLimiterSettings configures the HTTP rate limiter behaviour.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// Server wires the HTTP transport layer via Huma and templ components.
type Server struct {
	api         huma.API
	mux         *stdhttp.ServeMux
	speech      speech.Service
	backends    BackendStatus
	logger      *logrus.Logger
	sentry      *sentry.Hub
	db          *gorm.DB
	rateLimiter *RateLimiter
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.SpeechService == nil {
		return nil, eris.New("speech service is required")
	}
	if opts.Database == nil {
		return nil, eris.New("database is required")
	}

	settings := opts.RateLimiter
	if settings.Burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.New("rate limiter client TTL must be greater than zero")
	}

	mux := stdhttp.NewServeMux()
	config := huma.DefaultConfig("Speechwriter", "1.0.0")

	api := humago.New(mux, config)

	srv := &Server{
		api:         api,
		mux:         mux,
		speech:      opts.SpeechService,
		backends:    opts.Backends,
		logger:      opts.Logger,
		sentry:      opts.SentryHub,
		db:          opts.Database,
		rateLimiter: NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL),
	}

	srv.registerMiddlewares()
	srv.registerRoutes()

	if err := srv.registerStaticRoutes(); err != nil {
		srv.Close()
		return nil, err
	}

	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return srv, nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.mux
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources held by the server.
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.rateLimitMiddleware(),
		s.loggingMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.registerHomeRoute()
	s.registerSpeechFormRoute()
	s.registerSpeechAPIRoute()
	s.registerHealthRoute()
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.mux.ServeHTTP(w, r)
}
