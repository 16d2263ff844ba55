package bootstrap

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"speechwriter/app/internal/config"
	"speechwriter/app/internal/db"
	apphttp "speechwriter/app/internal/http"
	"speechwriter/app/internal/llm"
	"speechwriter/app/internal/prompt"
	"speechwriter/app/internal/speech"
)

// Dependencies are the process-wide collaborators built by main.
type Dependencies struct {
	Config    *config.Config
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
	// Registerer receives the pipeline metrics. Metrics are disabled when nil.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Result holds the composed server components.
type Result struct {
	SpeechService speech.Service
	HTTPServer    *apphttp.Server
	Database      *gorm.DB
	Cleanup       func() error
}

// BuildAssembler loads the prompt templates and wires the configured backends into
// a pipeline assembler. It needs neither the database nor the HTTP layer, so the
// terminal client uses it directly.
func BuildAssembler(deps Dependencies, metrics *speech.Metrics) (*speech.Assembler, error) {
	if deps.Config == nil {
		return nil, eris.New("configuration is required")
	}

	prompts, err := prompt.Load(deps.Config.PromptsPath)
	if err != nil {
		return nil, eris.Wrap(err, "loading prompt templates")
	}

	policy, err := speech.ParsePolicy(deps.Config.ErrorPolicy)
	if err != nil {
		return nil, err
	}

	return speech.NewAssembler(speech.AssemblerOptions{
		Prompts:      prompts,
		Backends:     NewBackendFactory(deps.Config, deps.Logger),
		Policy:       policy,
		StageTimeout: deps.Config.StageTimeout,
		Logger:       deps.Logger,
		Metrics:      metrics,
	})
}

// Build composes the Speechwriter server and returns the constructed components.
func Build(ctx context.Context, deps Dependencies) (Result, error) {
	if deps.Config == nil {
		return Result{}, eris.New("configuration is required")
	}
	cfg := deps.Config

	var metrics *speech.Metrics
	if deps.Registerer != nil {
		m, err := speech.NewMetrics(deps.Registerer)
		if err != nil {
			return Result{}, eris.Wrap(err, "registering metrics")
		}
		metrics = m
	}

	assembler, err := BuildAssembler(deps, metrics)
	if err != nil {
		return Result{}, eris.Wrap(err, "building speech pipeline")
	}

	database, err := db.Open(db.Options{Path: cfg.DBPath, Logger: deps.Logger})
	if err != nil {
		return Result{}, eris.Wrap(err, "opening database")
	}

	closeOnError := func(wrapper error) (Result, error) {
		if closeErr := db.Close(database); closeErr != nil && deps.Logger != nil {
			deps.Logger.WithError(closeErr).Error("closing database after bootstrap failure")
		}
		return Result{}, wrapper
	}

	if err := speech.Migrate(ctx, database, deps.Logger); err != nil {
		return closeOnError(eris.Wrap(err, "running migrations"))
	}

	runs, err := speech.NewRunRepository(database, deps.Logger)
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating run repository"))
	}

	service, err := speech.NewService(speech.ServiceOptions{
		Assembler:         assembler,
		Runs:              runs,
		DefaultAPIKey:     cfg.DefaultAPIKey(),
		RequireCredential: cfg.RequiresCredential(),
		Logger:            deps.Logger,
		SentryHub:         deps.SentryHub,
		Metrics:           metrics,
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "creating speech service"))
	}

	httpServer, err := apphttp.NewServer(apphttp.Options{
		SpeechService: service,
		Database:      database,
		Gatherer:      deps.Gatherer,
		Backends: apphttp.BackendStatus{
			Title:  describeBackend(cfg.Title),
			Speech: describeBackend(cfg.Speech),
		},
		Logger:    deps.Logger,
		SentryHub: deps.SentryHub,
		RateLimiter: apphttp.RateLimiterSettings{
			Burst:             cfg.RateLimit.Burst,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			ClientTTL:         cfg.RateLimit.ClientTTL,
		},
	})
	if err != nil {
		return closeOnError(eris.Wrap(err, "initialising http server"))
	}

	cleanup := func() error {
		httpServer.Close()
		return db.Close(database)
	}

	return Result{
		SpeechService: service,
		HTTPServer:    httpServer,
		Database:      database,
		Cleanup:       cleanup,
	}, nil
}

// NewBackendFactory builds stage completers from the configured providers. The
// session credential authenticates OpenAI stages and Groq stages without their own
// GROQ_API_KEY; Ollama stages never receive it.
func NewBackendFactory(cfg *config.Config, logger *logrus.Logger) speech.BackendFactory {
	return speech.BackendFactoryFunc(func(credential string) (llm.Completer, llm.Completer, error) {
		title, err := newStageCompleter(cfg, cfg.Title, credential, logger)
		if err != nil {
			return nil, nil, eris.Wrap(err, "creating title backend")
		}

		speechBackend, err := newStageCompleter(cfg, cfg.Speech, credential, logger)
		if err != nil {
			return nil, nil, eris.Wrap(err, "creating speech backend")
		}

		return title, speechBackend, nil
	})
}

func newStageCompleter(cfg *config.Config, backend config.Backend, credential string, logger *logrus.Logger) (llm.Completer, error) {
	apiKey := credential
	if backend.Provider == config.ProviderGroq {
		if key := strings.TrimSpace(cfg.GroqAPIKey); key != "" {
			apiKey = key
		}
	}

	return llm.NewCompleter(llm.BackendSettings{
		Provider: backend.Provider,
		Model:    backend.Model,
		Endpoint: backend.Endpoint,
		APIKey:   apiKey,
		Format:   llm.ResponseFormat(cfg.ResponseFormat),
		Logger:   logger,
	})
}

func describeBackend(backend config.Backend) string {
	return backend.Provider + ":" + backend.Model
}
