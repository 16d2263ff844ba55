package speech

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Request is one speech drafting request.
type Request struct {
	Topic string
	// APIKey is the credential typed in by the user. It takes precedence over
	// the process default.
	APIKey   string
	Observer Observer
}

// Service drafts speeches and keeps run bookkeeping.
type Service interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	// NeedsAPIKey reports whether callers must supply a credential with each request.
	NeedsAPIKey() bool
	DraftCount(ctx context.Context) (int64, error)
}

// ServiceOptions configures the Service.
type ServiceOptions struct {
	Assembler *Assembler
	// Runs is optional; without it no run metadata is stored.
	Runs          RunRepository
	DefaultAPIKey string
	// RequireCredential is false when every stage runs on a backend that needs no
	// session credential.
	RequireCredential bool
	Logger            *logrus.Logger
	SentryHub         *sentry.Hub
	Metrics           *Metrics
}

type service struct {
	assembler         *Assembler
	runs              RunRepository
	defaultAPIKey     string
	requireCredential bool
	logger            *logrus.Logger
	sentryHub         *sentry.Hub
	metrics           *Metrics
}

var _ Service = (*service)(nil)

// NewService wires the speech service with its dependencies.
func NewService(opts ServiceOptions) (Service, error) {
	if opts.Assembler == nil {
		return nil, eris.New("pipeline assembler is required")
	}

	return &service{
		assembler:         opts.Assembler,
		runs:              opts.Runs,
		defaultAPIKey:     strings.TrimSpace(opts.DefaultAPIKey),
		requireCredential: opts.RequireCredential,
		logger:            opts.Logger,
		sentryHub:         opts.SentryHub,
		metrics:           opts.Metrics,
	}, nil
}

func (s *service) NeedsAPIKey() bool {
	return s.requireCredential && s.defaultAPIKey == ""
}

func (s *service) Generate(ctx context.Context, req Request) (*Result, error) {
	credential := strings.TrimSpace(req.APIKey)
	if credential == "" {
		credential = s.defaultAPIKey
	}
	if s.requireCredential && credential == "" {
		return nil, eris.Wrap(ErrMissingCredential, "no api key supplied or configured")
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, eris.Wrap(ErrEmptyInput, "topic is blank")
	}

	pipeline, err := s.assembler.Pipeline(credential)
	if err != nil {
		s.recordError(nil, err, "assembling speech pipeline")
		return nil, eris.Wrap(err, "assembling speech pipeline")
	}
	if req.Observer != nil {
		pipeline = pipeline.WithObserver(req.Observer)
	}

	started := time.Now()
	result, err := pipeline.Run(ctx, topic)
	elapsed := time.Since(started)

	s.metrics.observeRun(result, err)
	s.saveRun(ctx, pipeline, result, err, elapsed)

	titleBackend, speechBackend := pipeline.Backends()
	fields := logrus.Fields{
		"title_backend":  titleBackend,
		"speech_backend": speechBackend,
		"policy":         string(pipeline.Policy()),
		"duration_ms":    elapsed.Milliseconds(),
	}

	if err != nil {
		fields["error_kind"] = Kind(err)
		if result != nil {
			fields["failed_stage"] = string(result.FailedStage)
		}
		if Kind(err) == "internal" {
			s.recordError(fields, err, "speech pipeline aborted")
		} else if s.logger != nil {
			s.logger.WithFields(fields).WithField("error", err.Error()).Warn("speech pipeline aborted")
		}
		return result, err
	}

	if s.logger != nil {
		fields["title_fallback"] = result.TitleFallback
		fields["speech_fallback"] = result.SpeechFallback
		s.logger.WithFields(fields).Info("speech drafted")
	}

	return result, nil
}

func (s *service) DraftCount(ctx context.Context) (int64, error) {
	if s.runs == nil {
		return 0, nil
	}

	count, err := s.runs.Count(ctx, RunStatusDone)
	if err != nil {
		s.recordError(nil, err, "counting drafted speeches")
		return 0, eris.Wrap(err, "counting drafted speeches")
	}

	return count, nil
}

// saveRun stores run metadata. Failures are reported but never replace the
// pipeline outcome.
func (s *service) saveRun(ctx context.Context, pipeline *Pipeline, result *Result, runErr error, elapsed time.Duration) {
	if s.runs == nil {
		return
	}

	titleBackend, speechBackend := pipeline.Backends()
	record := &RunRecord{
		Status:        RunStatusDone,
		Policy:        string(pipeline.Policy()),
		TitleBackend:  titleBackend,
		SpeechBackend: speechBackend,
		DurationMS:    elapsed.Milliseconds(),
	}

	if result != nil {
		record.TitleFallback = result.TitleFallback
		record.SpeechFallback = result.SpeechFallback
		record.FailedStage = string(result.FailedStage)
	}
	if runErr != nil {
		record.Status = RunStatusAborted
		record.ErrorKind = Kind(runErr)
	}

	if err := s.runs.Create(context.WithoutCancel(ctx), record); err != nil {
		s.recordError(logrus.Fields{"run_status": record.Status}, err, "storing run record")
	}
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}
