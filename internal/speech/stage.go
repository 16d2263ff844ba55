package speech

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"speechwriter/app/internal/llm"
	"speechwriter/app/internal/prompt"
)

// StageName identifies one of the two pipeline stages.
type StageName string

const (
	StageTitle  StageName = "title"
	StageSpeech StageName = "speech"
)

// StageOptions configures a Stage.
type StageOptions struct {
	Name      StageName
	Template  *prompt.Template
	Completer llm.Completer
	// Key is the JSON object key holding the stage output.
	Key string
	// Schema is sent to backends that support strict structured output.
	Schema *llm.Schema
	// Timeout bounds the backend call. Zero means no stage deadline.
	Timeout time.Duration
	// Normalize post-processes the extracted value before it is returned.
	Normalize func(string) string
	Logger    *logrus.Logger
	Metrics   *Metrics
}

// Stage renders one template, submits it to one backend and extracts one string
// field from the JSON reply.
type Stage struct {
	name      StageName
	template  *prompt.Template
	completer llm.Completer
	key       string
	schema    *llm.Schema
	timeout   time.Duration
	normalize func(string) string
	logger    *logrus.Logger
	metrics   *Metrics
}

// NewStage validates opts and returns a Stage.
func NewStage(opts StageOptions) (*Stage, error) {
	if strings.TrimSpace(string(opts.Name)) == "" {
		return nil, eris.New("stage name is required")
	}
	if opts.Template == nil {
		return nil, eris.Errorf("%s stage: prompt template is required", opts.Name)
	}
	if opts.Completer == nil {
		return nil, eris.Errorf("%s stage: completer is required", opts.Name)
	}
	if strings.TrimSpace(opts.Key) == "" {
		return nil, eris.Errorf("%s stage: output key is required", opts.Name)
	}
	if opts.Timeout < 0 {
		return nil, eris.Errorf("%s stage: timeout must not be negative", opts.Name)
	}

	return &Stage{
		name:      opts.Name,
		template:  opts.Template,
		completer: opts.Completer,
		key:       strings.TrimSpace(opts.Key),
		schema:    opts.Schema,
		timeout:   opts.Timeout,
		normalize: opts.Normalize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// Name returns the stage identifier.
func (s *Stage) Name() StageName {
	return s.name
}

// Backend returns the name of the completer the stage calls.
func (s *Stage) Backend() string {
	return s.completer.Name()
}

// Run produces the stage output for input. Blank input fails with ErrEmptyInput
// before the backend is contacted.
func (s *Stage) Run(ctx context.Context, input string) (string, error) {
	rendered, err := s.template.Render(input)
	if err != nil {
		if eris.Is(err, prompt.ErrEmptySlot) {
			return "", eris.Wrapf(ErrEmptyInput, "%s stage: %s is blank", s.name, s.template.Slot())
		}
		return "", eris.Wrapf(err, "%s stage: rendering prompt", s.name)
	}

	if err := ctx.Err(); err != nil {
		return "", eris.Wrapf(ErrCancelled, "%s stage: %v", s.name, err)
	}

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	fields := logrus.Fields{"stage": string(s.name), "backend": s.completer.Name()}
	started := time.Now()

	reply, err := s.completer.Complete(callCtx, llm.Request{
		System: s.template.System(),
		Prompt: rendered,
		Schema: s.schema,
	})
	if err != nil {
		err = s.classify(ctx, callCtx, err)
		s.observe(started, err)
		s.logError(fields, err, "stage backend call failed")
		return "", err
	}

	value, err := extractField(reply, s.key)
	if err == nil && s.normalize != nil {
		value = s.normalize(value)
		if value == "" {
			err = eris.Errorf("reply key %q is blank after normalisation", s.key)
		}
	}
	if err != nil {
		err = eris.Wrapf(ErrMalformedResponse, "%s stage: %v", s.name, err)
		s.observe(started, err)
		s.logError(fields, err, "stage reply rejected")
		return "", err
	}

	s.observe(started, nil)
	if s.logger != nil {
		s.logger.WithFields(fields).WithField("duration_ms", time.Since(started).Milliseconds()).Debug("stage complete")
	}

	return value, nil
}

func (s *Stage) classify(ctx, callCtx context.Context, err error) error {
	// The caller's own cancellation or deadline wins over the stage deadline.
	if parentErr := ctx.Err(); parentErr != nil {
		return eris.Wrapf(ErrCancelled, "%s stage: %v", s.name, parentErr)
	}
	if s.timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return eris.Wrapf(ErrStageTimeout, "%s stage: no reply within %s", s.name, s.timeout)
	}
	if eris.Is(err, llm.ErrUnusableReply) {
		return eris.Wrapf(ErrMalformedResponse, "%s stage: %v", s.name, err)
	}
	return eris.Wrapf(ErrBackendUnavailable, "%s stage: %v", s.name, err)
}

func (s *Stage) observe(started time.Time, err error) {
	s.metrics.observeStage(s.name, time.Since(started), err)
}

func (s *Stage) logError(fields logrus.Fields, err error, message string) {
	if s.logger == nil || err == nil {
		return
	}

	s.logger.WithFields(fields).WithField("error", err.Error()).Warn(message)
}
