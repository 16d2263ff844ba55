package speech

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Policy decides what happens when a stage fails. One policy governs both stages.
type Policy string

const (
	// PolicyFailFast propagates the first stage error and skips the remaining stage.
	PolicyFailFast Policy = "fail-fast"
	// PolicyFallback substitutes a placeholder for a failed stage and carries on.
	PolicyFallback Policy = "fallback"
)

// Placeholders used under PolicyFallback.
const (
	FallbackTitle  = "Untitled Speech"
	FallbackSpeech = "No speech generated."
)

// ParsePolicy maps a configuration value onto a Policy.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyFailFast:
		return PolicyFailFast, nil
	case PolicyFallback:
		return PolicyFallback, nil
	default:
		return "", eris.Errorf("unknown error policy: %q", value)
	}
}

// State tracks how far a run progressed.
type State string

const (
	StateAwaitingTitle  State = "awaiting_title"
	StateAwaitingSpeech State = "awaiting_speech"
	StateDone           State = "done"
	StateAborted        State = "aborted"
)

// Result is the output of one pipeline run.
type Result struct {
	Title          string
	Speech         string
	State          State
	TitleFallback  bool
	SpeechFallback bool
	// FailedStage names the stage that aborted the run, if any.
	FailedStage StageName
}

// Observer is notified as soon as the title is committed, before the speech stage
// starts, so a display surface can show it early.
type Observer interface {
	TitleReady(title string, fallback bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(title string, fallback bool)

// TitleReady calls f.
func (f ObserverFunc) TitleReady(title string, fallback bool) {
	f(title, fallback)
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Title  *Stage
	Speech *Stage
	Policy Policy
	Logger *logrus.Logger
}

// Pipeline runs the title stage and then the speech stage on its output. The
// stages never run concurrently and nothing is retried.
type Pipeline struct {
	title    *Stage
	speech   *Stage
	policy   Policy
	logger   *logrus.Logger
	observer Observer
}

// NewPipeline validates opts and returns a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Title == nil {
		return nil, eris.New("title stage is required")
	}
	if opts.Speech == nil {
		return nil, eris.New("speech stage is required")
	}

	policy := opts.Policy
	if policy == "" {
		policy = PolicyFailFast
	}
	if policy != PolicyFailFast && policy != PolicyFallback {
		return nil, eris.Errorf("unknown error policy: %q", policy)
	}

	return &Pipeline{
		title:  opts.Title,
		speech: opts.Speech,
		policy: policy,
		logger: opts.Logger,
	}, nil
}

// WithObserver returns a copy of p that reports the committed title to observer.
func (p *Pipeline) WithObserver(observer Observer) *Pipeline {
	clone := *p
	clone.observer = observer
	return &clone
}

// Policy returns the error policy shared by both stages.
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Backends returns the completer names used by the title and speech stages.
func (p *Pipeline) Backends() (title, speech string) {
	return p.title.Backend(), p.speech.Backend()
}

// GenerateTitle runs the title stage. Under PolicyFallback a backend or parse
// failure yields FallbackTitle with fallback set; blank input always fails.
func (p *Pipeline) GenerateTitle(ctx context.Context, topic string) (title string, fallback bool, err error) {
	return p.runStage(ctx, p.title, topic, FallbackTitle)
}

// GenerateSpeech runs the speech stage for title, with the same policy as GenerateTitle.
func (p *Pipeline) GenerateSpeech(ctx context.Context, title string) (speech string, fallback bool, err error) {
	return p.runStage(ctx, p.speech, title, FallbackSpeech)
}

// Run executes both stages for topic. A blank topic fails with ErrEmptyInput and
// a nil Result. When a stage aborts the run the partial Result (holding any
// committed title) is returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, topic string) (*Result, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, eris.Wrap(ErrEmptyInput, "topic is blank")
	}

	result := &Result{State: StateAwaitingTitle}

	title, fallback, err := p.GenerateTitle(ctx, topic)
	if err != nil {
		result.State = StateAborted
		result.FailedStage = StageTitle
		return result, err
	}

	result.Title = title
	result.TitleFallback = fallback
	result.State = StateAwaitingSpeech
	if p.observer != nil {
		p.observer.TitleReady(title, fallback)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.State = StateAborted
		result.FailedStage = StageSpeech
		return result, eris.Wrapf(ErrCancelled, "before speech stage: %v", ctxErr)
	}

	speech, fallback, err := p.GenerateSpeech(ctx, title)
	if err != nil {
		result.State = StateAborted
		result.FailedStage = StageSpeech
		return result, err
	}

	result.Speech = speech
	result.SpeechFallback = fallback
	result.State = StateDone

	return result, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage *Stage, input, placeholder string) (string, bool, error) {
	value, err := stage.Run(ctx, input)
	if err == nil {
		return value, false, nil
	}

	if p.policy != PolicyFallback || !recoverable(err) {
		return "", false, err
	}

	if p.logger != nil {
		p.logger.WithFields(logrus.Fields{
			"stage":   string(stage.Name()),
			"backend": stage.Backend(),
			"error":   err.Error(),
		}).Warn("substituting fallback value")
	}

	return placeholder, true, nil
}

func recoverable(err error) bool {
	return eris.Is(err, ErrMalformedResponse) ||
		eris.Is(err, ErrBackendUnavailable) ||
		eris.Is(err, ErrStageTimeout)
}
