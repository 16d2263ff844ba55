package speech

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"speechwriter/app/internal/llm"
	"speechwriter/app/internal/prompt"
)

// BackendFactory builds the title and speech completers for a credential. The
// credential may be empty when no stage talks to a hosted backend.
type BackendFactory interface {
	Backends(credential string) (title, speech llm.Completer, err error)
}

// BackendFactoryFunc adapts a function to BackendFactory.
type BackendFactoryFunc func(credential string) (llm.Completer, llm.Completer, error)

// Backends calls f.
func (f BackendFactoryFunc) Backends(credential string) (llm.Completer, llm.Completer, error) {
	return f(credential)
}

// AssemblerOptions configures an Assembler.
type AssemblerOptions struct {
	Prompts      *prompt.Set
	Backends     BackendFactory
	Policy       Policy
	StageTimeout time.Duration
	Logger       *logrus.Logger
	Metrics      *Metrics
}

// Assembler builds ready-to-run pipelines from the process-wide configuration.
// It is immutable after construction and safe for concurrent use.
type Assembler struct {
	prompts      *prompt.Set
	backends     BackendFactory
	policy       Policy
	stageTimeout time.Duration
	titleSchema  *llm.Schema
	speechSchema *llm.Schema
	logger       *logrus.Logger
	metrics      *Metrics
}

// NewAssembler validates opts and reflects the response schemas once.
func NewAssembler(opts AssemblerOptions) (*Assembler, error) {
	if opts.Prompts == nil || opts.Prompts.Title == nil || opts.Prompts.Speech == nil {
		return nil, eris.New("prompt templates are required")
	}
	if opts.Backends == nil {
		return nil, eris.New("backend factory is required")
	}
	if opts.StageTimeout < 0 {
		return nil, eris.New("stage timeout must not be negative")
	}

	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}

	titleSchema, err := llm.SchemaFor("speech_title", "Title for a speech", TitlePayload{})
	if err != nil {
		return nil, eris.Wrap(err, "building title schema")
	}

	speechSchema, err := llm.SchemaFor("speech_body", "Full text of a speech", SpeechPayload{})
	if err != nil {
		return nil, eris.Wrap(err, "building speech schema")
	}

	return &Assembler{
		prompts:      opts.Prompts,
		backends:     opts.Backends,
		policy:       policy,
		stageTimeout: opts.StageTimeout,
		titleSchema:  titleSchema,
		speechSchema: speechSchema,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}, nil
}

// Policy returns the error policy applied to assembled pipelines.
func (a *Assembler) Policy() Policy {
	return a.policy
}

// Pipeline builds a pipeline whose backends authenticate with credential.
func (a *Assembler) Pipeline(credential string) (*Pipeline, error) {
	titleBackend, speechBackend, err := a.backends.Backends(credential)
	if err != nil {
		return nil, eris.Wrap(err, "building backends")
	}

	titleStage, err := NewStage(StageOptions{
		Name:      StageTitle,
		Template:  a.prompts.Title,
		Completer: titleBackend,
		Key:       "title",
		Schema:    a.titleSchema,
		Timeout:   a.stageTimeout,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
	if err != nil {
		return nil, err
	}

	speechStage, err := NewStage(StageOptions{
		Name:      StageSpeech,
		Template:  a.prompts.Speech,
		Completer: speechBackend,
		Key:       "speech",
		Schema:    a.speechSchema,
		Timeout:   a.stageTimeout,
		Normalize: PlainText,
		Logger:    a.logger,
		Metrics:   a.metrics,
	})
	if err != nil {
		return nil, err
	}

	return NewPipeline(PipelineOptions{
		Title:  titleStage,
		Speech: speechStage,
		Policy: a.policy,
		Logger: a.logger,
	})
}
