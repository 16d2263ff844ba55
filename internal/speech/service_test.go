package speech

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"speechwriter/app/internal/llm"
)

type failingRunRepository struct {
	creates int
}

func (f *failingRunRepository) Create(context.Context, *RunRecord) error {
	f.creates++
	return eris.New("disk full")
}

func (f *failingRunRepository) Count(context.Context, string) (int64, error) {
	return 0, eris.New("disk full")
}

type serviceFixture struct {
	service     Service
	credentials []string
}

func newServiceFixture(t *testing.T, title, speech llm.Completer, policy Policy, opts ServiceOptions) *serviceFixture {
	t.Helper()

	fixture := &serviceFixture{}
	assembler, err := NewAssembler(AssemblerOptions{
		Prompts: defaultPrompts(t),
		Backends: BackendFactoryFunc(func(credential string) (llm.Completer, llm.Completer, error) {
			fixture.credentials = append(fixture.credentials, credential)
			return title, speech, nil
		}),
		Policy: policy,
		Logger: silentLogger(),
	})
	if err != nil {
		t.Fatalf("NewAssembler returned error: %v", err)
	}

	opts.Assembler = assembler
	if opts.Logger == nil {
		opts.Logger = silentLogger()
	}

	fixture.service, err = NewService(opts)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return fixture
}

func TestServiceRequiresCredential(t *testing.T) {
	t.Parallel()

	title := &stubCompleter{reply: `{"title":"x"}`}
	speech := &stubCompleter{reply: `{"speech":"y"}`}
	runs := setupRunRepository(t)
	fixture := newServiceFixture(t, title, speech, PolicyFallback, ServiceOptions{
		Runs:              runs,
		RequireCredential: true,
	})

	if !fixture.service.NeedsAPIKey() {
		t.Fatalf("expected service to ask for an api key")
	}

	result, err := fixture.service.Generate(context.Background(), Request{Topic: "climate change"})
	if !eris.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}

	if len(fixture.credentials) != 0 || title.calls != 0 || speech.calls != 0 {
		t.Fatalf("expected pipeline not to be assembled or run")
	}

	count, err := runs.Count(context.Background(), "")
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no run records, got %d", count)
	}
}

func TestServicePrefersRequestCredential(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t,
		&stubCompleter{reply: `{"title":"Hope"}`},
		&stubCompleter{reply: `{"speech":"Friends"}`},
		PolicyFailFast,
		ServiceOptions{DefaultAPIKey: "sk-server", RequireCredential: true},
	)

	if fixture.service.NeedsAPIKey() {
		t.Fatalf("expected configured key to satisfy the credential requirement")
	}

	if _, err := fixture.service.Generate(context.Background(), Request{Topic: "hope", APIKey: " sk-user "}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if _, err := fixture.service.Generate(context.Background(), Request{Topic: "hope"}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if len(fixture.credentials) != 2 || fixture.credentials[0] != "sk-user" || fixture.credentials[1] != "sk-server" {
		t.Fatalf("unexpected credentials passed to backends: %v", fixture.credentials)
	}
}

func TestServiceLocalBackendsNeedNoCredential(t *testing.T) {
	t.Parallel()

	fixture := newServiceFixture(t,
		&stubCompleter{reply: `{"title":"Hope"}`},
		&stubCompleter{reply: `{"speech":"Friends"}`},
		PolicyFailFast,
		ServiceOptions{},
	)

	if fixture.service.NeedsAPIKey() {
		t.Fatalf("expected no api key prompt for local backends")
	}

	result, err := fixture.service.Generate(context.Background(), Request{Topic: "hope"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.Title != "Hope" || result.Speech != "Friends" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestServiceEmptyTopicSkipsBackends(t *testing.T) {
	t.Parallel()

	title := &stubCompleter{reply: `{"title":"x"}`}
	runs := setupRunRepository(t)
	fixture := newServiceFixture(t, title, &stubCompleter{}, PolicyFailFast, ServiceOptions{
		Runs:          runs,
		DefaultAPIKey: "sk-server",
	})

	if _, err := fixture.service.Generate(context.Background(), Request{Topic: "  "}); !eris.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if title.calls != 0 {
		t.Fatalf("expected title backend not to be called")
	}

	count, err := runs.Count(context.Background(), "")
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty topic not to be recorded, got %d", count)
	}
}

func TestServiceRecordsRunMetadata(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runs := setupRunRepository(t)
	title := &stubCompleter{name: "openai:gpt-4o", reply: `{"title":"Hope"}`}
	speech := &stubCompleter{name: "ollama:gemma:2b", reply: `{"speech":"Friends"}`}
	fixture := newServiceFixture(t, title, speech, PolicyFailFast, ServiceOptions{Runs: runs, DefaultAPIKey: "sk"})

	if _, err := fixture.service.Generate(ctx, Request{Topic: "hope"}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	speech.reply = `{"text":"Friends"}`
	if _, err := fixture.service.Generate(ctx, Request{Topic: "hope"}); !eris.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}

	drafted, err := fixture.service.DraftCount(ctx)
	if err != nil {
		t.Fatalf("DraftCount returned error: %v", err)
	}
	if drafted != 1 {
		t.Fatalf("expected one drafted speech, got %d", drafted)
	}

	aborted, err := runs.Count(ctx, RunStatusAborted)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if aborted != 1 {
		t.Fatalf("expected one aborted run, got %d", aborted)
	}

	var record RunRecord
	if err := runs.db.Where("status = ?", RunStatusAborted).First(&record).Error; err != nil {
		t.Fatalf("loading aborted record failed: %v", err)
	}
	if record.ErrorKind != "malformed_response" || record.FailedStage != string(StageSpeech) {
		t.Fatalf("unexpected aborted record %+v", record)
	}
	if record.TitleBackend != "openai:gpt-4o" || record.SpeechBackend != "ollama:gemma:2b" {
		t.Fatalf("unexpected backends on record %+v", record)
	}
}

func TestServiceRunStoreFailureDoesNotMaskResult(t *testing.T) {
	t.Parallel()

	runs := &failingRunRepository{}
	fixture := newServiceFixture(t,
		&stubCompleter{reply: `{"title":"Hope"}`},
		&stubCompleter{reply: `{"speech":"Friends"}`},
		PolicyFailFast,
		ServiceOptions{Runs: runs},
	)

	result, err := fixture.service.Generate(context.Background(), Request{Topic: "hope"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.Speech != "Friends" {
		t.Fatalf("unexpected result %+v", result)
	}
	if runs.creates != 1 {
		t.Fatalf("expected one attempted record, got %d", runs.creates)
	}

	if _, err := fixture.service.DraftCount(context.Background()); err == nil {
		t.Fatalf("expected DraftCount to surface repository errors")
	}
}

func TestServiceCancelledRunIsNotDrafted(t *testing.T) {
	t.Parallel()

	runs := setupRunRepository(t)
	title := &stubCompleter{block: true}
	speech := &stubCompleter{block: true}
	fixture := newServiceFixture(t, title, speech, PolicyFallback, ServiceOptions{Runs: runs, DefaultAPIKey: "sk"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := fixture.service.Generate(ctx, Request{Topic: "climate change"})
	if !eris.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if result != nil && (result.TitleFallback || result.SpeechFallback) {
		t.Fatalf("expected no fallback values, got %+v", result)
	}
	if title.calls != 0 || speech.calls != 0 {
		t.Fatalf("expected no backend calls, got title=%d speech=%d", title.calls, speech.calls)
	}

	drafted, err := fixture.service.DraftCount(context.Background())
	if err != nil {
		t.Fatalf("DraftCount returned error: %v", err)
	}
	if drafted != 0 {
		t.Fatalf("expected cancelled run not to count as drafted, got %d", drafted)
	}

	var record RunRecord
	if err := runs.db.Where("status = ?", RunStatusAborted).First(&record).Error; err != nil {
		t.Fatalf("loading aborted record failed: %v", err)
	}
	if record.ErrorKind != "cancelled" {
		t.Fatalf("expected cancelled error kind, got %+v", record)
	}
}

func newCountingHub(t *testing.T, events *atomic.Int32) *sentry.Hub {
	t.Helper()

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(*sentry.Event, *sentry.EventHint) *sentry.Event {
			events.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("sentry.NewClient returned error: %v", err)
	}
	return sentry.NewHub(client, sentry.NewScope())
}

func TestServiceReportsOnlyUnexpectedFailuresToSentry(t *testing.T) {
	t.Parallel()

	var events atomic.Int32
	logger, hook := logtest.NewNullLogger()
	fixture := newServiceFixture(t,
		&stubCompleter{reply: `{"headline":"Hope"}`},
		&stubCompleter{reply: `{"speech":"unused"}`},
		PolicyFailFast,
		ServiceOptions{DefaultAPIKey: "sk", Logger: logger, SentryHub: newCountingHub(t, &events)},
	)

	if _, err := fixture.service.Generate(context.Background(), Request{Topic: "hope"}); !eris.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if got := events.Load(); got != 0 {
		t.Fatalf("expected malformed reply not to reach sentry, got %d events", got)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Data["error_kind"] != "malformed_response" {
		t.Fatalf("expected a warn entry for the malformed reply, got %+v", entry)
	}
	for _, logged := range hook.AllEntries() {
		if logged.Level <= logrus.ErrorLevel {
			t.Fatalf("expected no error-level entries, got %q", logged.Message)
		}
	}
}

func TestServiceReportsAssemblyFailureToSentry(t *testing.T) {
	t.Parallel()

	var events atomic.Int32
	assembler, err := NewAssembler(AssemblerOptions{
		Prompts: defaultPrompts(t),
		Backends: BackendFactoryFunc(func(string) (llm.Completer, llm.Completer, error) {
			return nil, nil, eris.New("unsupported llm provider")
		}),
		Logger: silentLogger(),
	})
	if err != nil {
		t.Fatalf("NewAssembler returned error: %v", err)
	}

	service, err := NewService(ServiceOptions{
		Assembler:     assembler,
		DefaultAPIKey: "sk",
		Logger:        silentLogger(),
		SentryHub:     newCountingHub(t, &events),
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	if _, err := service.Generate(context.Background(), Request{Topic: "hope"}); Kind(err) != "internal" {
		t.Fatalf("expected internal failure, got %v", err)
	}
	if got := events.Load(); got != 1 {
		t.Fatalf("expected one sentry event, got %d", got)
	}
}

func TestNewServiceRequiresAssembler(t *testing.T) {
	t.Parallel()

	if _, err := NewService(ServiceOptions{}); err == nil {
		t.Fatalf("expected error when assembler is missing")
	}
}
