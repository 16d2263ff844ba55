package speech

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"speechwriter/app/internal/db"
	"speechwriter/app/internal/llm"
	applog "speechwriter/app/internal/log"
	"speechwriter/app/internal/prompt"
)

type stubCompleter struct {
	name     string
	reply    string
	err      error
	block    bool
	calls    int
	requests []llm.Request
}

func (s *stubCompleter) Name() string {
	if s.name == "" {
		return "stub:model"
	}
	return s.name
}

func (s *stubCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	s.requests = append(s.requests, req)

	if s.block {
		<-ctx.Done()
		return "", eris.Wrap(ctx.Err(), "waiting for backend")
	}
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubCompleter) lastPrompt() string {
	if len(s.requests) == 0 {
		return ""
	}
	return s.requests[len(s.requests)-1].Prompt
}

func silentLogger() *logrus.Logger {
	return applog.Discard()
}

func defaultPrompts(t *testing.T) *prompt.Set {
	t.Helper()

	set, err := prompt.Default()
	if err != nil {
		t.Fatalf("prompt.Default returned error: %v", err)
	}
	return set
}

func newTestAssembler(t *testing.T, title, speech llm.Completer, policy Policy, timeout time.Duration) *Assembler {
	t.Helper()

	assembler, err := NewAssembler(AssemblerOptions{
		Prompts: defaultPrompts(t),
		Backends: BackendFactoryFunc(func(string) (llm.Completer, llm.Completer, error) {
			return title, speech, nil
		}),
		Policy:       policy,
		StageTimeout: timeout,
		Logger:       silentLogger(),
	})
	if err != nil {
		t.Fatalf("NewAssembler returned error: %v", err)
	}
	return assembler
}

func newTestPipeline(t *testing.T, title, speech llm.Completer, policy Policy) *Pipeline {
	t.Helper()

	pipeline, err := newTestAssembler(t, title, speech, policy, 0).Pipeline("sk-test")
	if err != nil {
		t.Fatalf("Pipeline returned error: %v", err)
	}
	return pipeline
}

func setupRunRepository(t *testing.T) *GormRunRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "runs.db")
	gormDB, err := db.Open(db.Options{Path: path})
	if err != nil {
		t.Fatalf("db.Open returned error: %v", err)
	}

	t.Cleanup(func() {
		if closeErr := db.Close(gormDB); closeErr != nil {
			t.Fatalf("closing database failed: %v", closeErr)
		}
	})

	if err := Migrate(context.Background(), gormDB, silentLogger()); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	repo, err := NewRunRepository(gormDB, silentLogger())
	if err != nil {
		t.Fatalf("NewRunRepository returned error: %v", err)
	}

	return repo
}
