package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"

	"speechwriter/app/internal/app/bootstrap"
	"speechwriter/app/internal/config"
	applog "speechwriter/app/internal/log"
	"speechwriter/app/internal/speech"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	speechStyle  = lipgloss.NewStyle().Width(80).MarginTop(1)
)

// errExitWarning marks failures already reported to the user.
var errExitWarning = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		if !errors.Is(err, errExitWarning) {
			fmt.Fprintln(os.Stderr, warnStyle.Render(fmt.Sprintf("fatal: %v", err)))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return eris.Wrap(err, "failure loading configuration")
	}

	// Log lines would tear through the spinner; they go nowhere unless redirected.
	logger, err := applog.NewLoggerTo(io.Discard, cfg.LogLevel)
	if err != nil {
		return eris.Wrap(err, "failure initialising logger")
	}

	assembler, err := bootstrap.BuildAssembler(bootstrap.Dependencies{Config: cfg, Logger: logger}, nil)
	if err != nil {
		return err
	}

	fmt.Println(headingStyle.Render("Speechwriter"))

	apiKey := cfg.DefaultAPIKey()
	topic := ""

	fields := []huh.Field{}
	if apiKey == "" && cfg.RequiresCredential() {
		fields = append(fields, huh.NewInput().
			Title("OpenAI API key").
			Description("Used for this session only.").
			EchoMode(huh.EchoModePassword).
			Value(&apiKey))
	}
	fields = append(fields, huh.NewInput().
		Title("Speech topic").
		Placeholder("climate change").
		Value(&topic))

	if err := huh.NewForm(huh.NewGroup(fields...)).RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return eris.Wrap(err, "reading input")
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" && cfg.RequiresCredential() {
		fmt.Println(warnStyle.Render("Please enter your OpenAI API key to continue."))
		return errExitWarning
	}

	if strings.TrimSpace(topic) == "" {
		fmt.Println(mutedStyle.Render("No topic given, nothing to write."))
		return nil
	}

	pipeline, err := assembler.Pipeline(apiKey)
	if err != nil {
		return eris.Wrap(err, "assembling pipeline")
	}

	var (
		title         string
		titleFallback bool
	)
	err = runWithSpinner("Drafting a title", func() error {
		var stageErr error
		title, titleFallback, stageErr = pipeline.GenerateTitle(ctx, topic)
		return stageErr
	})
	if err != nil {
		return reportFailure(err)
	}
	printTitle(title, titleFallback)

	var (
		body           string
		speechFallback bool
	)
	err = runWithSpinner("Writing the speech", func() error {
		var stageErr error
		body, speechFallback, stageErr = pipeline.GenerateSpeech(ctx, title)
		return stageErr
	})
	if err != nil {
		return reportFailure(err)
	}

	fmt.Println(speechStyle.Render(body))
	if speechFallback {
		fmt.Println(mutedStyle.Render("The speech backend did not return a usable draft."))
	}

	return nil
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}

func printTitle(title string, fallback bool) {
	fmt.Println(titleStyle.Render(title))
	if fallback {
		fmt.Println(mutedStyle.Render("The title backend did not return a usable title."))
	}
}

func reportFailure(err error) error {
	fmt.Println(warnStyle.Render(failureMessage(err)))
	return errExitWarning
}

func failureMessage(err error) string {
	switch speech.Kind(err) {
	case "missing_credential":
		return "Please enter your OpenAI API key to continue."
	case "empty_input":
		return "The model returned an empty title, so no speech was written."
	case "cancelled":
		return "Stopped before the speech was finished."
	case "timeout":
		return "The model took too long to answer. Please try again."
	case "malformed_response":
		return "The model answered in an unexpected format. Please try again."
	case "backend_unavailable":
		return "The model could not be reached. Check your API key and that the local model is running."
	default:
		return "Something went wrong while writing the speech."
	}
}
