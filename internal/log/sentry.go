package log

import (
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

const sentryFlushTimeout = 2 * time.Second

// SentrySettings represents the configuration required to bootstrap Sentry.
type SentrySettings struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry wires up Sentry exception logging and connects it to the provided logrus logger.
// With an empty DSN it returns a nil hub and a no-op flush.
func InitSentry(logger *logrus.Logger, settings SentrySettings) (*sentry.Hub, func(), error) {
	if settings.DSN == "" {
		return nil, func() {}, nil
	}

	release := settings.Release
	if release == "" {
		release = buildRelease()
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
		Release:     release,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "error initializing sentry client")
	}

	hub := sentry.NewHub(client, sentry.NewScope())

	hook := sentrylogrus.NewLogHookFromClient([]logrus.Level{
		logrus.ErrorLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}, client)
	logger.AddHook(hook)

	flush := func() {
		hub.Flush(sentryFlushTimeout)
	}

	return hub, flush, nil
}

func buildRelease() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return ""
	}
	return "speechwriter@" + info.Main.Version
}
