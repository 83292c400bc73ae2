package obs

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// InitSentry wires crash reporting from SENTRY_DSN. The DSN is read from
// the environment, never from the TOML config file, so it never ends up
// committed alongside operator-facing settings. Returns a no-op cleanup
// if SENTRY_DSN is unset.
func InitSentry(version string) func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return func() {}
	}

	env := os.Getenv("SENTRY_ENVIRONMENT")
	if env == "" {
		env = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          "fisher@" + version,
		Environment:      env,
		AttachStacktrace: true,
		SampleRate:       1.0,
	})
	if err != nil {
		return func() {}
	}

	return func() {
		sentry.Flush(flushTimeout)
	}
}

// RecoverAndReport recovers a panic on the calling goroutine, reports it
// to Sentry, then re-panics so the process still crashes loudly. Workers
// defer this so one script's child-process bookkeeping bug cannot take
// down the whole daemon silently.
func RecoverAndReport() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(flushTimeout)
		panic(r)
	}
}

// CaptureError reports err to Sentry if initialized. Safe to call when
// Sentry was never configured.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}
