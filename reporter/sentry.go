package reporter

import (
	"context"
	"encoding/json"
	"time"

	sdk "github.com/getsentry/sentry-go"

	"github.com/warrenq/warren/errors"
)

// SentryReporter forwards every report to a Sentry project, attaching
// the portable, codec-serialised error payload (stack trace, hints,
// tags, events) errors.Error already knows how to produce.
type SentryReporter struct {
	codec errors.Codec
}

// NewSentryReporter initialises the global Sentry client for dsn and
// returns a Reporter backed by it. environment/release tag every event.
func NewSentryReporter(dsn, environment, release string) (*SentryReporter, error) {
	if err := sdk.Init(sdk.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	}); err != nil {
		return nil, errors.ConfigurationError(errors.Wrap(err, "init sentry client"))
	}
	return &SentryReporter{codec: errors.CodecJSON(false)}, nil
}

// Report implements Reporter.
func (s *SentryReporter) Report(ctx context.Context, err error, meta map[string]any) {
	sdk.WithScope(func(scope *sdk.Scope) {
		for k, v := range meta {
			scope.SetExtra(k, v)
		}
		if payload, encErr := errors.Report(err, s.codec); encErr == nil {
			var decoded map[string]interface{}
			if json.Unmarshal(payload, &decoded) == nil {
				scope.SetContext("error_detail", decoded)
			}
		}
		sdk.CaptureException(err)
	})
}

// Flush blocks until every buffered event is sent, or timeout elapses.
// Called by cmd/warrend on shutdown.
func Flush(timeout time.Duration) bool {
	return sdk.Flush(timeout)
}
