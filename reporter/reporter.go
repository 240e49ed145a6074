// Package reporter ships the error-reporter fan-out the dispatch loop
// notifies whenever a handler returns an error, independent of the
// ack-policy decision made for the same failure.
package reporter

import (
	"context"

	"github.com/warrenq/warren/errors"
	xlog "github.com/warrenq/warren/log"
)

// Reporter receives a notification for every handler error, alongside
// free-form metadata describing the delivery it came from (queue,
// routing key, consumer name). Implementations must not block the
// dispatch loop for long and must never panic.
type Reporter interface {
	Report(ctx context.Context, err error, meta map[string]any)
}

// Fan fans a report out to every configured Reporter, recovering and
// logging any individual reporter's panic so one bad backend never
// affects the others or the caller's ack decision. Mirrors
// log.Composite's fan-out idiom, one level up the stack.
type Fan struct {
	Reporters []Reporter
	Log       xlog.Logger
}

// Report implements Reporter.
func (f Fan) Report(ctx context.Context, err error, meta map[string]any) {
	for _, r := range f.Reporters {
		f.reportOne(ctx, r, err, meta)
	}
}

func (f Fan) reportOne(ctx context.Context, r Reporter, err error, meta map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			if f.Log != nil {
				f.Log.WithFields(xlog.Fields{"panic": errors.FromRecover(rec).Error()}).Error("reporter panicked")
			}
		}
	}()
	r.Report(ctx, err, meta)
}

// LogReporter reports every error through a log.Logger at Error level.
type LogReporter struct {
	Log xlog.Logger
}

// Report implements Reporter.
func (l LogReporter) Report(_ context.Context, err error, meta map[string]any) {
	l.Log.WithFields(xlog.Fields(meta)).Error(err.Error())
}

// DiscardReporter drops every report, useful as a default when no
// external error-reporting backend is configured.
type DiscardReporter struct{}

// Report implements Reporter.
func (DiscardReporter) Report(context.Context, error, map[string]any) {}
