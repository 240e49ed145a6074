package reporter

import (
	"context"
	"errors"
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

type recordingReporter struct {
	calls []error
}

func (r *recordingReporter) Report(_ context.Context, err error, _ map[string]any) {
	r.calls = append(r.calls, err)
}

type panickingReporter struct{}

func (panickingReporter) Report(context.Context, error, map[string]any) {
	panic("boom")
}

func TestFanReportsToEveryReporter(t *testing.T) {
	assert := tdd.New(t)

	a, b := &recordingReporter{}, &recordingReporter{}
	fan := Fan{Reporters: []Reporter{a, b}}

	err := errors.New("handler failed")
	fan.Report(context.Background(), err, map[string]any{"queue": "orders"})

	assert.Len(a.calls, 1)
	assert.Len(b.calls, 1)
	assert.Equal(err, a.calls[0])
}

func TestFanSurvivesReporterPanic(t *testing.T) {
	assert := tdd.New(t)

	rec := &recordingReporter{}
	fan := Fan{Reporters: []Reporter{panickingReporter{}, rec}}

	assert.NotPanics(func() {
		fan.Report(context.Background(), errors.New("boom"), nil)
	})
	assert.Len(rec.calls, 1)
}

func TestDiscardReporterDropsEverything(t *testing.T) {
	assert := tdd.New(t)
	assert.NotPanics(func() {
		DiscardReporter{}.Report(context.Background(), errors.New("x"), nil)
	})
}
