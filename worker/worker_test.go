package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"

	"github.com/warrenq/warren/ackpolicy"
	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/broker"
	"github.com/warrenq/warren/consumer"
	wrenErrors "github.com/warrenq/warren/errors"
	xlog "github.com/warrenq/warren/log"
	"github.com/warrenq/warren/serializer"
	"github.com/warrenq/warren/tracer"
	"github.com/warrenq/warren/waiter"
)

func TestFilterByGroupNoGroupConfiguredEnablesAll(t *testing.T) {
	assert := tdd.New(t)

	w := &Worker{log: xlog.Discard(), opts: Options{}}
	descriptors := []consumer.Descriptor{{Name: "a"}, {Name: "b", Group: "billing"}}

	enabled := w.filterByGroup(descriptors)
	assert.Len(enabled, 2)
}

func TestFilterByGroupUnknownGroupEnablesNothing(t *testing.T) {
	assert := tdd.New(t)

	w := &Worker{log: xlog.Discard(), opts: Options{ConsumerGroup: "missing", ConsumerGroups: map[string][]string{"billing": {"a"}}}}
	descriptors := []consumer.Descriptor{{Name: "a"}}

	enabled := w.filterByGroup(descriptors)
	assert.Empty(enabled)
}

func TestFilterByGroupKnownGroupFiltersByName(t *testing.T) {
	assert := tdd.New(t)

	w := &Worker{log: xlog.Discard(), opts: Options{ConsumerGroup: "billing", ConsumerGroups: map[string][]string{"billing": {"a"}}}}
	descriptors := []consumer.Descriptor{{Name: "a"}, {Name: "b"}}

	enabled := w.filterByGroup(descriptors)
	assert.Len(enabled, 1)
	assert.Equal("a", enabled[0].Name)
}

func TestConsumerTagWithinLimit(t *testing.T) {
	assert := tdd.New(t)

	tag, err := consumerTag("warrend")
	assert.NoError(err)
	assert.True(strings.HasPrefix(tag, "warrend-"))
	assert.LessOrEqual(len(tag), maxConsumerTagBytes)
}

func TestConsumerTagRejectsOversizedPrefix(t *testing.T) {
	assert := tdd.New(t)

	_, err := consumerTag(strings.Repeat("x", 300))
	assert.Error(err)
}

func TestEffectiveAckChainPrefersExplicitChain(t *testing.T) {
	assert := tdd.New(t)
	explicit := ackpolicy.Chain{ackpolicy.NackOnAllFailures}
	d := consumer.Descriptor{AckChain: explicit, Retryable: func(error) bool { return true }}
	assert.Len(effectiveAckChain(d), 1)
}

func TestEffectiveAckChainBuildsFromRetryablePredicate(t *testing.T) {
	assert := tdd.New(t)
	d := consumer.Descriptor{Retryable: func(error) bool { return false }}
	chain := effectiveAckChain(d)
	assert.Len(chain, 2)
}

func TestEffectiveAckChainEmptyWhenNeitherSet(t *testing.T) {
	assert := tdd.New(t)
	assert.Empty(effectiveAckChain(consumer.Descriptor{}))
}

type fakeAcker struct {
	acked  bool
	nacked bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error  { f.acked = true; return nil }
func (f *fakeAcker) Reject(tag uint64, requeue bool) error { return nil }
func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	return nil
}

func TestProcessAcksOnHandlerSuccess(t *testing.T) {
	assert := tdd.New(t)

	wt := waiter.New(&broker.Broker{}, nil)
	go wt.Wait()

	acker := &fakeAcker{}
	delivery := amqp.Delivery{Acknowledger: acker}

	w := New(&broker.Broker{}, consumer.NewRegistry(), nil, Options{})
	desc := consumer.Descriptor{
		Name:       "orders",
		Serializer: serializer.JSON{},
		Factory: func() consumer.Handler {
			return consumer.HandlerFunc(func(ctx consumer.Context) error { return nil })
		},
	}

	w.process(context.Background(), desc, delivery, tracer.NoOp, wt)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !acker.acked {
		time.Sleep(time.Millisecond)
	}
	assert.True(acker.acked)
	assert.False(acker.nacked)
}

func TestProcessNacksAndReportsOnHandlerError(t *testing.T) {
	assert := tdd.New(t)

	wt := waiter.New(&broker.Broker{}, nil)
	go wt.Wait()

	acker := &fakeAcker{}
	delivery := amqp.Delivery{Acknowledger: acker}

	reported := make(chan error, 1)
	w := New(&broker.Broker{}, consumer.NewRegistry(), nil, Options{
		Reporter: reporterFunc(func(ctx context.Context, err error, meta map[string]any) {
			reported <- err
		}),
	})
	boom := errors.New("handler exploded")
	desc := consumer.Descriptor{
		Name:       "orders",
		Serializer: serializer.JSON{},
		Factory: func() consumer.Handler {
			return consumer.HandlerFunc(func(ctx consumer.Context) error { return boom })
		},
	}

	w.process(context.Background(), desc, delivery, tracer.NoOp, wt)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !acker.nacked {
		time.Sleep(time.Millisecond)
	}
	assert.True(acker.nacked)
	assert.False(acker.acked)

	select {
	case err := <-reported:
		assert.ErrorIs(err, boom)
		assert.True(wrenErrors.IsKind(err, wrenErrors.KindHandler))
	case <-time.After(time.Second):
		t.Fatal("reporter was never called")
	}
}

type reporterFunc func(ctx context.Context, err error, meta map[string]any)

func (f reporterFunc) Report(ctx context.Context, err error, meta map[string]any) { f(ctx, err, meta) }
