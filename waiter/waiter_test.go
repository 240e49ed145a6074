package waiter

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	driver "github.com/rabbitmq/amqp091-go"
	tdd "github.com/stretchr/testify/assert"

	"github.com/warrenq/warren/ackpolicy"
	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/broker"
	xlog "github.com/warrenq/warren/log"
)

type fakeAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error  { f.acked = true; return nil }
func (f *fakeAcker) Reject(tag uint64, requeue bool) error { return nil }
func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func delivery(acker driver.Acknowledger) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker}
}

func newTestWaiter() *Waiter {
	w := New(&broker.Broker{}, xlog.Discard())
	go w.Wait()
	return w
}

func TestAckIsSettledByWaitLoop(t *testing.T) {
	assert := tdd.New(t)

	w := newTestWaiter()
	acker := &fakeAcker{}
	w.Ack(context.Background(), delivery(acker))

	waitUntil(t, func() bool { return acker.acked })
	assert.True(acker.acked)
}

func TestNackWithEmptyChainFallsBackToNackOnAllFailures(t *testing.T) {
	assert := tdd.New(t)

	w := newTestWaiter()
	acker := &fakeAcker{}
	w.Nack(context.Background(), delivery(acker), ackpolicy.DeliveryInfo{}, nil, nil, errors.New("boom"))

	waitUntil(t, func() bool { return acker.nacked })
	assert.True(acker.nacked)
	assert.False(acker.requeue, "the terminal fallback drops the delivery instead of requeueing it forever")
}

func TestNackWalksCallerChainBeforeFallback(t *testing.T) {
	assert := tdd.New(t)

	w := newTestWaiter()
	acker := &fakeAcker{}
	claimed := false
	chain := ackpolicy.Chain{
		func(ctx context.Context, d amqp.Delivery, info ackpolicy.DeliveryInfo, props amqp.Table, b *broker.Broker, cause error) bool {
			claimed = true
			return true
		},
	}
	w.Nack(context.Background(), delivery(acker), ackpolicy.DeliveryInfo{}, nil, chain, errors.New("boom"))

	waitUntil(t, func() bool { return claimed })
	assert.True(claimed)
	assert.False(acker.nacked, "a claiming policy settles the delivery itself, not via the fallback")
}

func TestActionsAreProcessedInFIFOOrder(t *testing.T) {
	assert := tdd.New(t)

	w := newTestWaiter()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		w.push(action{kind: kindNack, ctx: context.Background(), d: delivery(&fakeAcker{}), chain: ackpolicy.Chain{
			func(ctx context.Context, d amqp.Delivery, info ackpolicy.DeliveryInfo, props amqp.Table, b *broker.Broker, cause error) bool {
				order = append(order, i)
				return true
			},
		}})
	}

	waitUntil(t, func() bool { return len(order) == 5 })
	assert.Equal([]int{0, 1, 2, 3, 4}, order)
}

func TestCloseSettlesQueuedActionsBeforeStopping(t *testing.T) {
	assert := tdd.New(t)

	w := New(&broker.Broker{}, xlog.Discard())
	acker := &fakeAcker{}
	w.Ack(context.Background(), delivery(acker))

	w.Close()
	assert.True(acker.acked)
}

func TestWaitReturnsIndependentlyOfDrainLoop(t *testing.T) {
	assert := tdd.New(t)

	w := New(&broker.Broker{}, xlog.Discard())
	acker := &fakeAcker{}

	done := make(chan struct{})
	go func() {
		<-w.Wait()
		close(done)
	}()

	w.signals <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait never returned")
	}

	w.Ack(context.Background(), delivery(acker))
	waitUntil(t, func() bool { return acker.acked })
	assert.True(acker.acked, "drainLoop must keep settling actions after Wait has already returned")
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
