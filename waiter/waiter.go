// Package waiter owns the process's signal handling and is the single
// serialization point for every delivery's final ack/nack call,
// guaranteeing acknowledgements for one channel never race each other
// across worker goroutines.
package waiter

import (
	"container/list"
	"context"
	"os"
	"reflect"
	"sync"
	"syscall"

	"github.com/warrenq/warren/ackpolicy"
	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/broker"
	"github.com/warrenq/warren/cli"
	xlog "github.com/warrenq/warren/log"
)

// kind identifies what an action does once popped off the queue.
type kind int

const (
	kindAck kind = iota
	kindNack
)

type action struct {
	kind   kind
	ctx    context.Context
	d      amqp.Delivery
	info   ackpolicy.DeliveryInfo
	props  amqp.Table
	chain  ackpolicy.Chain
	cause  error
}

// Waiter owns the process's shutdown signal channel and the ordered
// queue of pending ack/nack actions. Wait blocks the caller until a
// shutdown signal arrives; the queue drains continuously on its own
// goroutine from New until Close is called.
type Waiter struct {
	log     xlog.Logger
	broker  *broker.Broker
	signals chan os.Signal

	mu    sync.Mutex
	queue *list.List
	wake  chan struct{}
	done  chan struct{}

	stopDrain chan struct{}
	drainDone chan struct{}
}

// New returns a Waiter that settles deliveries against b, registering
// the process's shutdown and diagnostic signal handlers, and starts the
// background goroutine that settles queued ack/nack actions for the
// life of the process.
func New(b *broker.Broker, log xlog.Logger) *Waiter {
	if log == nil {
		log = xlog.Discard()
	}
	w := &Waiter{
		log:       log,
		broker:    b,
		queue:     list.New(),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		stopDrain: make(chan struct{}),
		drainDone: make(chan struct{}),
	}
	w.signals = registerSignals()
	go w.drainLoop()
	return w
}

// drainLoop settles queued actions on its own goroutine, independent of
// Wait's signal loop, so deliveries already in flight when a shutdown
// signal arrives still get acked or nacked after Wait has returned.
// Runs until Close stops it.
func (w *Waiter) drainLoop() {
	defer close(w.drainDone)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stopDrain:
			w.drain()
			return
		}
	}
}

// Close settles whatever is left queued and stops the background drain
// goroutine. Call only once every delivery handed to a worker pool has
// already reached Ack or Nack, typically right before Broker.Stop.
func (w *Waiter) Close() {
	close(w.stopDrain)
	<-w.drainDone
}

// Ack enqueues an acknowledge action for d. Safe to call from any
// goroutine; the actual Broker.Ack call happens on drainLoop's goroutine.
func (w *Waiter) Ack(ctx context.Context, d amqp.Delivery) {
	w.push(action{kind: kindAck, ctx: ctx, d: d})
}

// Nack enqueues a negative-acknowledge action for d, to be settled by
// walking chain. cause is the handler error that triggered the nack,
// available to every policy in the chain.
func (w *Waiter) Nack(ctx context.Context, d amqp.Delivery, info ackpolicy.DeliveryInfo, props amqp.Table, chain ackpolicy.Chain, cause error) {
	w.push(action{kind: kindNack, ctx: ctx, d: d, info: info, props: props, chain: chain, cause: cause})
}

func (w *Waiter) push(a action) {
	w.mu.Lock()
	w.queue.PushBack(a)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Waiter) pop() (action, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	front := w.queue.Front()
	if front == nil {
		return action{}, false
	}
	w.queue.Remove(front)
	return front.Value.(action), true
}

// Wait blocks until a non-diagnostic shutdown signal is received, then
// closes and returns the done channel. Queued ack/nack actions keep
// being settled on drainLoop regardless of whether Wait has returned.
// Call from the goroutine that should block until shutdown.
func (w *Waiter) Wait() <-chan struct{} {
	for sig := range w.signals {
		if dumpSignal(sig) {
			w.dumpStacks()
			continue
		}
		w.log.WithField("signal", sig.String()).Info("shutdown signal received")
		close(w.done)
		return w.done
	}
	return w.done
}

// drain settles every action currently queued, oldest first, before
// returning to drainLoop's select.
func (w *Waiter) drain() {
	for {
		a, ok := w.pop()
		if !ok {
			return
		}
		w.settle(a)
	}
}

func (w *Waiter) settle(a action) {
	switch a.kind {
	case kindAck:
		if err := w.broker.Ack(a.ctx, a.d); err != nil {
			w.log.WithField("error", err.Error()).Warning("ack failed")
		}
	case kindNack:
		chain := a.chain
		if len(chain) == 0 || !endsInClaim(chain) {
			chain = append(append(ackpolicy.Chain{}, chain...), ackpolicy.NackOnAllFailures)
		}
		if err := chain.Run(a.ctx, a.d, a.info, a.props, w.broker, a.cause); err != nil {
			w.log.WithField("error", err.Error()).Warning("nack chain failed")
		}
	}
}

// endsInClaim reports whether chain's last policy is already
// NackOnAllFailures, avoiding a redundant double-append when the
// descriptor built its own terminal fallback.
func endsInClaim(chain ackpolicy.Chain) bool {
	if len(chain) == 0 {
		return false
	}
	last := chain[len(chain)-1]
	return reflect.ValueOf(last).Pointer() == reflect.ValueOf(ackpolicy.Policy(ackpolicy.NackOnAllFailures)).Pointer()
}

// registerSignals builds the shutdown signal channel via cli.SignalsHandler
// (the same reset-then-notify helper the teacher's interactive commands
// use) and adds the platform's diagnostic stack-dump signal on top.
func registerSignals() chan os.Signal {
	ch := cli.SignalsHandler([]os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT})
	registerDumpSignal(ch)
	return ch
}
