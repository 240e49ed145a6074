// Package worker drives the registered consumer.Descriptors: it
// declares and binds each descriptor's queue, subscribes in manual-ack
// mode, and dispatches every delivery through a bounded worker pool
// until a shutdown signal arrives on the process's waiter.Waiter.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/warrenq/warren/ackpolicy"
	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/broker"
	"github.com/warrenq/warren/channelbroker"
	"github.com/warrenq/warren/consumer"
	"github.com/warrenq/warren/errors"
	xlog "github.com/warrenq/warren/log"
	"github.com/warrenq/warren/metrics"
	"github.com/warrenq/warren/reporter"
	"github.com/warrenq/warren/serializer"
	"github.com/warrenq/warren/tracer"
	"github.com/warrenq/warren/waiter"
)

// maxConsumerTagBytes is the AMQP wire limit for a consumer tag.
const maxConsumerTagBytes = 255

// defaultPoolSize is used when Options.PoolSize is left unset.
const defaultPoolSize = 10

// Options configure a Worker's subscription and dispatch behaviour.
type Options struct {
	// PoolSize bounds the number of deliveries handled concurrently
	// across all subscriptions. Defaults to defaultPoolSize.
	PoolSize int

	// ConsumerTagPrefix prefixes every generated consumer tag.
	ConsumerTagPrefix string

	// ConsumerGroup selects which descriptors are enabled. Empty
	// enables every descriptor regardless of its own Group.
	ConsumerGroup string

	// ConsumerGroups maps a group name to the list of descriptor names
	// enabled under it. A ConsumerGroup not present here enables
	// nothing and logs a warning.
	ConsumerGroups map[string][]string

	// Serializer is the fallback used for descriptors that don't
	// override one of their own.
	Serializer serializer.Serializer

	// Reporter receives every handler error, in addition to the
	// nack action always being enqueued on the Waiter first.
	Reporter reporter.Reporter

	// GlobalMiddleware wraps every descriptor's handler ahead of its own
	// Middleware, letting the host process install a process-wide
	// tracer (e.g. tracer.OTel) without every descriptor registering it.
	GlobalMiddleware []tracer.Tracer

	Log xlog.Logger
}

// Worker owns the process's broker connection, the frozen consumer
// registry and any one-time setup callbacks, and runs the subscribe/
// dispatch/shutdown lifecycle.
type Worker struct {
	broker   *broker.Broker
	registry *consumer.Registry
	setup    []func(*broker.Broker) error
	opts     Options
	log      xlog.Logger
}

// New returns a Worker ready to Run.
func New(b *broker.Broker, registry *consumer.Registry, setup []func(*broker.Broker) error, opts Options) *Worker {
	if opts.Serializer == nil {
		opts.Serializer = serializer.Default()
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.Reporter == nil {
		opts.Reporter = reporter.DiscardReporter{}
	}
	if opts.Log == nil {
		opts.Log = xlog.Discard()
	}
	return &Worker{broker: b, registry: registry, setup: setup, opts: opts, log: opts.Log}
}

type subscription struct {
	descriptor consumer.Descriptor
	cb         *channelbroker.ChannelBroker
	queueName  string
	tag        string
}

// Run executes the full worker lifecycle: signal registration,
// group-based descriptor filtering, queue/binding declaration, one-time
// setup, subscription and dispatch, and a graceful stop once a shutdown
// signal is observed.
func (w *Worker) Run(ctx context.Context) error {
	wt := waiter.New(w.broker, w.log)

	descriptors := w.registry.Freeze()
	enabled := w.filterByGroup(descriptors)

	subs, err := w.prepare(ctx, enabled)
	if err != nil {
		return err
	}

	for _, fn := range w.setup {
		if err := fn(w.broker); err != nil {
			return errors.ConfigurationError(errors.Wrap(err, "worker setup callback"))
		}
	}

	sem := semaphore.NewWeighted(int64(w.opts.PoolSize))
	var wg sync.WaitGroup

	for i := range subs {
		s := subs[i]
		deliveries, _, err := s.cb.Consumer().Subscribe(amqp.SubscribeOptions{
			Queue:       s.queueName,
			ConsumerTag: s.tag,
		})
		if err != nil {
			return errors.ConnectionError(errors.Wrapf(err, "subscribe to queue %q", s.queueName))
		}
		wg.Add(1)
		go w.runSubscription(ctx, s, deliveries, sem, &wg, wt)
	}

	<-wt.Wait()
	for i := range subs {
		if err := subs[i].cb.Consumer().CloseSubscription(subs[i].tag); err != nil {
			w.log.WithField("error", err.Error()).Warning("failed to cancel subscription during shutdown")
		}
	}
	wg.Wait()
	wt.Close()
	return w.broker.Stop(ctx)
}

// filterByGroup implements spec's consumer enablement rule: no group
// configured enables everything, a configured group not found in
// ConsumerGroups enables nothing (logged), otherwise only descriptors
// named in that group's list are enabled.
func (w *Worker) filterByGroup(descriptors []consumer.Descriptor) []consumer.Descriptor {
	if w.opts.ConsumerGroup == "" {
		return descriptors
	}
	names, ok := w.opts.ConsumerGroups[w.opts.ConsumerGroup]
	if !ok {
		w.log.WithField("group", w.opts.ConsumerGroup).Warning("unknown consumer group, no descriptors enabled")
		return nil
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var enabled []consumer.Descriptor
	for _, d := range descriptors {
		if allowed[d.Name] {
			enabled = append(enabled, d)
		}
	}
	return enabled
}

// prepare opens one channel per enabled descriptor, declares its queue
// and bindings, and generates its consumer tag, failing fatally if the
// tag would exceed the wire limit.
func (w *Worker) prepare(ctx context.Context, descriptors []consumer.Descriptor) ([]subscription, error) {
	subs := make([]subscription, 0, len(descriptors))
	for _, d := range descriptors {
		cb, err := w.broker.NewWorkerChannel(ctx)
		if err != nil {
			return nil, err
		}

		queueName, err := w.broker.Queue(cb, d.Queue, d.Arguments)
		if err != nil {
			return nil, err
		}

		if len(d.RoutingKeys) > 0 {
			if err := w.broker.BindQueue(ctx, cb, queueName, d.RoutingKeys); err != nil {
				return nil, err
			}
		}

		tag, err := consumerTag(w.opts.ConsumerTagPrefix)
		if err != nil {
			return nil, err
		}

		subs = append(subs, subscription{descriptor: d, cb: cb, queueName: queueName, tag: tag})
	}
	return subs, nil
}

// consumerTag builds a <prefix>-<uuid> consumer tag and fails fatally
// if it would exceed the AMQP wire limit of 255 bytes.
func consumerTag(prefix string) (string, error) {
	tag := fmt.Sprintf("%s-%s", prefix, uuid.New().String())
	if len(tag) > maxConsumerTagBytes {
		return "", errors.ConfigurationError(errors.Errorf("consumer tag %q exceeds %d bytes", tag, maxConsumerTagBytes))
	}
	return tag, nil
}

// runSubscription reads deliveries off one subscription and hands each
// one to the shared, semaphore-bounded worker pool.
func (w *Worker) runSubscription(ctx context.Context, s subscription, deliveries <-chan amqp.Delivery, sem *semaphore.Weighted, wg *sync.WaitGroup, wt *waiter.Waiter) {
	defer wg.Done()
	mw := append(append([]tracer.Tracer{}, w.opts.GlobalMiddleware...), s.descriptor.Middleware...)
	chain := tracer.Chain(mw...)

	for delivery := range deliveries {
		metrics.DeliveriesReceived.WithLabelValues(s.descriptor.Queue).Inc()
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(d amqp.Delivery) {
			defer wg.Done()
			defer sem.Release(1)
			w.process(ctx, s.descriptor, d, chain, wt)
		}(delivery)
	}
}

// process decodes and handles a single delivery, then enqueues the
// resulting ack/nack action on the Waiter. On failure, the nack action
// is enqueued first, then the error is fanned out to the configured
// reporter, as spec requires no delivery ever be lost ahead of being
// reported.
func (w *Worker) process(ctx context.Context, d consumer.Descriptor, delivery amqp.Delivery, chain tracer.Tracer, wt *waiter.Waiter) {
	ser := d.Serializer
	if ser == nil {
		ser = w.opts.Serializer
	}

	handler := chain(d.Factory())
	mctx := &messageContext{ctx: ctx, delivery: delivery, serializer: ser}

	start := time.Now()
	err := handler.Handle(mctx)
	metrics.HandlerDuration.WithLabelValues(d.Queue).Observe(time.Since(start).Seconds())
	if err != nil {
		var de *errors.DomainError
		if !errors.As(err, &de) {
			err = errors.HandlerError(err)
		}
	}

	info := ackpolicy.DeliveryInfo{
		Queue:       d.Queue,
		RoutingKey:  delivery.RoutingKey,
		ConsumerTag: delivery.ConsumerTag,
		Redelivered: delivery.Redelivered,
	}

	if err != nil {
		metrics.DeliveriesNacked.WithLabelValues(d.Queue).Inc()
		wt.Nack(ctx, delivery, info, d.Arguments, effectiveAckChain(d), err)
		w.opts.Reporter.Report(ctx, err, map[string]any{
			"queue":        d.Queue,
			"routing_key":  delivery.RoutingKey,
			"consumer_tag": delivery.ConsumerTag,
			"consumer":     d.Name,
		})
		return
	}
	metrics.DeliveriesAcked.WithLabelValues(d.Queue).Inc()
	wt.Ack(ctx, delivery)
}

// effectiveAckChain returns d's own AckChain when set, otherwise builds
// one from d.Retryable: requeue when the predicate claims the error as
// transient, dead-letter (reject without requeue) otherwise. A
// descriptor with neither falls through to the Waiter's
// NackOnAllFailures fallback.
func effectiveAckChain(d consumer.Descriptor) ackpolicy.Chain {
	if len(d.AckChain) > 0 || d.Retryable == nil {
		return d.AckChain
	}
	return ackpolicy.Chain{
		ackpolicy.RequeueOn(d.Retryable),
		ackpolicy.DeadLetterOn(func(error) bool { return true }),
	}
}
