// Package consumer implements the builder/freeze registry of message
// handlers a worker process subscribes once its broker connection is
// established.
package consumer

import (
	"github.com/warrenq/warren/ackpolicy"
	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/serializer"
	"github.com/warrenq/warren/tracer"
)

// Handler processes a single decoded delivery. Defined in tracer/ (so
// that Tracer can decorate it without consumer/tracer forming an import
// cycle); re-exported here as the type handler factories are written
// against.
type Handler = tracer.Handler

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc = tracer.HandlerFunc

// Context carries everything a handler needs about the delivery it was
// invoked for. Implemented in worker/ (the concrete type lives there to
// keep worker's dispatch bookkeeping out of this package).
type Context = tracer.Context

// Descriptor registers one queue's worth of routing, serialization and
// handler construction settings.
type Descriptor struct {
	Name         string
	Queue        string
	RoutingKeys  []string
	Group        string
	Serializer   serializer.Serializer
	Arguments    amqp.Table
	Factory      func() Handler
	Middleware   []tracer.Tracer
	AckChain     ackpolicy.Chain
	Retryable    func(error) bool
}

// DescriptorOption adjusts a Descriptor being built by Registry.Add.
type DescriptorOption func(*Descriptor)

// WithRoutingKeys binds the queue to the main exchange using these keys.
func WithRoutingKeys(keys ...string) DescriptorOption {
	return func(d *Descriptor) { d.RoutingKeys = keys }
}

// WithGroup records a consumer group tag on the descriptor. Worker
// enablement does not read it: a worker with a consumer group set
// subscribes the descriptors whose Name is listed under that group in
// worker.Options.ConsumerGroups.
func WithGroup(group string) DescriptorOption {
	return func(d *Descriptor) { d.Group = group }
}

// WithSerializer overrides the broker-wide default serializer for this
// descriptor's deliveries.
func WithSerializer(s serializer.Serializer) DescriptorOption {
	return func(d *Descriptor) { d.Serializer = s }
}

// WithArguments sets additional queue declare arguments.
func WithArguments(args amqp.Table) DescriptorOption {
	return func(d *Descriptor) { d.Arguments = args }
}

// WithMiddleware appends tracer decorators, applied left-to-right.
func WithMiddleware(mw ...tracer.Tracer) DescriptorOption {
	return func(d *Descriptor) { d.Middleware = append(d.Middleware, mw...) }
}

// WithAckChain sets the per-descriptor error-acknowledgement chain,
// walked before the Waiter's NackOnAllFailures fallback.
func WithAckChain(chain ackpolicy.Chain) DescriptorOption {
	return func(d *Descriptor) { d.AckChain = chain }
}

// WithRetryable sets the predicate the default ack policy uses to
// decide whether a failed delivery should be requeued.
func WithRetryable(fn func(error) bool) DescriptorOption {
	return func(d *Descriptor) { d.Retryable = fn }
}
