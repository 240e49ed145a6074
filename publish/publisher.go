// Package publish builds outgoing messages on top of amqp.Publisher,
// applying the framework's property-merge rules and optional
// delayed-delivery semantics.
package publish

import (
	"context"
	"strconv"
	"time"

	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/channelbroker"
	"github.com/warrenq/warren/errors"
	"github.com/warrenq/warren/metrics"
	"github.com/warrenq/warren/serializer"
)

// GlobalProperties returns a set of AMQP message properties applied to
// every outgoing message, evaluated once per Publish call so
// time-varying values (request ids, trace context) can be included.
type GlobalProperties func() amqp.Table

// Options configures a Publisher.
type Options struct {
	Exchange         string
	Serializer       serializer.Serializer
	GlobalProperties GlobalProperties
	ConfirmTimeout   time.Duration
	ForceConfirms    bool
}

// Publisher builds and sends outgoing messages through an
// *amqp.Publisher, merging properties in the fixed order the framework
// requires and defaulting MessageId/Timestamp.
type Publisher struct {
	adapter *amqp.Publisher
	wait    *channelbroker.ChannelBroker
	opts    Options
}

// New returns a Publisher sending through adapter to opts.Exchange. wait,
// when non-nil, is consulted by PublishWait to resolve a per-expiration
// wait exchange.
func New(adapter *amqp.Publisher, wait *channelbroker.ChannelBroker, opts Options) *Publisher {
	if opts.Serializer == nil {
		opts.Serializer = serializer.Default()
	}
	if opts.ConfirmTimeout == 0 {
		opts.ConfirmTimeout = 10 * time.Second
	}
	return &Publisher{adapter: adapter, wait: wait, opts: opts}
}

// PublishOption adjusts a single Publish/PublishWait call.
type PublishOption func(*callOptions)

type callOptions struct {
	serializer serializer.Serializer
	properties amqp.Table
	mandatory  bool
}

// WithSerializer overrides the publisher's default serializer for this call.
func WithSerializer(s serializer.Serializer) PublishOption {
	return func(c *callOptions) { c.serializer = s }
}

// WithProperties sets caller-supplied message properties for this call,
// merged ahead of the publisher's global properties.
func WithProperties(props amqp.Table) PublishOption {
	return func(c *callOptions) { c.properties = props }
}

// WithMandatory marks the message mandatory: the broker returns it if
// no queue is bound matching the routing key.
func WithMandatory() PublishOption {
	return func(c *callOptions) { c.mandatory = true }
}

// Publish encodes body and sends it to the publisher's configured
// exchange under routingKey. Property merge order is fixed:
// {persistent:true} -> caller properties -> global properties ->
// non-overridable {routing_key, timestamp, content_type}.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body interface{}, opts ...PublishOption) error {
	start := time.Now()
	defer func() {
		metrics.PublishLatency.WithLabelValues(p.opts.Exchange).Observe(time.Since(start).Seconds())
	}()

	if p.adapter == nil || !p.adapter.Active() {
		return errors.PublishError(errors.New("publish: no active connection"))
	}

	call := &callOptions{serializer: p.opts.Serializer}
	for _, opt := range opts {
		opt(call)
	}

	payload, err := call.serializer.Encode(body)
	if err != nil {
		return err
	}

	props := mergeProperties(call, p.opts.GlobalProperties, routingKey, call.serializer.ContentType())
	msg := buildMessage(props, call.serializer.ContentType(), payload)

	msgOpts := amqp.MessageOptions{
		Exchange:   p.opts.Exchange,
		RoutingKey: routingKey,
		Mandatory:  call.mandatory,
		Persistent: true,
	}

	if p.opts.ForceConfirms {
		confirmed, err := p.adapter.Push(msg, msgOpts)
		if err != nil {
			return errors.PublishError(errors.Wrap(err, "publish with confirm"))
		}
		if !confirmed {
			return errors.PublishError(errors.New("publish: negative confirm from broker"))
		}
		return nil
	}
	if err := p.adapter.UnsafePush(msg, msgOpts); err != nil {
		return errors.PublishError(errors.Wrap(err, "publish"))
	}
	return nil
}

// PublishWait publishes body so it is only delivered to the main
// exchange after expiration elapses, via the wait-exchange scheme
// (channelbroker.WaitExchange, declared on demand).
func (p *Publisher) PublishWait(ctx context.Context, routingKey string, body interface{}, expiration time.Duration, opts ...PublishOption) error {
	if p.wait == nil {
		return errors.ConfigurationError(errors.New("publish: no wait-exchange channel configured"))
	}
	expirationMillis := strconv.FormatInt(expiration.Milliseconds(), 10)
	waitExchange, err := p.wait.WaitExchange(expirationMillis)
	if err != nil {
		return err
	}

	call := &callOptions{serializer: p.opts.Serializer}
	for _, opt := range opts {
		opt(call)
	}
	payload, err := call.serializer.Encode(body)
	if err != nil {
		return err
	}
	props := mergeProperties(call, p.opts.GlobalProperties, routingKey, call.serializer.ContentType())
	msg := buildMessage(props, call.serializer.ContentType(), payload)
	// Set alongside the wait queue's own x-message-ttl so the message
	// still expires and dead-letters correctly even if it ends up on a
	// wait queue declared without a matching queue-level TTL (the
	// default, suffix-less wait exchange).
	msg.Expiration = expirationMillis

	msgOpts := amqp.MessageOptions{
		Exchange:   waitExchange,
		RoutingKey: routingKey,
		Persistent: true,
	}
	if err := p.adapter.UnsafePush(msg, msgOpts); err != nil {
		return errors.PublishError(errors.Wrap(err, "publish delayed message"))
	}
	return nil
}

// mergeProperties applies the fixed merge order: {persistent:true} ->
// caller properties -> global properties -> non-overridable keys.
func mergeProperties(call *callOptions, global GlobalProperties, routingKey, contentType string) amqp.Table {
	out := amqp.Table{"persistent": true}
	for k, v := range call.properties {
		out[k] = v
	}
	if global != nil {
		for k, v := range global() {
			out[k] = v
		}
	}
	out["routing_key"] = routingKey
	out["timestamp"] = time.Now().Unix()
	out["content_type"] = contentType
	return out
}

// wellKnown properties are consumed into their own Publishing field
// instead of being carried in the message's opaque Headers table.
var wellKnown = map[string]bool{
	"persistent":   true,
	"routing_key":  true,
	"timestamp":    true,
	"content_type": true,
	"message_id":   true,
}

// buildMessage turns the merged property map into an amqp.Message.
// MessageId/Timestamp defaulting is delegated to amqp.Producer, the
// same wrapper the adapter facade already ships for that purpose; an
// explicit message_id property still wins over the producer's
// randomly-generated one.
func buildMessage(props amqp.Table, contentType string, body []byte) amqp.Message {
	headers := amqp.Table{}
	for k, v := range props {
		if !wellKnown[k] {
			headers[k] = v
		}
	}

	producer := amqp.Producer{ContentType: contentType, SetID: true, SetTime: true}
	msg := producer.Message(body)
	msg.Headers = headers

	if id, ok := props["message_id"].(string); ok && id != "" {
		msg.MessageId = id
	}
	return msg
}
