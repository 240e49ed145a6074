// Package channelbroker owns a single AMQP channel for the lifetime of
// one worker goroutine: the main topic exchange, the queues/bindings a
// worker consumes from, and the delayed-delivery wait-exchange scheme
// used to reschedule a message for later redelivery.
package channelbroker

import (
	"fmt"
	"strconv"
	"sync"

	driver "github.com/rabbitmq/amqp091-go"

	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/errors"
)

// preconditionFailed is the AMQP reply code the broker returns when a
// declare call conflicts with an existing entity's parameters.
const preconditionFailed = 406

// Options configure a ChannelBroker.
type Options struct {
	// Addr is the broker connection URI.
	Addr string

	// AmqpOptions are forwarded to amqp.NewConsumer (logger, TLS, name).
	AmqpOptions []amqp.Option

	// Exchange is the main topic exchange name.
	Exchange string

	// ExchangeType is the main exchange kind, usually "topic".
	ExchangeType string

	// ExchangeDurable marks the main exchange (and the wait exchanges
	// and queues declared alongside it) as durable.
	ExchangeDurable bool

	// Prefetch bounds the number of unacknowledged deliveries the
	// broker will push to this channel at once.
	Prefetch int
}

// ChannelBroker wraps one amqp.Consumer (one channel, one connection)
// and the topology state scoped to it.
type ChannelBroker struct {
	opts     Options
	consumer *amqp.Consumer

	mu            sync.Mutex
	waitExchanges map[string]string
	defaultWait   string
}

// Open connects a new channel broker and declares its main exchange.
func Open(opts Options) (*ChannelBroker, error) {
	if opts.Exchange == "" {
		return nil, errors.ConfigurationError(errors.New("channelbroker: exchange name is required"))
	}
	if opts.ExchangeType == "" {
		opts.ExchangeType = "topic"
	}

	aopts := append([]amqp.Option{}, opts.AmqpOptions...)
	aopts = append(aopts, amqp.WithPrefetch(opts.Prefetch, 0))

	consumer, err := amqp.NewConsumer(opts.Addr, aopts...)
	if err != nil {
		return nil, errors.ConnectionError(errors.Wrap(err, "open channel broker connection"))
	}
	<-consumer.Ready()

	cb := &ChannelBroker{
		opts:          opts,
		consumer:      consumer,
		waitExchanges: make(map[string]string),
	}
	if err := cb.declareMainExchange(); err != nil {
		_ = consumer.Close()
		return nil, err
	}
	return cb, nil
}

// Consumer exposes the underlying consumer for queue/binding
// declarations and subscriptions.
func (cb *ChannelBroker) Consumer() *amqp.Consumer {
	return cb.consumer
}

// Active reports whether the underlying connection is currently usable.
func (cb *ChannelBroker) Active() bool {
	return cb.consumer.Active()
}

func (cb *ChannelBroker) declareMainExchange() error {
	err := cb.consumer.AddExchange(amqp.Exchange{
		Name:    cb.opts.Exchange,
		Kind:    cb.opts.ExchangeType,
		Durable: cb.opts.ExchangeDurable,
	})
	return wrapDeclareError(err, "declare main exchange")
}

// WaitExchange implements declare-on-demand delayed delivery: the first
// call for a given millisecond-suffix expiration declares a fanout wait
// exchange plus its bound, TTL-expiring queue (dead-lettering back to
// the main exchange), memoizes the pair, and every subsequent call with
// the same expiration reuses it. An empty expiration addresses the
// single default wait exchange used when no per-message delay is set.
func (cb *ChannelBroker) WaitExchange(expirationMillis string) (string, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if expirationMillis == "" {
		if cb.defaultWait != "" {
			return cb.defaultWait, nil
		}
		name := fmt.Sprintf("%s.wait", cb.opts.Exchange)
		if err := cb.declareWaitExchange(name, ""); err != nil {
			return "", err
		}
		cb.defaultWait = name
		return name, nil
	}

	if name, ok := cb.waitExchanges[expirationMillis]; ok {
		return name, nil
	}
	name := fmt.Sprintf("%s.wait.%s", cb.opts.Exchange, expirationMillis)
	if err := cb.declareWaitExchange(name, expirationMillis); err != nil {
		return "", err
	}
	cb.waitExchanges[expirationMillis] = name
	return name, nil
}

func (cb *ChannelBroker) declareWaitExchange(name, expirationMillis string) error {
	if err := cb.consumer.AddExchange(amqp.Exchange{
		Name:    name,
		Kind:    "fanout",
		Durable: cb.opts.ExchangeDurable,
	}); err != nil {
		return wrapDeclareError(err, "declare wait exchange")
	}

	args := map[string]interface{}{
		"x-dead-letter-exchange": cb.opts.Exchange,
	}
	if expirationMillis != "" {
		ttl, err := strconv.ParseInt(expirationMillis, 10, 64)
		if err != nil {
			return errors.ConfigurationError(errors.Wrapf(err, "parse wait queue expiration %q", expirationMillis))
		}
		args["x-message-ttl"] = ttl
	}
	queueName, err := cb.consumer.AddQueue(amqp.Queue{
		Name:      name,
		Durable:   cb.opts.ExchangeDurable,
		Arguments: args,
	})
	if err != nil {
		return wrapDeclareError(err, "declare wait queue")
	}

	if err := cb.consumer.AddBinding(amqp.Binding{
		Exchange: name,
		Queue:    queueName,
	}); err != nil {
		return wrapDeclareError(err, "bind wait queue")
	}
	return nil
}

// Reconnect discards any cached wait-exchange state and redeclares the
// main exchange against the (now reconnected) underlying channel. The
// reconnection of the channel itself is handled transparently by the
// wrapped amqp.Consumer; this only re-primes ChannelBroker's own cache.
func (cb *ChannelBroker) Reconnect() error {
	cb.mu.Lock()
	cb.waitExchanges = make(map[string]string)
	cb.defaultWait = ""
	cb.mu.Unlock()
	return cb.declareMainExchange()
}

// Close releases the underlying channel and connection.
func (cb *ChannelBroker) Close() error {
	return cb.consumer.Close()
}

func wrapDeclareError(err error, action string) error {
	if err == nil {
		return nil
	}
	var ae *driver.Error
	if errors.As(err, &ae) && ae.Code == preconditionFailed {
		return errors.PreconditionError(errors.Wrapf(err, "%s: topology mismatch", action))
	}
	return errors.ConnectionError(errors.Wrap(err, action))
}
