// Package broker owns the process-wide publishing connection, brokers
// the creation of per-worker-thread consuming channels, and centralizes
// queue/binding declaration, delivery acknowledgement and graceful
// shutdown.
package broker

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/channelbroker"
	"github.com/warrenq/warren/config"
	"github.com/warrenq/warren/errors"
	xlog "github.com/warrenq/warren/log"
	"github.com/warrenq/warren/metrics"
	"github.com/warrenq/warren/mgmtapi"
)

// watchReconnects counts every Ready notification after the initial
// connect as a reconnection, exposed via metrics.ReconnectsTotal.
func watchReconnects(p *amqp.Publisher) {
	for {
		select {
		case _, ok := <-p.Pause():
			if !ok {
				return
			}
		case _, ok := <-p.Ready():
			if !ok {
				return
			}
			metrics.ReconnectsTotal.Inc()
		}
	}
}

var namespaceSanitize = regexp.MustCompile(`[^-:.\w]+`)

// Options configure a Broker.
type Options struct {
	Logger            xlog.Logger
	TLS               *config.TLSSettings
	Exchange          string
	ExchangeType      string
	ExchangeDurable   bool
	Prefetch          int
	Namespace         string
	ManagementAPI     *mgmtapi.Client
	GracefulExit      time.Duration
}

// Broker owns the publishing connection and the management-API client
// (when configured), and constructs per-worker-thread ChannelBrokers on
// demand.
type Broker struct {
	rawAddr   string
	addr      config.BrokerAddress
	opts      Options
	log       xlog.Logger
	main      *channelbroker.ChannelBroker
	publisher *amqp.Publisher
	mgmt      *mgmtapi.Client

	mu       sync.Mutex
	channels []*channelbroker.ChannelBroker
}

// Dial parses addr, opens the main channel broker (which declares the
// exchange) and the publishing connection, and optionally wires a
// management API client.
func Dial(ctx context.Context, addr string, opts Options) (*Broker, error) {
	parsed, err := config.ParseBrokerURI(addr)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = xlog.Discard()
	}
	if opts.GracefulExit == 0 {
		opts.GracefulExit = 10 * time.Second
	}

	aopts, err := amqpOptions(parsed, opts)
	if err != nil {
		return nil, err
	}

	main, err := channelbroker.Open(channelbroker.Options{
		Addr:            addr,
		AmqpOptions:     aopts,
		Exchange:        opts.Exchange,
		ExchangeType:    opts.ExchangeType,
		ExchangeDurable: opts.ExchangeDurable,
		Prefetch:        opts.Prefetch,
	})
	if err != nil {
		return nil, err
	}

	publisher, err := amqp.NewPublisher(addr, aopts...)
	if err != nil {
		_ = main.Close()
		return nil, errors.ConnectionError(errors.Wrap(err, "open publisher connection"))
	}
	<-publisher.Ready()
	go watchReconnects(publisher)

	b := &Broker{
		rawAddr:   addr,
		addr:      parsed,
		opts:      opts,
		log:       opts.Logger,
		main:      main,
		publisher: publisher,
		mgmt:      opts.ManagementAPI,
	}
	return b, nil
}

func amqpOptions(addr config.BrokerAddress, opts Options) ([]amqp.Option, error) {
	var aopts []amqp.Option
	if opts.Logger != nil {
		aopts = append(aopts, amqp.WithLogger(opts.Logger))
	}
	if addr.TLS() && opts.TLS != nil {
		conf, err := opts.TLS.Expand()
		if err != nil {
			return nil, err
		}
		if conf != nil {
			aopts = append(aopts, amqp.WithTLS(conf))
		}
	}
	return aopts, nil
}

// Connect runs fn, guaranteeing Stop is called on every exit path.
func (b *Broker) Connect(ctx context.Context, fn func(ctx context.Context) error) error {
	defer func() { _ = b.Stop(ctx) }()
	return fn(ctx)
}

// Publisher exposes the adapted publisher facade for publish.Publisher.
func (b *Broker) Publisher() *amqp.Publisher {
	return b.publisher
}

// MainChannel exposes the channel broker used for declaring the shared
// exchange and wait-exchange scheme.
func (b *Broker) MainChannel() *channelbroker.ChannelBroker {
	return b.main
}

// ManagementAPI exposes the configured management API client, if any.
func (b *Broker) ManagementAPI() *mgmtapi.Client {
	return b.mgmt
}

// NewWorkerChannel opens an independent channel broker for exclusive
// use by a single subscription goroutine; never share the result across
// goroutines (spec §3's single-owner-channel invariant).
func (b *Broker) NewWorkerChannel(ctx context.Context) (*channelbroker.ChannelBroker, error) {
	_ = ctx
	aopts, err := amqpOptions(b.addr, b.opts)
	if err != nil {
		return nil, err
	}
	cb, err := channelbroker.Open(channelbroker.Options{
		Addr:            b.rawAddr,
		AmqpOptions:     aopts,
		Exchange:        b.opts.Exchange,
		ExchangeType:    b.opts.ExchangeType,
		ExchangeDurable: b.opts.ExchangeDurable,
		Prefetch:        b.opts.Prefetch,
	})
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.channels = append(b.channels, cb)
	b.mu.Unlock()
	return cb, nil
}

// Namespace normalizes name under the broker's configured namespace
// prefix, lower-casing it and stripping characters outside [-:.\w].
func (b *Broker) Namespace(name string) string {
	if b.opts.Namespace == "" {
		return name
	}
	prefix := namespaceSanitize.ReplaceAllString(strings.ToLower(b.opts.Namespace), "")
	return prefix + ":" + name
}

// Queue declares a durable, namespaced queue on cb.
func (b *Broker) Queue(cb *channelbroker.ChannelBroker, name string, args amqp.Table) (string, error) {
	queueName := b.Namespace(name)
	declared, err := cb.Consumer().AddQueue(amqp.Queue{
		Name:      queueName,
		Durable:   true,
		Arguments: args,
	})
	if err != nil {
		return "", errors.ConnectionError(errors.Wrap(err, "declare queue"))
	}
	return declared, nil
}

// BindQueue reconciles queue's bindings to the main exchange against
// routingKeys. With a configured management API client this removes
// stale bindings too; otherwise it only ever adds.
func (b *Broker) BindQueue(ctx context.Context, cb *channelbroker.ChannelBroker, queue string, routingKeys []string) error {
	toBind := routingKeys
	var toUnbind []string

	if b.mgmt != nil {
		existing, err := b.mgmt.Bindings(ctx, queue)
		if err != nil {
			return errors.ConnectionError(errors.Wrap(err, "fetch existing bindings"))
		}
		toBind, toUnbind = mgmtapi.RoutingKeyDiff(existing, b.opts.Exchange, routingKeys)
	}

	for _, rk := range toBind {
		if err := cb.Consumer().AddBinding(amqp.Binding{
			Exchange:   b.opts.Exchange,
			Queue:      queue,
			RoutingKey: []string{rk},
		}); err != nil {
			return errors.ConnectionError(errors.Wrap(err, "bind queue"))
		}
	}
	for _, rk := range toUnbind {
		b.log.WithFields(xlog.Fields{"queue": queue, "routing_key": rk}).Debug("unbinding stale routing key")
		if err := cb.Consumer().RemoveBinding(b.opts.Exchange, queue, rk, nil); err != nil {
			return errors.ConnectionError(errors.Wrap(err, "unbind queue"))
		}
	}
	return nil
}

// Ack acknowledges a single delivery on its owning channel.
func (b *Broker) Ack(ctx context.Context, d amqp.Delivery) error {
	if err := d.Ack(false); err != nil {
		return errors.ConnectionError(errors.Wrap(err, "ack delivery"))
	}
	return nil
}

// Nack negatively acknowledges a single delivery, optionally requeueing it.
func (b *Broker) Nack(ctx context.Context, d amqp.Delivery, requeue bool) error {
	if err := d.Nack(false, requeue); err != nil {
		return errors.ConnectionError(errors.Wrap(err, "nack delivery"))
	}
	return nil
}

// Reject rejects a single delivery, optionally requeueing it.
func (b *Broker) Reject(ctx context.Context, d amqp.Delivery, requeue bool) error {
	if err := d.Reject(requeue); err != nil {
		return errors.ConnectionError(errors.Wrap(err, "reject delivery"))
	}
	return nil
}

// Stop drains in-flight work up to GracefulExit and closes every
// channel and the publishing connection.
func (b *Broker) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.mu.Lock()
		for _, cb := range b.channels {
			_ = cb.Close()
		}
		b.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(b.opts.GracefulExit):
		b.log.Warning("graceful exit timeout reached, closing connections anyway")
	}

	_ = b.publisher.Close()
	return b.main.Close()
}
