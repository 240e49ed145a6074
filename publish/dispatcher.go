package publish

import (
	"context"

	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/errors"
)

// Dispatcher offers a channel-based bulk-publish helper reusing one set
// of call options for many messages. It sends through the publisher's
// adapter with UnsafePush, and every message it sends still goes
// through the same property-merge rules as a direct Publish call.
type Dispatcher struct {
	p          *Publisher
	routingKey string
	call       *callOptions
	in         chan interface{}
	errCh      chan error
	done       chan struct{}
}

// NewDispatcher returns a Dispatcher sending every value pushed to
// Publish() to routingKey using p's exchange and opts.
func (p *Publisher) NewDispatcher(ctx context.Context, routingKey string, opts ...PublishOption) *Dispatcher {
	call := &callOptions{serializer: p.opts.Serializer}
	for _, opt := range opts {
		opt(call)
	}
	d := &Dispatcher{
		p:          p,
		routingKey: routingKey,
		call:       call,
		in:         make(chan interface{}),
		errCh:      make(chan error),
		done:       make(chan struct{}),
	}
	go d.loop(ctx)
	return d
}

// Publish returns the channel callers send values to for dispatch.
func (d *Dispatcher) Publish() chan<- interface{} {
	return d.in
}

// Errors returns publish failures for values sent through Publish().
func (d *Dispatcher) Errors() <-chan error {
	return d.errCh
}

// Done signals when the dispatcher has stopped processing.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case body, ok := <-d.in:
			if !ok {
				return
			}
			if err := d.publishOne(ctx, body); err != nil {
				select {
				case d.errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publishOne(ctx context.Context, body interface{}) error {
	if d.p.adapter == nil || !d.p.adapter.Active() {
		return errors.PublishError(errors.New("publish: no active connection"))
	}
	payload, err := d.call.serializer.Encode(body)
	if err != nil {
		return err
	}
	props := mergeProperties(d.call, d.p.opts.GlobalProperties, d.routingKey, d.call.serializer.ContentType())
	msg := buildMessage(props, d.call.serializer.ContentType(), payload)
	msgOpts := amqp.MessageOptions{
		Exchange:   d.p.opts.Exchange,
		RoutingKey: d.routingKey,
		Persistent: true,
	}
	if err := d.p.adapter.UnsafePush(msg, msgOpts); err != nil {
		return errors.PublishError(errors.Wrap(err, "dispatch publish"))
	}
	return nil
}
