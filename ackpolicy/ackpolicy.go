// Package ackpolicy implements the chain-of-responsibility used to
// decide what happens to a delivery once its handler has returned an
// error: requeue, dead-letter, or plain reject.
package ackpolicy

import (
	"context"

	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/broker"
)

// DeliveryInfo carries the delivery identifiers a Policy needs without
// forcing it to hold the full amqp.Delivery value.
type DeliveryInfo struct {
	Queue       string
	RoutingKey  string
	ConsumerTag string
	Redelivered bool
}

// Policy inspects cause and decides whether it claims responsibility
// for acknowledging the delivery. A policy that returns claimed=false
// defers to the next policy in the chain.
type Policy func(ctx context.Context, d amqp.Delivery, info DeliveryInfo, props amqp.Table, b *broker.Broker, cause error) (claimed bool)

// Chain is walked in order; the first policy to claim the delivery
// settles it. waiter.Waiter appends NackOnAllFailures to every chain
// that does not already end with it, so that no delivery is ever left
// unacknowledged.
type Chain []Policy

// Run walks the chain and settles d via the first claiming policy. If
// no policy claims it, NackOnAllFailures runs as the final fallback.
func (c Chain) Run(ctx context.Context, d amqp.Delivery, info DeliveryInfo, props amqp.Table, b *broker.Broker, cause error) error {
	for _, p := range c {
		if p(ctx, d, info, props, b, cause) {
			return nil
		}
	}
	return settleNack(ctx, d, b, false)
}

// NackOnAllFailures unconditionally nacks the delivery without
// requeueing it. It always claims, so it is safe to use as a chain's
// terminal policy.
func NackOnAllFailures(ctx context.Context, d amqp.Delivery, _ DeliveryInfo, _ amqp.Table, b *broker.Broker, _ error) bool {
	_ = settleNack(ctx, d, b, false)
	return true
}

// RequeueOn claims and nacks-with-requeue deliveries whose cause
// matches predicate, leaving every other error to the rest of the chain.
func RequeueOn(predicate func(error) bool) Policy {
	return func(ctx context.Context, d amqp.Delivery, _ DeliveryInfo, _ amqp.Table, b *broker.Broker, cause error) bool {
		if !predicate(cause) {
			return false
		}
		_ = settleNack(ctx, d, b, true)
		return true
	}
}

// DeadLetterOn claims and rejects (without requeue) deliveries whose
// cause matches predicate, relying on a configured dead-letter exchange
// to capture the message — the same x-dead-letter-exchange mechanism
// the wait-exchange scheme uses.
func DeadLetterOn(predicate func(error) bool) Policy {
	return func(ctx context.Context, d amqp.Delivery, _ DeliveryInfo, _ amqp.Table, b *broker.Broker, cause error) bool {
		if !predicate(cause) {
			return false
		}
		_ = b.Reject(ctx, d, false)
		return true
	}
}

func settleNack(ctx context.Context, d amqp.Delivery, b *broker.Broker, requeue bool) error {
	return b.Nack(ctx, d, requeue)
}
