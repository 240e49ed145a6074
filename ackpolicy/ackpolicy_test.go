package ackpolicy

import (
	"context"
	"errors"
	"testing"

	driver "github.com/rabbitmq/amqp091-go"
	tdd "github.com/stretchr/testify/assert"

	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/broker"
)

type fakeAcker struct {
	acked    bool
	nacked   bool
	rejected bool
	requeue  bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error { f.acked = true; return nil }
func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}
func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	f.rejected = true
	f.requeue = requeue
	return nil
}

func delivery(acker driver.Acknowledger) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker}
}

func TestChainFirstClaimWins(t *testing.T) {
	assert := tdd.New(t)

	acker := &fakeAcker{}
	d := delivery(acker)
	b := &broker.Broker{}

	calledFirst, calledSecond := false, false
	chain := Chain{
		func(ctx context.Context, d amqp.Delivery, info DeliveryInfo, props amqp.Table, b *broker.Broker, cause error) bool {
			calledFirst = true
			return false
		},
		func(ctx context.Context, d amqp.Delivery, info DeliveryInfo, props amqp.Table, b *broker.Broker, cause error) bool {
			calledSecond = true
			_ = b.Reject(ctx, d, false)
			return true
		},
	}

	err := chain.Run(context.Background(), d, DeliveryInfo{}, nil, b, errors.New("boom"))
	assert.NoError(err)
	assert.True(calledFirst)
	assert.True(calledSecond)
	assert.True(acker.rejected)
	assert.False(acker.nacked)
}

func TestChainFallsBackToNackOnAllFailures(t *testing.T) {
	assert := tdd.New(t)

	acker := &fakeAcker{}
	d := delivery(acker)
	b := &broker.Broker{}

	var chain Chain
	err := chain.Run(context.Background(), d, DeliveryInfo{}, nil, b, errors.New("boom"))
	assert.NoError(err)
	assert.True(acker.nacked)
	assert.False(acker.requeue)
}

func TestRequeueOnMatchesPredicate(t *testing.T) {
	assert := tdd.New(t)

	acker := &fakeAcker{}
	d := delivery(acker)
	b := &broker.Broker{}

	transient := errors.New("transient")
	policy := RequeueOn(func(err error) bool { return errors.Is(err, transient) })

	claimed := policy(context.Background(), d, DeliveryInfo{}, nil, b, transient)
	assert.True(claimed)
	assert.True(acker.nacked)
	assert.True(acker.requeue)
}

func TestRequeueOnIgnoresNonMatchingError(t *testing.T) {
	assert := tdd.New(t)

	acker := &fakeAcker{}
	d := delivery(acker)
	b := &broker.Broker{}

	policy := RequeueOn(func(err error) bool { return false })
	claimed := policy(context.Background(), d, DeliveryInfo{}, nil, b, errors.New("other"))
	assert.False(claimed)
	assert.False(acker.nacked)
}

func TestDeadLetterOnRejectsWithoutRequeue(t *testing.T) {
	assert := tdd.New(t)

	acker := &fakeAcker{}
	d := delivery(acker)
	b := &broker.Broker{}

	poison := errors.New("poison")
	policy := DeadLetterOn(func(err error) bool { return errors.Is(err, poison) })

	claimed := policy(context.Background(), d, DeliveryInfo{}, nil, b, poison)
	assert.True(claimed)
	assert.True(acker.rejected)
	assert.False(acker.requeue)
}
