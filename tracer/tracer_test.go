package tracer

import (
	"context"
	"testing"

	tdd "github.com/stretchr/testify/assert"

	"github.com/warrenq/warren/amqp"
)

type fakeContext struct {
	ctx context.Context
}

func (f fakeContext) Ctx() context.Context { return f.ctx }
func (f fakeContext) WithCtx(c context.Context) Context {
	return fakeContext{ctx: c}
}
func (f fakeContext) Delivery() amqp.Delivery     { return amqp.Delivery{} }
func (f fakeContext) Decode(v interface{}) error { return nil }

func TestChainOrdering(t *testing.T) {
	assert := tdd.New(t)

	var order []string
	trace := func(name string) Tracer {
		return func(h Handler) Handler {
			return HandlerFunc(func(ctx Context) error {
				order = append(order, name)
				return h.Handle(ctx)
			})
		}
	}

	h := Chain(trace("outer"), trace("inner"))(HandlerFunc(func(ctx Context) error {
		order = append(order, "handler")
		return nil
	}))

	err := h.Handle(fakeContext{ctx: context.Background()})
	assert.NoError(err)
	assert.Equal([]string{"outer", "inner", "handler"}, order)
}

func TestNoOpReturnsSameHandler(t *testing.T) {
	assert := tdd.New(t)

	called := false
	h := HandlerFunc(func(ctx Context) error { called = true; return nil })
	wrapped := NoOp(h)
	assert.NoError(wrapped.Handle(fakeContext{ctx: context.Background()}))
	assert.True(called)
}
