package tracer

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OTel returns a Tracer that wraps each handler invocation in a span
// named name, recording the outcome as the span status. name
// conventionally identifies the consumer descriptor being traced.
func OTel(name string) Tracer {
	tr := otel.Tracer("github.com/warrenq/warren/tracer")
	return func(h Handler) Handler {
		return HandlerFunc(func(ctx Context) error {
			spanCtx, span := tr.Start(ctx.Ctx(), name)
			defer span.End()

			d := ctx.Delivery()
			span.SetAttributes(
				attribute.String("messaging.destination", d.Exchange),
				attribute.String("messaging.rabbitmq.routing_key", d.RoutingKey),
				attribute.Bool("messaging.redelivered", d.Redelivered),
			)

			err := h.Handle(ctx.WithCtx(spanCtx))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			span.SetStatus(codes.Ok, "")
			return nil
		})
	}
}
