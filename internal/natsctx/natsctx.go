// Package natsctx wraps NATS publish/subscribe with W3C trace propagation.
package natsctx

import (
	"context"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var propagator = propagation.TraceContext{}

// Publish injects traceparent into headers and publishes.
func Publish(ctx context.Context, nc *nats.Conn, subject string, data []byte) error {
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	return nc.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: hdr})
}

// Subscribe wraps nc.Subscribe and extracts trace context for each message,
// starting a consumer span.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(m *nats.Msg) {
		ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(m.Header))
		ctx, span := otel.Tracer("virus-scanner-nats").Start(ctx, "nats.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		handler(ctx, m)
	})
}
