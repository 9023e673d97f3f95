// ABOUTME: OpenTelemetry middleware spanning each turn and each outbound send
// ABOUTME: Records turn errors on the span and marks it failed

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/pipeline"
	"github.com/2389/coven-botkit/internal/turn"
)

const instrumentationName = "github.com/2389/coven-botkit"

// Tracing is middleware creating spans for turns.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing creates the middleware. A nil provider uses the global one.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{tracer: tp.Tracer(instrumentationName)}
}

var _ pipeline.Middleware = (*Tracing)(nil)

// OnTurn wraps the rest of the pipeline in a span.
func (t *Tracing) OnTurn(ctx context.Context, tc *turn.Context, next pipeline.Next) error {
	a := tc.Activity()
	attrs := []attribute.KeyValue{
		attribute.String("botkit.channel_id", a.ChannelID),
		attribute.String("botkit.activity.type", a.Type),
		attribute.String("botkit.activity.id", a.ID),
	}
	if a.Conversation != nil {
		attrs = append(attrs, attribute.String("botkit.conversation_id", a.Conversation.ID))
	}

	ctx, span := t.tracer.Start(ctx, "turn "+a.Type,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	tc.OnSendActivities(func(ctx context.Context, tc *turn.Context, activities []*activity.Activity, next turn.SendNext) ([]activity.ResourceResponse, error) {
		ctx, send := t.tracer.Start(ctx, "send activities",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.Int("botkit.activity.count", len(activities))),
		)
		defer send.End()

		responses, err := next(ctx)
		if err != nil {
			send.RecordError(err)
			send.SetStatus(codes.Error, err.Error())
		}
		return responses, err
	})

	err := next(ctx)
	span.SetAttributes(attribute.Bool("botkit.responded", tc.Responded()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
