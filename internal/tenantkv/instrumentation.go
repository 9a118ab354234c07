package tenantkv

import (
	"context"
	"time"

	"github.com/devrev/medadmin/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/devrev/medadmin/internal/tenantkv"

const (
	resultOK    = "ok"
	resultMiss  = "miss"
	resultError = "error"
)

type instrumentation struct {
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

// start opens a span for op and returns the function that closes it
func (i *instrumentation) start(ctx context.Context, op, tenantID string) (context.Context, func(result string, err error)) {
	begin := time.Now()

	var span trace.Span
	if i.tracer != nil {
		ctx, span = i.tracer.Start(ctx, "tenantkv."+op, trace.WithAttributes(
			attribute.String("tenantkv.operation", op),
			attribute.String("tenantkv.tenant_id", tenantID),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}

	return ctx, func(result string, err error) {
		if err != nil {
			result = resultError
			if i.tracer != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		if i.tracer != nil {
			span.SetAttributes(attribute.String("tenantkv.result", result))
			span.End()
		}
		if i.metrics != nil {
			i.metrics.RecordKVOperation(op, result, time.Since(begin))
			if err != nil {
				i.metrics.RecordKVError(op, errorKind(err))
			}
		}
	}
}
