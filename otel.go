package gzblock

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-faster/gzblock/otelgz"
)

const (
	directionDecode = "decode"
	directionEncode = "encode"
)

type instruments struct {
	tracer trace.Tracer
	blocks metric.Int64Counter
	bytes  metric.Int64Counter
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(otelgz.Name,
		metric.WithInstrumentationVersion(otelgz.SemVersion()),
	)
	blocks, err := meter.Int64Counter("gzblock.blocks",
		metric.WithDescription("Number of processed blocks"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "blocks")
	}
	bytes, err := meter.Int64Counter("gzblock.bytes",
		metric.WithDescription("Number of processed uncompressed bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "bytes")
	}
	return &instruments{
		tracer: tp.Tracer(otelgz.Name,
			trace.WithInstrumentationVersion(otelgz.SemVersion()),
		),
		blocks: blocks,
		bytes:  bytes,
	}, nil
}

func (i *instruments) block(ctx context.Context, direction string, size int64) {
	attrs := metric.WithAttributes(otelgz.Direction(direction))
	i.blocks.Add(ctx, 1, attrs)
	i.bytes.Add(ctx, size, attrs)
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code, ok := AsError(err); ok {
			span.SetAttributes(otelgz.ErrorCode(code.String()))
		}
	}
	span.End()
}
