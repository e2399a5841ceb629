// Package otelgz provides OpenTelemetry attributes for gzblock.
package otelgz

import (
	"go.opentelemetry.io/otel/attribute"
)

// Name of instrumentation.
const Name = "github.com/go-faster/gzblock"

const (
	BlocksKey    = attribute.Key("gzblock.blocks")
	WorkersKey   = attribute.Key("gzblock.workers")
	SizeKey      = attribute.Key("gzblock.size")
	HeaderLenKey = attribute.Key("gzblock.header.len")
	DirectionKey = attribute.Key("gzblock.direction")
	ErrorCodeKey = attribute.Key("gzblock.error.code")
)

// Blocks attribute.
func Blocks(v int) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   BlocksKey,
		Value: attribute.IntValue(v),
	}
}

// Workers attribute.
func Workers(v int) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   WorkersKey,
		Value: attribute.IntValue(v),
	}
}

// Size attribute, uncompressed bytes.
func Size(v int64) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   SizeKey,
		Value: attribute.Int64Value(v),
	}
}

// HeaderLen attribute.
func HeaderLen(v int) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   HeaderLenKey,
		Value: attribute.IntValue(v),
	}
}

// Direction attribute, "decode" or "encode".
func Direction(v string) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   DirectionKey,
		Value: attribute.StringValue(v),
	}
}

// ErrorCode attribute.
func ErrorCode(v string) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   ErrorCodeKey,
		Value: attribute.StringValue(v),
	}
}
