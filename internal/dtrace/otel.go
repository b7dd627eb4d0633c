// Package dtrace wraps the OpenTelemetry tracing API
// so that the rest of the module only imports one tracing package.
package dtrace

import (
	"fmt"

	otelattr "go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	otpnoop "go.opentelemetry.io/otel/trace/noop"
)

type TracerProvider = oteltrace.TracerProvider

type Tracer = oteltrace.Tracer

type Span = oteltrace.Span

type KeyValueAttr = otelattr.KeyValue

// NopTracerProvider returns the otel no-op tracer provider.
// This is intended to use as a fallback when a nil tracer provider is given.
func NopTracerProvider() TracerProvider {
	return otpnoop.NewTracerProvider()
}

// WithAttributes is an alias to [oteltrace.WithAttributes]
// to allow consumers to only reference the dtrace package.
func WithAttributes(attrs ...KeyValueAttr) oteltrace.SpanStartEventOption {
	return oteltrace.WithAttributes(attrs...)
}

// LazyHexAttr returns an attribute that uses fmt.Sprintf("%x", val)
// but only evaluates the Sprintf call if the span is sampled.
func LazyHexAttr(key string, val any) KeyValueAttr {
	return otelattr.Stringer(key, lazyHex{val: val})
}

type lazyHex struct {
	val any
}

func (h lazyHex) String() string {
	return fmt.Sprintf("%x", h.val)
}

// SpanError sets the given span to error status,
// with detail from err.Error().
func SpanError(span oteltrace.Span, err error) {
	span.SetStatus(otelcodes.Error, err.Error())
}

// ErrorAttr returns an attribute with the key "err"
// and the lazily evaluated value of err's Error() method.
func ErrorAttr(err error) KeyValueAttr {
	return otelattr.Stringer("err", errStringer{err: err})
}

type errStringer struct {
	err error
}

func (e errStringer) String() string {
	return e.err.Error()
}

func ChunkIndexAttr(idx int) KeyValueAttr {
	return otelattr.Int("fwchunk.chunk.index", idx)
}

func ChunkLenAttr(n int) KeyValueAttr {
	return otelattr.Int("fwchunk.chunk.len", n)
}

// RemainingAttr records how many chunks are still missing.
func RemainingAttr(n int) KeyValueAttr {
	return otelattr.Int("fwchunk.remaining", n)
}

// RootAttr records a Merkle root, hex-encoded only when the span is sampled.
func RootAttr(root []byte) KeyValueAttr {
	return LazyHexAttr("fwchunk.root", root)
}
