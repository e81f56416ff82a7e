package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kadirpekel/tabula"

// Tracer returns the runtime tracer. Without an SDK installed by the
// embedder this is the otel no-op tracer, so instrumented paths cost
// nothing by default.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
