package telemetry

import (
	"go.opentelemetry.io/otel"
	apitrace "go.opentelemetry.io/otel/trace"
)

func Tracer(name string) apitrace.Tracer {
	return otel.Tracer(name)
}
