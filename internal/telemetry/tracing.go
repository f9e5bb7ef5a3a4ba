package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const ServiceName = "parcelclaims-backend"

// Tracer is the tracer used for intake stage spans. It is a no-op until SetupOTel installs a provider.
func Tracer() trace.Tracer { return otel.Tracer("github.com/Armour007/parcelclaims-backend") }

// SetupOTel initializes OpenTelemetry tracing when enabled.
// Returns a shutdown func that should be deferred by the caller.
func SetupOTel(enabled bool, endpoint string, log logrus.FieldLogger) (func(context.Context) error, bool) {
	noop := func(context.Context) error { return nil }
	if !enabled {
		return noop, false
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	// Use HTTP exporter for minimal deps
	client := otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	exp, err := otlptrace.New(context.Background(), client)
	if err != nil {
		log.WithError(err).Warn("otel exporter init failed")
		return noop, false
	}
	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(ServiceName),
		),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, true
}
