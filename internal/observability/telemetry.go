package observability

import (
	"context"
	"time"

	"github.com/annel0/voxel-stream/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName имя трейсера конвейера
const InstrumentationName = "github.com/annel0/voxel-stream"

// InitTelemetry настраивает OTLP экспортер и возвращает TracerProvider конвейера.
// endpoint пустой = localhost:4318. Возвращает функцию shutdown, которую нужно вызвать при завершении.
func InitTelemetry(ctx context.Context, serviceName, endpoint string, logger *logging.Logger) (oteltrace.TracerProvider, func(context.Context) error, error) {
	var opts []otlptracehttp.Option
	if endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}

	// OTLP HTTP экспортер
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)

	// Глобальный провайдер нужен otelgin
	otel.SetTracerProvider(tp)
	logger.Info("📡 OpenTelemetry инициализирован (OTLP, service=%s)", serviceName)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return tp, shutdown, nil
}

// NoopTracerProvider провайдер без экспорта для тестов и выключенной телеметрии
func NoopTracerProvider() oteltrace.TracerProvider {
	return noop.NewTracerProvider()
}
