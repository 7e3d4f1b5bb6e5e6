/*
 * Copyright 2026 The Fleet Gateway Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
	otelTrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// TracingConfig holds the configuration for OpenTelemetry tracing setup.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Debug          bool
	Logger         Logger
	OTel           *OTelConfig
}

// InitializeTracing sets up OpenTelemetry tracing and returns a traced context
// with a root span. Call once at process startup; the caller owns shutdown of
// the returned TracerProvider and the root span.
func InitializeTracing(ctx context.Context, config TracingConfig) (*trace.TracerProvider, context.Context, otelTrace.Span, error) {
	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}

	if config.ServiceVersion == "" {
		config.ServiceVersion = defaultServiceVersion
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, ctx, nil, fmt.Errorf("failed to create OpenTelemetry resource: %w", err)
	}

	var tpOptions []trace.TracerProviderOption

	tpOptions = append(tpOptions, trace.WithResource(res))

	if config.OTel != nil && config.OTel.Enabled && config.OTel.Endpoint != "" {
		exporter, err := createTraceExporter(ctx, config.OTel)
		if err != nil {
			return nil, ctx, nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}

		bsp := trace.NewBatchSpanProcessor(exporter)
		tpOptions = append(tpOptions, trace.WithSpanProcessor(bsp))
	}

	tp := trace.NewTracerProvider(tpOptions...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := otel.Tracer(config.ServiceName)

	spanName := config.ServiceName + ".main"
	ctx, rootSpan := tracer.Start(ctx, spanName)

	if config.Debug {
		logTracingInitialization(config, rootSpan)
	}

	return tp, ctx, rootSpan, nil
}

// GetTracer returns a tracer for the given name. InitializeTracing must run first.
func GetTracer(name string) otelTrace.Tracer {
	return otel.Tracer(name)
}

func logTracingInitialization(config TracingConfig, span otelTrace.Span) {
	spanCtx := span.SpanContext()

	if !spanCtx.IsValid() {
		if config.Logger != nil {
			config.Logger.Warn().
				Str("service", config.ServiceName).
				Msg("span context is not valid")
		} else {
			fmt.Printf("DEBUG: span context is not valid for %s\n", config.ServiceName)
		}

		return
	}

	if config.Logger != nil {
		config.Logger.Debug().
			Str("service", config.ServiceName).
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String()).
			Msg("initialized tracing")
	} else {
		fmt.Printf("DEBUG: initialized tracing for %s with trace_id=%s span_id=%s\n",
			config.ServiceName, spanCtx.TraceID().String(), spanCtx.SpanID().String())
	}
}

func createTraceExporter(ctx context.Context, config *OTelConfig) (trace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
	}

	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else if config.TLS != nil {
		tlsConfig, err := setupTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to setup TLS configuration: %w", err)
		}

		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	}

	if len(config.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(config.Headers))
	}

	return otlptracegrpc.New(ctx, opts...)
}
