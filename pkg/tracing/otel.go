// Copyright 2026 educhain-devs
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	// 创建 OTLP exporter
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartLedgerSpan 开始账本调用 span（op 如 register_institution、issue_certificate）
func StartLedgerSpan(ctx context.Context, op string, target string) (context.Context, trace.Span) {
	tracer := otel.Tracer("educhain")
	ctx, span := tracer.Start(ctx, "ledger."+op,
		trace.WithAttributes(
			attribute.String("ledger.op", op),
			attribute.String("ledger.target", target),
		),
	)
	return ctx, span
}

// StartReconcileSpan 开始对账 span（entity 为 institution 或 certificate）
func StartReconcileSpan(ctx context.Context, entity string, id string) (context.Context, trace.Span) {
	tracer := otel.Tracer("educhain")
	ctx, span := tracer.Start(ctx, "reconcile."+entity,
		trace.WithAttributes(
			attribute.String("reconcile.entity", entity),
			attribute.String("reconcile.id", id),
		),
	)
	return ctx, span
}
