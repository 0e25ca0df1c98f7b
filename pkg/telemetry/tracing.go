// Package telemetry provides OpenTelemetry tracing for skillsync and the
// fire-and-forget reporting of sync events.
package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Sampler names accepted in Config.SamplerType
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// Config controls trace export
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP/HTTP collector host[:port]. When empty the
	// OTEL_EXPORTER_OTLP_* environment variables apply.
	Endpoint string
	// Insecure disables TLS towards Endpoint.
	Insecure bool
	// SamplerType is one of always, never or ratio. Empty means always.
	SamplerType  string
	SamplerRatio float64
}

func (c Config) exporterOptions() []otlptracehttp.Option {
	var opts []otlptracehttp.Option
	if c.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(c.Endpoint))
	}
	if c.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

// InitTracer installs a global tracer provider exporting spans over
// OTLP/HTTP. The returned shutdown flushes pending spans; it is a no-op when
// tracing is disabled.
func InitTracer(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	sampler, err := newSampler(cfg.SamplerType, cfg.SamplerRatio)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resource")
	}

	exporter, err := otlptracehttp.New(ctx, cfg.exporterOptions()...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create trace exporter")
	}

	provider := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter, trace.WithBatchTimeout(time.Second)),
		trace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		var errs *multierror.Error
		if err := provider.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "tracer provider shutdown"))
		}
		if err := exporter.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "trace exporter shutdown"))
		}
		return errs.ErrorOrNil()
	}, nil
}

// newSampler maps a sampler name to a sampler. Ratio sampling respects the
// parent's decision and clamps ratio into [0, 1].
func newSampler(name string, ratio float64) (trace.Sampler, error) {
	switch strings.ToLower(name) {
	case "", SamplerAlways:
		return trace.AlwaysSample(), nil
	case SamplerNever:
		return trace.NeverSample(), nil
	case SamplerRatio:
		if ratio < 0 {
			ratio = 0
		} else if ratio > 1 {
			ratio = 1
		}
		return trace.ParentBased(trace.TraceIDRatioBased(ratio)), nil
	default:
		return nil, errors.Errorf("unknown tracing sampler %q (expected always, never or ratio)", name)
	}
}
