// Package metrics installs the global OpenTelemetry meter provider and
// serves its Prometheus view.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/arbitrage-detector/internal/logger"
)

// Config selects the metric readers. Prometheus and OTLP may both be on.
type Config struct {
	ServiceName  string
	Prometheus   bool
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	Insecure     bool
}

// Provider owns the meter provider and the Prometheus registry it feeds.
type Provider struct {
	mp       *sdkmetric.MeterProvider
	registry *promclient.Registry
}

// NewProvider builds the readers for cfg and installs the provider globally.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{}

	var opts []sdkmetric.Option
	if cfg.Prometheus {
		p.registry = promclient.NewRegistry()
		exp, err := prometheus.New(prometheus.WithRegisterer(p.registry))
		if err != nil {
			return nil, fmt.Errorf("metrics: prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exp))
	}

	if cfg.OTLPEndpoint != "" {
		grpcOpts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders),
		}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("metrics: otlp exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	opts = append(opts, sdkmetric.WithResource(
		resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName)),
	))

	p.mp = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.mp)
	return p, nil
}

// Meter returns a named meter from the provider.
func (p *Provider) Meter(name string, options ...metric.MeterOption) metric.Meter {
	return p.mp.Meter(name, options...)
}

// Handler serves the Prometheus registry, or 404 when Prometheus is off.
func (p *Provider) Handler() http.Handler {
	if p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops every reader.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}

// Serve exposes h on /metrics at port until ctx is cancelled.
func Serve(ctx context.Context, port int, h http.Handler, log logger.LoggerInterface) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "serving metrics", "port", port, "path", "/metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
