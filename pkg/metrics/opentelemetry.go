package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OpenTelemetryExporter implements the Exporter interface for OpenTelemetry metrics
type OpenTelemetryExporter struct {
	config *Config
	meter  metric.Meter
	ctx    context.Context

	decisionsCounter          metric.Int64Counter
	diagnosticFailuresCounter metric.Int64Counter

	applyDuration metric.Float64Histogram

	driverGauge   metric.Int64Gauge
	servicesGauge metric.Int64Gauge
}

// OpenTelemetryConfig holds OpenTelemetry-specific configuration
type OpenTelemetryConfig struct {
	// Meter is the OpenTelemetry meter to use
	Meter metric.Meter

	// Context is the context to use for metric operations
	Context context.Context

	// DefaultAttributes are applied to all metrics
	DefaultAttributes []attribute.KeyValue
}

// NewOpenTelemetryExporter creates a new OpenTelemetry metrics exporter
func NewOpenTelemetryExporter(config *Config, otelConfig *OpenTelemetryConfig) (*OpenTelemetryExporter, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	if otelConfig == nil {
		return nil, fmt.Errorf("OpenTelemetry configuration is required")
	}

	if otelConfig.Meter == nil {
		return nil, fmt.Errorf("OpenTelemetry meter is required")
	}

	ctx := otelConfig.Context
	if ctx == nil {
		ctx = context.Background()
	}

	exporter := &OpenTelemetryExporter{
		config: config,
		meter:  otelConfig.Meter,
		ctx:    ctx,
	}
	// fold default attributes into the config labels so every record carries them
	if len(otelConfig.DefaultAttributes) > 0 {
		labels := make(Labels, len(config.Labels)+len(otelConfig.DefaultAttributes))
		for _, kv := range otelConfig.DefaultAttributes {
			labels[string(kv.Key)] = kv.Value.Emit()
		}
		for k, v := range config.Labels {
			labels[k] = v
		}
		cfg := *config
		cfg.Labels = labels
		exporter.config = &cfg
	}

	if err := exporter.createStandardMetrics(); err != nil {
		return nil, fmt.Errorf("failed to create standard metrics: %w", err)
	}

	return exporter, nil
}

func (o *OpenTelemetryExporter) createStandardMetrics() error {
	var err error
	names := o.config.MetricNames

	o.decisionsCounter, err = o.meter.Int64Counter(
		names.DecisionsTotal,
		metric.WithDescription("Total number of bootstrap cache decisions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create decisions counter: %w", err)
	}

	o.diagnosticFailuresCounter, err = o.meter.Int64Counter(
		names.DiagnosticFailuresTotal,
		metric.WithDescription("Total number of diagnostic lines that could not be written"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create diagnostic failures counter: %w", err)
	}

	if o.config.IncludeDetailedTimings {
		o.applyDuration, err = o.meter.Float64Histogram(
			names.ApplyDuration,
			metric.WithDescription("Bootstrap cache selection duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return fmt.Errorf("failed to create apply duration histogram: %w", err)
		}
	}

	o.driverGauge, err = o.meter.Int64Gauge(
		names.DriverPresent,
		metric.WithDescription("Whether a cache client library is compiled in"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create driver gauge: %w", err)
	}

	o.servicesGauge, err = o.meter.Int64Gauge(
		names.BootstrapServices,
		metric.WithDescription("Number of services in the installed bootstrap container override"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create services gauge: %w", err)
	}

	return nil
}

// RecordDecision counts one Apply outcome
func (o *OpenTelemetryExporter) RecordDecision(decision Decision, labels Labels) error {
	attrs := append(o.convertLabels(labels), attribute.String("decision", string(decision)))
	o.decisionsCounter.Add(o.ctx, 1, metric.WithAttributes(attrs...))
	return nil
}

// RecordApplyDuration records Apply timing when detailed timings are enabled
func (o *OpenTelemetryExporter) RecordApplyDuration(duration time.Duration, labels Labels) error {
	if o.applyDuration == nil {
		return nil
	}
	o.applyDuration.Record(o.ctx, duration.Seconds(), metric.WithAttributes(o.convertLabels(labels)...))
	return nil
}

// SetDriverPresent records 1 or 0 for the driver
func (o *OpenTelemetryExporter) SetDriverPresent(driver string, present bool, labels Labels) error {
	var v int64
	if present {
		v = 1
	}
	attrs := append(o.convertLabels(labels), attribute.String("driver", driver))
	o.driverGauge.Record(o.ctx, v, metric.WithAttributes(attrs...))
	return nil
}

// SetBootstrapServices records the bootstrap graph size
func (o *OpenTelemetryExporter) SetBootstrapServices(count int, labels Labels) error {
	o.servicesGauge.Record(o.ctx, int64(count), metric.WithAttributes(o.convertLabels(labels)...))
	return nil
}

// RecordDiagnosticFailure counts one failed diagnostic write
func (o *OpenTelemetryExporter) RecordDiagnosticFailure(labels Labels) error {
	o.diagnosticFailuresCounter.Add(o.ctx, 1, metric.WithAttributes(o.convertLabels(labels)...))
	return nil
}

// Close shuts down the exporter
func (o *OpenTelemetryExporter) Close() error {
	// OpenTelemetry metrics don't need explicit cleanup
	return nil
}

func (o *OpenTelemetryExporter) convertLabels(labels Labels) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)+len(o.config.Labels)+1)

	// Add config labels first
	for k, v := range o.config.Labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	// Add provided labels
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	return attrs
}

// Ensure interface is implemented
var _ Exporter = (*OpenTelemetryExporter)(nil)
