package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter implements the Exporter interface for Prometheus metrics
type PrometheusExporter struct {
	config   *Config
	registry prometheus.Registerer

	// Counters
	decisionsTotal          *prometheus.CounterVec
	diagnosticFailuresTotal *prometheus.CounterVec

	// Histograms
	applyDuration *prometheus.HistogramVec

	// Gauges
	driverPresent     *prometheus.GaugeVec
	bootstrapServices *prometheus.GaugeVec
}

// PrometheusConfig holds Prometheus-specific configuration
type PrometheusConfig struct {
	// Registry is the Prometheus registry to use (optional, uses default if nil)
	Registry prometheus.Registerer

	// DefaultLabels are applied to all metrics
	DefaultLabels prometheus.Labels

	// Buckets for the apply duration histogram
	DurationBuckets []float64
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(config *Config, promConfig *PrometheusConfig) (*PrometheusExporter, error) {
	if config == nil {
		config = NewDefaultConfig()
	}

	if promConfig == nil {
		promConfig = &PrometheusConfig{}
	}

	registry := promConfig.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	// Default histogram buckets
	durationBuckets := promConfig.DurationBuckets
	if durationBuckets == nil {
		durationBuckets = []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1}
	}

	defaultLabels := make(prometheus.Labels)
	for k, v := range promConfig.DefaultLabels {
		defaultLabels[k] = v
	}
	for k, v := range config.Labels {
		defaultLabels[k] = v
	}

	exporter := &PrometheusExporter{
		config:   config,
		registry: registry,
	}

	if err := exporter.createStandardMetrics(defaultLabels, durationBuckets); err != nil {
		return nil, fmt.Errorf("failed to create standard metrics: %w", err)
	}

	return exporter, nil
}

func (p *PrometheusExporter) createStandardMetrics(defaultLabels prometheus.Labels, durationBuckets []float64) error {
	var err error
	names := p.config.MetricNames
	baseLabels := []string{LabelSite}

	// Counters
	p.decisionsTotal, err = p.createCounterVec(names.DecisionsTotal, "Total number of bootstrap cache decisions", append(baseLabels, "decision"), defaultLabels)
	if err != nil {
		return err
	}

	p.diagnosticFailuresTotal, err = p.createCounterVec(names.DiagnosticFailuresTotal, "Total number of diagnostic lines that could not be written", baseLabels, defaultLabels)
	if err != nil {
		return err
	}

	// Histograms
	if p.config.IncludeDetailedTimings {
		p.applyDuration, err = p.createHistogramVec(names.ApplyDuration, "Bootstrap cache selection duration in seconds", baseLabels, defaultLabels, durationBuckets)
		if err != nil {
			return err
		}
	}

	// Gauges
	p.driverPresent, err = p.createGaugeVec(names.DriverPresent, "Whether a cache client library is compiled in (1) or not (0)", append(baseLabels, "driver"), defaultLabels)
	if err != nil {
		return err
	}

	p.bootstrapServices, err = p.createGaugeVec(names.BootstrapServices, "Number of services in the installed bootstrap container override", baseLabels, defaultLabels)
	if err != nil {
		return err
	}

	return nil
}

// RecordDecision counts one Apply outcome
func (p *PrometheusExporter) RecordDecision(decision Decision, labels Labels) error {
	counter, err := p.decisionsTotal.GetMetricWithLabelValues(site(labels), string(decision))
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	counter.Inc()
	return nil
}

// RecordApplyDuration records Apply timing when detailed timings are enabled
func (p *PrometheusExporter) RecordApplyDuration(duration time.Duration, labels Labels) error {
	if p.applyDuration == nil {
		return nil
	}
	observer, err := p.applyDuration.GetMetricWithLabelValues(site(labels))
	if err != nil {
		return fmt.Errorf("failed to record apply duration: %w", err)
	}
	observer.Observe(duration.Seconds())
	return nil
}

// SetDriverPresent sets the driver gauge to 1 or 0
func (p *PrometheusExporter) SetDriverPresent(driver string, present bool, labels Labels) error {
	gauge, err := p.driverPresent.GetMetricWithLabelValues(site(labels), driver)
	if err != nil {
		return fmt.Errorf("failed to set driver gauge: %w", err)
	}
	gauge.Set(boolToFloat(present))
	return nil
}

// SetBootstrapServices sets the bootstrap graph size gauge
func (p *PrometheusExporter) SetBootstrapServices(count int, labels Labels) error {
	gauge, err := p.bootstrapServices.GetMetricWithLabelValues(site(labels))
	if err != nil {
		return fmt.Errorf("failed to set services gauge: %w", err)
	}
	gauge.Set(float64(count))
	return nil
}

// RecordDiagnosticFailure counts one failed diagnostic write
func (p *PrometheusExporter) RecordDiagnosticFailure(labels Labels) error {
	counter, err := p.diagnosticFailuresTotal.GetMetricWithLabelValues(site(labels))
	if err != nil {
		return fmt.Errorf("failed to record diagnostic failure: %w", err)
	}
	counter.Inc()
	return nil
}

// Close shuts down the exporter
func (p *PrometheusExporter) Close() error {
	// Prometheus metrics don't need explicit cleanup
	return nil
}

// Helper methods

func (p *PrometheusExporter) createCounterVec(name, help string, labelNames []string, defaultLabels prometheus.Labels) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: defaultLabels,
		},
		labelNames,
	)

	if err := p.registry.Register(counter); err != nil {
		return nil, err
	}

	return counter, nil
}

func (p *PrometheusExporter) createHistogramVec(name, help string, labelNames []string, defaultLabels prometheus.Labels, buckets []float64) (*prometheus.HistogramVec, error) {
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        name,
			Help:        help,
			ConstLabels: defaultLabels,
			Buckets:     buckets,
		},
		labelNames,
	)

	if err := p.registry.Register(histogram); err != nil {
		return nil, err
	}

	return histogram, nil
}

func (p *PrometheusExporter) createGaugeVec(name, help string, labelNames []string, defaultLabels prometheus.Labels) (*prometheus.GaugeVec, error) {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: defaultLabels,
		},
		labelNames,
	)

	if err := p.registry.Register(gauge); err != nil {
		return nil, err
	}

	return gauge, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Ensure interface is implemented
var _ Exporter = (*PrometheusExporter)(nil)
