// Package metrics exports bootstrap decision metrics to Prometheus,
// OpenTelemetry or nowhere.
package metrics

import (
	"time"
)

// Exporter defines the interface for bootstrap decision metrics exporters
type Exporter interface {
	// RecordDecision counts one Apply outcome
	RecordDecision(decision Decision, labels Labels) error

	// RecordApplyDuration records how long one Apply took
	RecordApplyDuration(duration time.Duration, labels Labels) error

	// SetDriverPresent records whether a client library was found by the probe
	SetDriverPresent(driver string, present bool, labels Labels) error

	// SetBootstrapServices records the size of the installed bootstrap graph
	SetBootstrapServices(count int, labels Labels) error

	// RecordDiagnosticFailure counts diagnostic lines that could not be written
	RecordDiagnosticFailure(labels Labels) error

	// Close shuts down the exporter and flushes any pending metrics
	Close() error
}

// Labels represents key-value pairs for metric labels/tags
type Labels map[string]string

// Decision is the outcome of one Apply
type Decision string

const (
	DecisionSkipped    Decision = "skipped"
	DecisionIntegrated Decision = "integrated"
	DecisionFallback   Decision = "fallback"
)

// LabelSite is the base label carried by every metric
const LabelSite = "site"

// MetricNames defines standard metric names used across exporters
type MetricNames struct {
	// Counters
	DecisionsTotal          string
	DiagnosticFailuresTotal string

	// Histograms
	ApplyDuration string

	// Gauges
	DriverPresent     string
	BootstrapServices string
}

// DefaultMetricNames returns the default metric names with proper namespacing
func DefaultMetricNames() MetricNames {
	return MetricNames{
		DecisionsTotal:          "cacheboot_decisions_total",
		DiagnosticFailuresTotal: "cacheboot_diagnostic_failures_total",
		ApplyDuration:           "cacheboot_apply_duration_seconds",
		DriverPresent:           "cacheboot_driver_present",
		BootstrapServices:       "cacheboot_bootstrap_services",
	}
}

// Config holds configuration for metrics exporters
type Config struct {
	// Enabled determines whether metrics collection is enabled
	Enabled bool

	// Labels are default labels applied to all metrics
	Labels Labels

	// MetricNames allows customizing metric names
	MetricNames MetricNames

	// IncludeDetailedTimings enables the apply duration histogram
	IncludeDetailedTimings bool
}

// NewDefaultConfig creates a default metrics configuration
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:                true,
		Labels:                 make(Labels),
		MetricNames:            DefaultMetricNames(),
		IncludeDetailedTimings: true,
	}
}

// WithLabels adds default labels to all metrics
func (c *Config) WithLabels(labels Labels) *Config {
	for k, v := range labels {
		c.Labels[k] = v
	}
	return c
}

// WithDetailedTimings enables the apply duration histogram
func (c *Config) WithDetailedTimings(enabled bool) *Config {
	c.IncludeDetailedTimings = enabled
	return c
}

// WithMetricNames replaces the metric names
func (c *Config) WithMetricNames(names MetricNames) *Config {
	c.MetricNames = names
	return c
}

func site(labels Labels) string {
	return labels[LabelSite]
}

// MultiExporter allows using multiple exporters simultaneously
type MultiExporter struct {
	exporters []Exporter
}

// NewMultiExporter creates an exporter that writes to multiple backends
func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{
		exporters: exporters,
	}
}

func (m *MultiExporter) each(fn func(Exporter) error) error {
	for _, exporter := range m.exporters {
		if err := fn(exporter); err != nil {
			return err
		}
	}
	return nil
}

// RecordDecision records to all configured exporters
func (m *MultiExporter) RecordDecision(decision Decision, labels Labels) error {
	return m.each(func(e Exporter) error { return e.RecordDecision(decision, labels) })
}

// RecordApplyDuration records to all configured exporters
func (m *MultiExporter) RecordApplyDuration(duration time.Duration, labels Labels) error {
	return m.each(func(e Exporter) error { return e.RecordApplyDuration(duration, labels) })
}

// SetDriverPresent sets on all configured exporters
func (m *MultiExporter) SetDriverPresent(driver string, present bool, labels Labels) error {
	return m.each(func(e Exporter) error { return e.SetDriverPresent(driver, present, labels) })
}

// SetBootstrapServices sets on all configured exporters
func (m *MultiExporter) SetBootstrapServices(count int, labels Labels) error {
	return m.each(func(e Exporter) error { return e.SetBootstrapServices(count, labels) })
}

// RecordDiagnosticFailure records to all configured exporters
func (m *MultiExporter) RecordDiagnosticFailure(labels Labels) error {
	return m.each(func(e Exporter) error { return e.RecordDiagnosticFailure(labels) })
}

// Close closes all configured exporters
func (m *MultiExporter) Close() error {
	return m.each(func(e Exporter) error { return e.Close() })
}

// NoOpExporter provides a no-op implementation for when metrics are disabled
type NoOpExporter struct{}

// NewNoOpExporter creates a no-op exporter
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

// RecordDecision does nothing
func (n *NoOpExporter) RecordDecision(Decision, Labels) error { return nil }

// RecordApplyDuration does nothing
func (n *NoOpExporter) RecordApplyDuration(time.Duration, Labels) error { return nil }

// SetDriverPresent does nothing
func (n *NoOpExporter) SetDriverPresent(string, bool, Labels) error { return nil }

// SetBootstrapServices does nothing
func (n *NoOpExporter) SetBootstrapServices(int, Labels) error { return nil }

// RecordDiagnosticFailure does nothing
func (n *NoOpExporter) RecordDiagnosticFailure(Labels) error { return nil }

// Close does nothing
func (n *NoOpExporter) Close() error { return nil }

// Ensure interfaces are implemented
var (
	_ Exporter = (*MultiExporter)(nil)
	_ Exporter = (*NoOpExporter)(nil)
)
