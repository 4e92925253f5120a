package bootstrap

import (
	"github.com/vnykmshr/cacheboot/pkg/autoload"
	"github.com/vnykmshr/cacheboot/pkg/container"
	"github.com/vnykmshr/cacheboot/pkg/metrics"
)

// Outcome is what Apply decided
type Outcome string

const (
	// OutcomeSkipped means the gate check failed and nothing happened
	OutcomeSkipped Outcome = "skipped"

	// OutcomeIntegrated means the tree was rewired onto the external cache
	OutcomeIntegrated Outcome = "integrated"

	// OutcomeFallback means prerequisites were missing and a diagnostic line was attempted
	OutcomeFallback Outcome = "fallback"
)

func (o Outcome) decision() metrics.Decision {
	return metrics.Decision(o)
}

// Capabilities reports which client libraries the probe found
type Capabilities struct {
	Redigo  bool
	GoRedis bool
}

// Any reports whether at least one library is present
func (c Capabilities) Any() bool {
	return c.Redigo || c.GoRedis
}

// Result describes one Apply
type Result struct {
	Outcome Outcome

	// Site is the site identifier read from the environment
	Site string

	Capabilities    Capabilities
	ManifestPresent bool

	// Autoload is the rule produced on integration
	Autoload *autoload.Rule

	// Graph is the bootstrap container override installed on integration
	Graph *container.Graph

	// DiagnosticPath is where the fallback line went
	DiagnosticPath string

	// DiagnosticErr is the swallowed write error, if any
	DiagnosticErr error
}
