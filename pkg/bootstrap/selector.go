// Package bootstrap decides, once per process start, whether the host's cache
// bins, bootstrap container and lock service move onto the external cache,
// and rewrites the settings tree to match.
//
// Apply is a no-op unless the platform indicator is set and at least one
// cache server is configured. It then integrates when the integration
// module's manifest exists and a client library is compiled in, and
// otherwise appends one diagnostic line to a per-site log.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/vnykmshr/cacheboot/pkg/autoload"
	"github.com/vnykmshr/cacheboot/pkg/driver"
	"github.com/vnykmshr/cacheboot/pkg/logging"
	"github.com/vnykmshr/cacheboot/pkg/metrics"
	"github.com/vnykmshr/cacheboot/pkg/settings"
)

// Selector applies the bootstrap cache decision to settings trees
type Selector struct {
	opts     Options
	fsys     fs.FS
	registry *driver.Registry
	logger   logging.Logger
	metrics  metrics.Exporter
	now      func() time.Time
}

// New creates a selector. A nil opts uses NewDefaultOptions.
func New(opts *Options) (*Selector, error) {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &Selector{
		opts:     *opts,
		fsys:     opts.FS,
		registry: opts.Registry,
		logger:   logging.OrNoOp(opts.Logger),
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if s.fsys == nil {
		s.fsys = os.DirFS(opts.AppRoot)
	}
	if s.registry == nil {
		s.registry = driver.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoOpExporter()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Apply runs the gate check, the probes and either the integration or the
// fallback path. tree is only modified on integration, and only when every
// step succeeds. A tree whose existing keys have the wrong shape is left
// untouched with OutcomeSkipped and no error.
func (s *Selector) Apply(ctx context.Context, env Environment, tree *settings.Tree) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := s.now()

	res := &Result{Outcome: OutcomeSkipped, Site: getenv(env, s.opts.SiteEnv)}
	labels := metrics.Labels{metrics.LabelSite: res.Site}
	log := s.logger.With(logging.F("site", res.Site))

	defer func() {
		s.record(log, func() error { return s.metrics.RecordDecision(res.Outcome.decision(), labels) })
		s.record(log, func() error { return s.metrics.RecordApplyDuration(s.now().Sub(start), labels) })
	}()

	if getenv(env, s.opts.PlatformEnv) == "" || tree == nil || !hasServers(tree) {
		log.Debug("gate check failed, leaving settings untouched",
			logging.F("platform_env", s.opts.PlatformEnv))
		return res, nil
	}

	res.Capabilities = Capabilities{
		Redigo:  s.registry.Registered(driver.Redigo),
		GoRedis: s.registry.Registered(driver.GoRedis),
	}
	s.record(log, func() error { return s.metrics.SetDriverPresent(driver.Redigo, res.Capabilities.Redigo, labels) })
	s.record(log, func() error { return s.metrics.SetDriverPresent(driver.GoRedis, res.Capabilities.GoRedis, labels) })

	_, err := fs.Stat(s.fsys, s.opts.ManifestPath())
	res.ManifestPresent = err == nil

	if !res.ManifestPresent || !res.Capabilities.Any() {
		s.fallback(log, res, labels)
		return res, nil
	}

	if err := s.integrate(tree, res); err != nil {
		res.Outcome = OutcomeSkipped
		res.Autoload, res.Graph = nil, nil
		// a settings tree of the wrong shape fails the gate like a missing one
		if errors.Is(err, settings.ErrNotMapping) || errors.Is(err, settings.ErrNotSequence) {
			log.Debug("settings tree has an unexpected shape, leaving it untouched", logging.F("error", err))
			return res, nil
		}
		return res, err
	}
	res.Outcome = OutcomeIntegrated
	s.record(log, func() error { return s.metrics.SetBootstrapServices(res.Graph.Len(), labels) })
	log.Info("cache integration enabled",
		logging.F("goredis", res.Capabilities.GoRedis),
		logging.F("redigo", res.Capabilities.Redigo),
		logging.F("services", res.Graph.Len()))
	return res, nil
}

// integrate works on a copy of tree and swaps it in once every step has
// succeeded. The autoload rule is registered just before the swap.
func (s *Selector) integrate(tree *settings.Tree, res *Result) error {
	work := tree.Clone()

	if res.Capabilities.GoRedis {
		if err := work.Set(driver.GoRedis, "redis", "extension"); err != nil {
			return fmt.Errorf("failed to select client extension: %w", err)
		}
	}

	rule := autoload.Rule{Prefix: s.opts.AutoloadPrefix, Dir: path.Join(s.opts.ModuleDir, "src")}

	manifest := path.Join(s.opts.AppRoot, s.opts.ManifestPath())
	if err := work.AppendUnique(manifest, "container_yamls"); err != nil {
		return fmt.Errorf("failed to add service manifest: %w", err)
	}

	graph, err := Graph(s.opts.Tolerance, s.opts.InvalidatorBin)
	if err != nil {
		return fmt.Errorf("failed to build bootstrap container: %w", err)
	}
	res.Graph = graph
	if err := work.Set(graph.ToTree(), "bootstrap_container_definition"); err != nil {
		return fmt.Errorf("failed to install bootstrap container: %w", err)
	}

	for _, bin := range s.opts.Bins {
		if err := work.Set(BackendID, "cache", "bins", bin); err != nil {
			return fmt.Errorf("failed to route bin %s: %w", bin, err)
		}
	}
	if err := work.Set(BackendID, "cache", "default"); err != nil {
		return fmt.Errorf("failed to route default bin: %w", err)
	}

	if err := work.Set(true, "redis", "stampede_protection"); err != nil {
		return fmt.Errorf("failed to enable stampede protection: %w", err)
	}

	if err := work.AppendUnique(s.opts.LockManifest, "container_yamls"); err != nil {
		return fmt.Errorf("failed to add lock manifest: %w", err)
	}

	if c := s.opts.Compression; c.Enabled() {
		if err := work.Set(string(c.Algorithm), "redis", "options", "compression"); err != nil {
			return fmt.Errorf("failed to set compression: %w", err)
		}
		if err := work.Set(c.MinSize, "redis", "options", "compression_min_size"); err != nil {
			return fmt.Errorf("failed to set compression threshold: %w", err)
		}
	}

	// last, so a failed step above leaves no process-wide rule behind
	if s.opts.Loader != nil {
		if err := s.opts.Loader.Register(rule); err != nil {
			return fmt.Errorf("failed to register autoload rule: %w", err)
		}
	}
	res.Autoload = &rule

	*tree = *work
	return nil
}

// fallback appends the diagnostic line. Write errors are reported through
// the result, the logger and metrics, never returned.
func (s *Selector) fallback(log logging.Logger, res *Result, labels metrics.Labels) {
	res.Outcome = OutcomeFallback
	res.DiagnosticPath = DiagnosticPath(s.opts.LogPathTemplate, res.Site)

	if err := appendLine(res.DiagnosticPath, DiagnosticLine(s.now())); err != nil {
		res.DiagnosticErr = err
		log.Debug("diagnostic write failed", logging.F("path", res.DiagnosticPath), logging.F("error", err))
		s.record(log, func() error { return s.metrics.RecordDiagnosticFailure(labels) })
	}
	log.Warn("cache integration prerequisites missing",
		logging.F("manifest", res.ManifestPresent),
		logging.F("goredis", res.Capabilities.GoRedis),
		logging.F("redigo", res.Capabilities.Redigo))
}

func (s *Selector) record(log logging.Logger, fn func() error) {
	if err := fn(); err != nil {
		log.Debug("metrics export failed", logging.F("error", err))
	}
}
