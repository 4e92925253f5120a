package bootstrap

import (
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vnykmshr/cacheboot/pkg/autoload"
	"github.com/vnykmshr/cacheboot/pkg/compression"
	"github.com/vnykmshr/cacheboot/pkg/driver"
	"github.com/vnykmshr/cacheboot/pkg/logging"
	"github.com/vnykmshr/cacheboot/pkg/metrics"
)

// Defaults for Options
const (
	DefaultPlatformEnv     = "AH_SITE_ENVIRONMENT"
	DefaultSiteEnv         = "AH_SITE_NAME"
	DefaultModuleDir       = "modules/contrib/redis"
	DefaultManifestName    = "redis.services.yml"
	DefaultLockManifest    = "sites/all/redis-locks.yml"
	DefaultAutoloadPrefix  = "redis."
	DefaultTolerance       = 0.001
	DefaultInvalidatorBin  = "redis_bin_timestamps"
	DefaultLogPathTemplate = "/mnt/tmp/{site}/cloud-redis-error.log"
)

// BackendID is the cache backend identifier bins are routed to
const BackendID = "cache.backend.redis"

// DefaultBins returns the early-bootstrap bins routed to the backend
func DefaultBins() []string {
	return []string{"bootstrap", "discovery", "config"}
}

// Options holds selector configuration
type Options struct {
	// PlatformEnv names the variable whose presence marks the hosting platform
	PlatformEnv string `validate:"required"`

	// SiteEnv names the variable holding the site identifier
	SiteEnv string `validate:"required"`

	// AppRoot is the application root prefix written verbatim into
	// container_yamls. Pass an absolute path; the "." default yields paths
	// relative to the host's working directory.
	AppRoot string `validate:"required"`

	// ModuleDir is the integration module directory, relative to the app root
	ModuleDir string `validate:"required"`

	// ManifestName is the service manifest file inside ModuleDir
	ManifestName string `validate:"required"`

	// LockManifest is the lock relocation manifest, relative to the app root
	LockManifest string `validate:"required"`

	// AutoloadPrefix is the namespace prefix mapped to ModuleDir/src
	AutoloadPrefix string `validate:"required,endswith=."`

	// Tolerance is the timestamp invalidator tolerance. Raise it when the
	// cache servers are not on the application host.
	Tolerance float64 `validate:"gte=0"`

	// InvalidatorBin is the bin holding invalidation timestamps
	InvalidatorBin string `validate:"required"`

	// LogPathTemplate is the diagnostic log path; "{site}" is replaced with the site name
	LogPathTemplate string `validate:"required"`

	// Bins are routed to BackendID on integration
	Bins []string `validate:"min=1,dive,required"`

	// Compression is the optional payload compression knob
	Compression *compression.Config `validate:"required"`

	// FS is the application root filesystem probed for the manifest
	FS fs.FS `validate:"-"`

	// Registry is probed for client libraries (defaults to driver.Default())
	Registry *driver.Registry `validate:"-"`

	// Loader receives the autoload rule when set
	Loader *autoload.Loader `validate:"-"`

	Logger  logging.Logger   `validate:"-"`
	Metrics metrics.Exporter `validate:"-"`

	// Now is the clock used for diagnostic timestamps
	Now func() time.Time `validate:"-"`
}

// NewDefaultOptions creates options with the platform defaults
func NewDefaultOptions() *Options {
	return &Options{
		PlatformEnv:     DefaultPlatformEnv,
		SiteEnv:         DefaultSiteEnv,
		AppRoot:         ".",
		ModuleDir:       DefaultModuleDir,
		ManifestName:    DefaultManifestName,
		LockManifest:    DefaultLockManifest,
		AutoloadPrefix:  DefaultAutoloadPrefix,
		Tolerance:       DefaultTolerance,
		InvalidatorBin:  DefaultInvalidatorBin,
		LogPathTemplate: DefaultLogPathTemplate,
		Bins:            DefaultBins(),
		Compression:     compression.NewDefaultConfig(),
		Now:             time.Now,
	}
}

// WithPlatformEnv sets the platform indicator variable name
func (o *Options) WithPlatformEnv(name string) *Options {
	o.PlatformEnv = name
	return o
}

// WithSiteEnv sets the site identifier variable name
func (o *Options) WithSiteEnv(name string) *Options {
	o.SiteEnv = name
	return o
}

// WithAppRoot sets the application root
func (o *Options) WithAppRoot(root string) *Options {
	o.AppRoot = root
	return o
}

// WithModuleDir sets the integration module directory
func (o *Options) WithModuleDir(dir string) *Options {
	o.ModuleDir = dir
	return o
}

// WithLockManifest sets the lock relocation manifest path
func (o *Options) WithLockManifest(p string) *Options {
	o.LockManifest = p
	return o
}

// WithAutoloadPrefix sets the namespace prefix of the autoload rule
func (o *Options) WithAutoloadPrefix(prefix string) *Options {
	o.AutoloadPrefix = prefix
	return o
}

// WithTolerance sets the timestamp invalidator tolerance
func (o *Options) WithTolerance(tolerance float64) *Options {
	o.Tolerance = tolerance
	return o
}

// WithInvalidatorBin sets the timestamp bin name
func (o *Options) WithInvalidatorBin(bin string) *Options {
	o.InvalidatorBin = bin
	return o
}

// WithLogPathTemplate sets the diagnostic log path template
func (o *Options) WithLogPathTemplate(tmpl string) *Options {
	o.LogPathTemplate = tmpl
	return o
}

// WithBins sets the bins routed to the backend
func (o *Options) WithBins(bins ...string) *Options {
	o.Bins = bins
	return o
}

// WithCompression sets the compression knob
func (o *Options) WithCompression(c *compression.Config) *Options {
	o.Compression = c
	return o
}

// WithFS sets the application root filesystem
func (o *Options) WithFS(fsys fs.FS) *Options {
	o.FS = fsys
	return o
}

// WithRegistry sets the driver registry
func (o *Options) WithRegistry(r *driver.Registry) *Options {
	o.Registry = r
	return o
}

// WithLoader sets the autoload loader that receives the rule
func (o *Options) WithLoader(l *autoload.Loader) *Options {
	o.Loader = l
	return o
}

// WithLogger sets the logger
func (o *Options) WithLogger(l logging.Logger) *Options {
	o.Logger = l
	return o
}

// WithMetrics sets the metrics exporter
func (o *Options) WithMetrics(m metrics.Exporter) *Options {
	o.Metrics = m
	return o
}

// WithClock sets the clock
func (o *Options) WithClock(now func() time.Time) *Options {
	o.Now = now
	return o
}

// ManifestPath returns the manifest path relative to the app root
func (o *Options) ManifestPath() string {
	return path.Join(o.ModuleDir, o.ManifestName)
}

// Validate checks the options
func (o *Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if !fs.ValidPath(o.ModuleDir) {
		return fmt.Errorf("invalid options: module dir %q must be a clean relative path", o.ModuleDir)
	}
	if err := o.Compression.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}
