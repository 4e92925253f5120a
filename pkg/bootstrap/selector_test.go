package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/cacheboot/pkg/autoload"
	"github.com/vnykmshr/cacheboot/pkg/compression"
	"github.com/vnykmshr/cacheboot/pkg/driver"
	"github.com/vnykmshr/cacheboot/pkg/metrics"
	"github.com/vnykmshr/cacheboot/pkg/settings"
)

const baseSettings = `
hash_salt: abc
redis:
  servers:
    "10.0.0.1:6379": default
cache:
  bins:
    render: cache.backend.database
container_yamls:
  - sites/default/services.yml
`

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 0, time.FixedZone("CET", 3600))

type fixture struct {
	opts   *Options
	logDir string
}

func newFixture(t *testing.T, manifest bool, drivers ...string) *fixture {
	t.Helper()
	reg := driver.NewRegistry()
	for _, name := range drivers {
		err := reg.Register(driver.Driver{
			Name: name,
			Dial: func(context.Context, []string, driver.Options) (driver.Client, error) { return nil, nil },
		})
		if err != nil {
			t.Fatalf("Failed to register driver: %v", err)
		}
	}

	fsys := fstest.MapFS{}
	if manifest {
		fsys["modules/contrib/redis/redis.services.yml"] = &fstest.MapFile{Data: []byte("services: {}\n")}
	}

	logDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(logDir, "mysite"), 0o755); err != nil {
		t.Fatalf("Failed to create log dir: %v", err)
	}

	opts := NewDefaultOptions().
		WithAppRoot("/var/www/html").
		WithFS(fsys).
		WithRegistry(reg).
		WithLogPathTemplate(filepath.Join(logDir, "{site}", "cloud-redis-error.log")).
		WithClock(func() time.Time { return fixedNow })
	return &fixture{opts: opts, logDir: logDir}
}

func (f *fixture) logPath() string {
	return filepath.Join(f.logDir, "mysite", "cloud-redis-error.log")
}

func (f *fixture) apply(t *testing.T, env Environment, tree *settings.Tree) *Result {
	t.Helper()
	s, err := New(f.opts)
	if err != nil {
		t.Fatalf("Failed to create selector: %v", err)
	}
	res, err := s.Apply(context.Background(), env, tree)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	return res
}

func platformEnv() MapEnvironment {
	return MapEnvironment{"AH_SITE_ENVIRONMENT": "prod", "AH_SITE_NAME": "mysite"}
}

func decode(t *testing.T, doc string) *settings.Tree {
	t.Helper()
	tree, err := settings.Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Failed to decode settings: %v", err)
	}
	return tree
}

func encode(t *testing.T, tree *settings.Tree) []byte {
	t.Helper()
	data, err := tree.Encode()
	if err != nil {
		t.Fatalf("Failed to encode settings: %v", err)
	}
	return data
}

func TestSkippedWithoutPlatform(t *testing.T) {
	f := newFixture(t, true, driver.GoRedis)
	tree := decode(t, baseSettings)
	before := encode(t, tree)

	for _, env := range []Environment{
		MapEnvironment{"AH_SITE_NAME": "mysite"},
		MapEnvironment{"AH_SITE_ENVIRONMENT": "", "AH_SITE_NAME": "mysite"},
		nil,
	} {
		res := f.apply(t, env, tree)
		if res.Outcome != OutcomeSkipped {
			t.Fatalf("Expected skipped, got %s", res.Outcome)
		}
	}

	if !bytes.Equal(before, encode(t, tree)) {
		t.Fatal("Expected settings to be byte-identical")
	}
	if _, err := os.Stat(f.logPath()); !os.IsNotExist(err) {
		t.Fatalf("Expected no diagnostic log, got %v", err)
	}
}

func TestSkippedWithoutEndpoints(t *testing.T) {
	docs := []string{
		"hash_salt: abc\n",
		"redis:\n  servers: {}\n",
		"redis:\n  servers: []\n",
		"redis:\n  servers: localhost\n",
		"redis: enabled\n",
	}
	for _, doc := range docs {
		f := newFixture(t, true, driver.GoRedis)
		tree := decode(t, doc)
		before := encode(t, tree)

		res := f.apply(t, platformEnv(), tree)
		if res.Outcome != OutcomeSkipped {
			t.Fatalf("%q: expected skipped, got %s", doc, res.Outcome)
		}
		if !bytes.Equal(before, encode(t, tree)) {
			t.Fatalf("%q: expected settings to be byte-identical", doc)
		}
		if _, err := os.Stat(f.logPath()); !os.IsNotExist(err) {
			t.Fatalf("%q: expected no diagnostic log", doc)
		}
	}
}

func TestIntegrationWithOneLibrary(t *testing.T) {
	f := newFixture(t, true, driver.Redigo)
	tree := decode(t, baseSettings)

	res := f.apply(t, platformEnv(), tree)
	if res.Outcome != OutcomeIntegrated {
		t.Fatalf("Expected integrated, got %s", res.Outcome)
	}
	if !res.Capabilities.Redigo || res.Capabilities.GoRedis {
		t.Fatalf("Expected only redigo, got %+v", res.Capabilities)
	}

	for _, bin := range []string{"bootstrap", "discovery", "config"} {
		if got := tree.String("cache", "bins", bin); got != BackendID {
			t.Fatalf("Expected bin %s routed to %s, got %q", bin, BackendID, got)
		}
	}
	if got := tree.String("cache", "bins", "render"); got != "cache.backend.database" {
		t.Fatalf("Expected unrelated bin kept, got %q", got)
	}
	if got := tree.String("cache", "default"); got != BackendID {
		t.Fatalf("Expected default routed to %s, got %q", BackendID, got)
	}
	if !tree.Bool("redis", "stampede_protection") {
		t.Fatal("Expected stampede protection enabled")
	}
	if _, ok := tree.Lookup("redis", "extension"); ok {
		t.Fatal("Expected no extension override without goredis")
	}
	if _, ok := tree.Lookup("redis", "options"); ok {
		t.Fatal("Expected no compression options by default")
	}

	yamls, _ := tree.Sequence("container_yamls")
	want := []any{
		"sites/default/services.yml",
		"/var/www/html/modules/contrib/redis/redis.services.yml",
		"sites/all/redis-locks.yml",
	}
	if !reflect.DeepEqual(yamls, want) {
		t.Fatalf("Expected container_yamls %v, got %v", want, yamls)
	}

	if res.Autoload == nil || res.Autoload.Prefix != "redis." || res.Autoload.Dir != "modules/contrib/redis/src" {
		t.Fatalf("Expected autoload rule redis. -> modules/contrib/redis/src, got %+v", res.Autoload)
	}
	if _, err := os.Stat(f.logPath()); !os.IsNotExist(err) {
		t.Fatal("Expected no diagnostic log on integration")
	}
}

func TestBootstrapContainerDefinition(t *testing.T) {
	f := newFixture(t, true, driver.Redigo)
	tree := decode(t, baseSettings)
	f.apply(t, platformEnv(), tree)

	def, ok := tree.Subtree("bootstrap_container_definition")
	if !ok {
		t.Fatal("Expected bootstrap_container_definition")
	}
	if params, ok := def.Subtree("parameters"); !ok || params.Len() != 0 {
		t.Fatal("Expected empty parameters")
	}
	services, _ := def.Subtree("services")
	wantNames := []string{
		"database", "settings", "redis.settings", "redis.factory",
		"redis.timestamp.invalidator.bin", "redis.backend.cache.container",
		"cache_tags_provider.container", "cache.container",
	}
	if !reflect.DeepEqual(services.Keys(), wantNames) {
		t.Fatalf("Expected services %v, got %v", wantNames, services.Keys())
	}

	args := func(name string) []any {
		seq, _ := services.Sequence(name, "arguments")
		return seq
	}
	edges := map[string][]any{
		"database":                        {"default"},
		"redis.settings":                  {"@settings"},
		"redis.factory":                   {"@redis.settings"},
		"redis.timestamp.invalidator.bin": {"@redis.factory", "redis_bin_timestamps", 0.001},
		"redis.backend.cache.container":   {"container"},
		"cache_tags_provider.container":   {"@database"},
		"cache.container": {
			"container",
			"@redis.backend.cache.container",
			"@cache_tags_provider.container",
			"@redis.timestamp.invalidator.bin",
		},
	}
	for name, want := range edges {
		if got := args(name); !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: expected arguments %v, got %v", name, want, got)
		}
	}
	if _, ok := services.Lookup("settings", "arguments"); ok {
		t.Fatal("Expected settings to take no arguments")
	}

	factory, _ := services.Sequence("redis.backend.cache.container", "factory")
	if !reflect.DeepEqual(factory, []any{"@redis.factory", "get"}) {
		t.Fatalf("Expected factory [@redis.factory get], got %v", factory)
	}
	if got := services.String("database", "factory"); got != "database.GetConnection" {
		t.Fatalf("Expected database factory, got %q", got)
	}
	if got := services.String("settings", "factory"); got != "settings.Instance" {
		t.Fatalf("Expected settings factory, got %q", got)
	}
}

func TestGoRedisSelectsExtension(t *testing.T) {
	for _, drivers := range [][]string{{driver.GoRedis}, {driver.GoRedis, driver.Redigo}} {
		f := newFixture(t, true, drivers...)
		tree := decode(t, baseSettings)

		res := f.apply(t, platformEnv(), tree)
		if res.Outcome != OutcomeIntegrated {
			t.Fatalf("Expected integrated, got %s", res.Outcome)
		}
		if got := tree.String("redis", "extension"); got != driver.GoRedis {
			t.Fatalf("Expected extension %q, got %q", driver.GoRedis, got)
		}
	}
}

func TestFallbackWithoutManifest(t *testing.T) {
	f := newFixture(t, false, driver.GoRedis)
	tree := decode(t, baseSettings)
	before := encode(t, tree)

	res := f.apply(t, platformEnv(), tree)
	if res.Outcome != OutcomeFallback {
		t.Fatalf("Expected fallback, got %s", res.Outcome)
	}
	if res.DiagnosticErr != nil {
		t.Fatalf("Expected diagnostic write to succeed, got %v", res.DiagnosticErr)
	}
	if !bytes.Equal(before, encode(t, tree)) {
		t.Fatal("Expected settings to be byte-identical")
	}

	data, err := os.ReadFile(f.logPath())
	if err != nil {
		t.Fatalf("Expected diagnostic log, got %v", err)
	}
	want := "[2024/03/5 13:07:09 UTC] integration requested but prerequisites missing\n"
	if string(data) != want {
		t.Fatalf("Expected %q, got %q", want, data)
	}
	line := regexp.MustCompile(`^\[\d{4}/\d{2}/\d{1,2} \d{2}:\d{2}:\d{2} UTC\] integration requested but prerequisites missing\n$`)
	if !line.Match(data) {
		t.Fatalf("Expected well-formed line, got %q", data)
	}
}

func TestFallbackWithoutLibrary(t *testing.T) {
	f := newFixture(t, true)
	tree := decode(t, baseSettings)

	res := f.apply(t, platformEnv(), tree)
	if res.Outcome != OutcomeFallback {
		t.Fatalf("Expected fallback, got %s", res.Outcome)
	}
	if !res.ManifestPresent {
		t.Fatal("Expected manifest to be found")
	}
	res = f.apply(t, platformEnv(), tree)

	data, _ := os.ReadFile(f.logPath())
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("Expected one appended line per fallback, got %d", n)
	}
	if res.DiagnosticPath != f.logPath() {
		t.Fatalf("Expected diagnostic path %s, got %s", f.logPath(), res.DiagnosticPath)
	}
}

func TestFallbackSwallowsWriteErrors(t *testing.T) {
	f := newFixture(t, false, driver.GoRedis)
	env := MapEnvironment{"AH_SITE_ENVIRONMENT": "prod", "AH_SITE_NAME": "no-such-site"}
	s, err := New(f.opts)
	if err != nil {
		t.Fatalf("Failed to create selector: %v", err)
	}

	res, err := s.Apply(context.Background(), env, decode(t, baseSettings))
	if err != nil {
		t.Fatalf("Expected write errors to be swallowed, got %v", err)
	}
	if res.Outcome != OutcomeFallback || res.DiagnosticErr == nil {
		t.Fatalf("Expected fallback with a recorded write error, got %+v", res)
	}
}

func TestIntegrationIsIdempotent(t *testing.T) {
	f := newFixture(t, true, driver.GoRedis)
	once := decode(t, baseSettings)
	twice := decode(t, baseSettings)

	f.apply(t, platformEnv(), once)
	f.apply(t, platformEnv(), twice)
	f.apply(t, platformEnv(), twice)

	if !once.Equal(twice) {
		t.Fatalf("Expected applying twice to equal applying once\nonce:\n%s\ntwice:\n%s", encode(t, once), encode(t, twice))
	}
}

func TestAutoloadRegistration(t *testing.T) {
	f := newFixture(t, true, driver.Redigo)
	fsys := fstest.MapFS{
		"modules/contrib/redis/redis.services.yml": &fstest.MapFile{},
		"modules/contrib/redis/src/Backend.go":     &fstest.MapFile{},
	}
	loader, err := autoload.NewLoader(fsys)
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	f.opts.WithFS(fsys).WithLoader(loader)

	f.apply(t, platformEnv(), decode(t, baseSettings))
	if got, ok := loader.Resolve("redis.Backend"); !ok || got != "modules/contrib/redis/src/Backend.go" {
		t.Fatalf("Expected redis.Backend to resolve after integration, got %q", got)
	}
}

func TestAutoloadConflictLeavesTreeUntouched(t *testing.T) {
	f := newFixture(t, true, driver.Redigo)
	loader, _ := autoload.NewLoader(fstest.MapFS{})
	if err := loader.Register(autoload.Rule{Prefix: "redis.", Dir: "vendor/other/src"}); err != nil {
		t.Fatalf("Failed to register rule: %v", err)
	}
	f.opts.WithLoader(loader)

	s, _ := New(f.opts)
	tree := decode(t, baseSettings)
	before := encode(t, tree)

	_, err := s.Apply(context.Background(), platformEnv(), tree)
	if !errors.Is(err, autoload.ErrDuplicatePrefix) {
		t.Fatalf("Expected ErrDuplicatePrefix, got %v", err)
	}
	if !bytes.Equal(before, encode(t, tree)) {
		t.Fatal("Expected settings untouched after a failed integration")
	}
}

func TestMalformedTreeIsSkipped(t *testing.T) {
	cases := map[string]func(*settings.Tree) error{
		"cache scalar": func(tree *settings.Tree) error {
			return tree.Set("database", "cache")
		},
		"container_yamls scalar": func(tree *settings.Tree) error {
			return tree.Set("sites/default/services.yml", "container_yamls")
		},
	}

	for name, mangle := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, true, driver.Redigo)
			loader, err := autoload.NewLoader(fstest.MapFS{})
			if err != nil {
				t.Fatalf("Failed to create loader: %v", err)
			}
			f.opts.WithLoader(loader)
			s, _ := New(f.opts)
			tree := decode(t, baseSettings)
			if err := mangle(tree); err != nil {
				t.Fatalf("Failed to prepare tree: %v", err)
			}
			before := encode(t, tree)

			res, err := s.Apply(context.Background(), platformEnv(), tree)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if res.Outcome != OutcomeSkipped {
				t.Fatalf("Expected skipped, got %s", res.Outcome)
			}
			if !bytes.Equal(before, encode(t, tree)) {
				t.Fatal("Expected settings untouched")
			}
			if len(loader.Rules()) != 0 {
				t.Fatalf("Expected no autoload rule, got %v", loader.Rules())
			}
			if _, err := os.Stat(f.logPath()); !os.IsNotExist(err) {
				t.Fatalf("Expected no diagnostic, got %v", err)
			}
		})
	}
}

func TestCompressionKnob(t *testing.T) {
	f := newFixture(t, true, driver.GoRedis)
	f.opts.WithCompression(compression.NewDefaultConfig().WithAlgorithm(compression.CompressorGzip).WithMinSize(2048))
	tree := decode(t, baseSettings)

	f.apply(t, platformEnv(), tree)
	if got := tree.String("redis", "options", "compression"); got != "gzip" {
		t.Fatalf("Expected gzip, got %q", got)
	}
	if got := tree.Get("redis", "options", "compression_min_size"); got != 2048 {
		t.Fatalf("Expected 2048, got %v", got)
	}
}

func TestCustomModuleDirAndTolerance(t *testing.T) {
	f := newFixture(t, false, driver.Redigo)
	f.opts.WithFS(fstest.MapFS{"modules/redis/redis.services.yml": &fstest.MapFile{}}).
		WithModuleDir("modules/redis").
		WithTolerance(0.5)
	tree := decode(t, baseSettings)

	res := f.apply(t, platformEnv(), tree)
	if res.Outcome != OutcomeIntegrated {
		t.Fatalf("Expected integrated, got %s", res.Outcome)
	}
	args, _ := tree.Sequence("bootstrap_container_definition", "services", "redis.timestamp.invalidator.bin", "arguments")
	if args[2] != 0.5 {
		t.Fatalf("Expected tolerance 0.5, got %v", args[2])
	}
	if res.Autoload.Dir != "modules/redis/src" {
		t.Fatalf("Expected autoload dir modules/redis/src, got %s", res.Autoload.Dir)
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp, err := metrics.NewPrometheusExporter(nil, &metrics.PrometheusConfig{Registry: reg})
	if err != nil {
		t.Fatalf("Failed to create exporter: %v", err)
	}

	f := newFixture(t, true, driver.GoRedis)
	f.opts.WithMetrics(exp)
	f.apply(t, platformEnv(), decode(t, baseSettings))
	f.apply(t, MapEnvironment{}, decode(t, baseSettings))

	expected := `
# HELP cacheboot_bootstrap_services Number of services in the installed bootstrap container override
# TYPE cacheboot_bootstrap_services gauge
cacheboot_bootstrap_services{site="mysite"} 8
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "cacheboot_bootstrap_services"); err != nil {
		t.Fatalf("Unexpected services gauge: %v", err)
	}
	n, err := testutil.GatherAndCount(reg, "cacheboot_decisions_total")
	if err != nil || n != 2 {
		t.Fatalf("Expected 2 decision series, got %d (%v)", n, err)
	}
}

func TestApplyHonoursContext(t *testing.T) {
	f := newFixture(t, true, driver.GoRedis)
	s, _ := New(f.opts)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Apply(ctx, platformEnv(), decode(t, baseSettings)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
