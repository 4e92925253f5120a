// Package config loads the cacheboot operator configuration.
//
// Precedence, highest first: CACHEBOOT_* environment variables, the
// configuration file, built-in defaults. Nested keys use underscores in the
// environment, e.g. CACHEBOOT_COMPRESSION_ALGORITHM=gzip.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/vnykmshr/cacheboot/pkg/bootstrap"
	"github.com/vnykmshr/cacheboot/pkg/compression"
	"github.com/vnykmshr/cacheboot/pkg/driver"
)

// EnvPrefix is the prefix of environment overrides
const EnvPrefix = "CACHEBOOT"

// Config is the operator configuration
type Config struct {
	Platform    PlatformConfig    `mapstructure:"platform" yaml:"platform"`
	Module      ModuleConfig      `mapstructure:"module" yaml:"module"`
	Invalidator InvalidatorConfig `mapstructure:"invalidator" yaml:"invalidator"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Redis       RedisConfig       `mapstructure:"redis" yaml:"redis"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`

	// Bins are routed to the external backend on integration
	Bins []string `mapstructure:"bins" validate:"min=1,dive,required" yaml:"bins"`
}

// PlatformConfig identifies the hosting platform
type PlatformConfig struct {
	// Env names the platform indicator variable
	Env string `mapstructure:"env" validate:"required" yaml:"env"`

	// SiteEnv names the site identifier variable
	SiteEnv string `mapstructure:"site_env" validate:"required" yaml:"site_env"`

	// LogPath is the diagnostic log path template; {site} is substituted
	LogPath string `mapstructure:"log_path" validate:"required" yaml:"log_path"`
}

// ModuleConfig locates the integration module
type ModuleConfig struct {
	AppRoot        string `mapstructure:"app_root" validate:"required" yaml:"app_root"`
	Dir            string `mapstructure:"dir" validate:"required" yaml:"dir"`
	LockManifest   string `mapstructure:"lock_manifest" validate:"required" yaml:"lock_manifest"`
	AutoloadPrefix string `mapstructure:"autoload_prefix" validate:"required,endswith=." yaml:"autoload_prefix"`
}

// InvalidatorConfig tunes the timestamp invalidator
type InvalidatorConfig struct {
	Bin       string  `mapstructure:"bin" validate:"required" yaml:"bin"`
	Tolerance float64 `mapstructure:"tolerance" validate:"gte=0" yaml:"tolerance"`
}

// CompressionConfig is the optional compression knob
type CompressionConfig struct {
	Algorithm string `mapstructure:"algorithm" validate:"oneof=none gzip deflate" yaml:"algorithm"`
	MinSize   int    `mapstructure:"min_size" validate:"gte=0" yaml:"min_size"`
	Level     int    `mapstructure:"level" validate:"gte=-1,lte=9" yaml:"level"`
}

// RedisConfig holds connection settings used by the probe command
type RedisConfig struct {
	Password    string        `mapstructure:"password" yaml:"password"`
	DB          int           `mapstructure:"db" validate:"gte=0" yaml:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gt=0" yaml:"dial_timeout"`
}

// LoggingConfig controls CLI logging
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR NONE debug info warn error none" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=console json" yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Platform: PlatformConfig{
			Env:     bootstrap.DefaultPlatformEnv,
			SiteEnv: bootstrap.DefaultSiteEnv,
			LogPath: bootstrap.DefaultLogPathTemplate,
		},
		Module: ModuleConfig{
			AppRoot:        ".",
			Dir:            bootstrap.DefaultModuleDir,
			LockManifest:   bootstrap.DefaultLockManifest,
			AutoloadPrefix: bootstrap.DefaultAutoloadPrefix,
		},
		Invalidator: InvalidatorConfig{
			Bin:       bootstrap.DefaultInvalidatorBin,
			Tolerance: bootstrap.DefaultTolerance,
		},
		Compression: CompressionConfig{
			Algorithm: string(compression.CompressorNone),
			MinSize:   1024,
			Level:     -1,
		},
		Redis: RedisConfig{
			DialTimeout: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "console",
		},
		Bins: bootstrap.DefaultBins(),
	}
}

// Load reads the configuration from path (optional) and the environment
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults register every key so environment overrides apply without a file
	setDefaults(v, "", reflect.ValueOf(*Default()))

	if path != "" {
		v.SetConfigFile(path)
	}
}

func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("mapstructure")
		if prefix != "" {
			key = prefix + "." + key
		}
		field := val.Field(i)
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			setDefaults(v, key, field)
			continue
		}
		v.SetDefault(key, field.Interface())
	}
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Options maps the configuration onto selector options
func (c *Config) Options() (*bootstrap.Options, error) {
	algo, err := compression.ParseAlgorithm(c.Compression.Algorithm)
	if err != nil {
		return nil, err
	}
	opts := bootstrap.NewDefaultOptions().
		WithPlatformEnv(c.Platform.Env).
		WithSiteEnv(c.Platform.SiteEnv).
		WithLogPathTemplate(c.Platform.LogPath).
		WithAppRoot(c.Module.AppRoot).
		WithModuleDir(c.Module.Dir).
		WithLockManifest(c.Module.LockManifest).
		WithAutoloadPrefix(c.Module.AutoloadPrefix).
		WithInvalidatorBin(c.Invalidator.Bin).
		WithTolerance(c.Invalidator.Tolerance).
		WithBins(c.Bins...).
		WithCompression(compression.NewDefaultConfig().
			WithAlgorithm(algo).
			WithMinSize(c.Compression.MinSize).
			WithLevel(c.Compression.Level))
	return opts, nil
}

// DriverOptions maps the redis section onto driver options
func (c *Config) DriverOptions() driver.Options {
	return driver.Options{
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		DialTimeout: c.Redis.DialTimeout,
	}
}
