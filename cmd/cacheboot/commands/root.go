// Package commands implements the cacheboot CLI.
package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vnykmshr/cacheboot/internal/config"
	"github.com/vnykmshr/cacheboot/pkg/logging"
	zapadapter "github.com/vnykmshr/cacheboot/pkg/logging/zap"

	// Client libraries register themselves with the default driver registry
	_ "github.com/vnykmshr/cacheboot/pkg/driver/goredis"
	_ "github.com/vnykmshr/cacheboot/pkg/driver/redigo"
)

// Version information, set from main
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// app is the state shared by subcommands once the root has loaded it
type app struct {
	configFile string
	logLevel   string
	noColor    bool

	cfg    *config.Config
	zl     *zap.Logger
	logger logging.Logger
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "cacheboot",
		Short: "Bootstrap cache selector",
		Long: `cacheboot decides at deploy time whether a site's cache bins, bootstrap
container and locks move onto Redis, and rewrites the settings file to match.

Configuration is read from --config (optional) and CACHEBOOT_* environment
variables, e.g. CACHEBOOT_MODULE_DIR=modules/custom/redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.zl != nil {
				_ = a.zl.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Path to the operator config file")
	flags.StringVar(&a.logLevel, "log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR, NONE)")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable coloured output")

	rootCmd.AddCommand(
		newApplyCmd(a),
		newProbeCmd(a),
		newGraphCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) init() error {
	if a.noColor {
		color.NoColor = true
	}

	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	zl, err := newZapLogger(cfg.Logging)
	if err != nil {
		return err
	}
	a.zl = zl
	a.logger = zapadapter.New(zl)
	return nil
}

func newZapLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if level == logging.LogLevelNone {
		return zap.NewNop(), nil
	}

	zcfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if color.NoColor {
			zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel(level))

	zl, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zl, nil
}

func zapLevel(l logging.LogLevel) zapcore.Level {
	switch l {
	case logging.LogLevelDebug:
		return zapcore.DebugLevel
	case logging.LogLevelWarn:
		return zapcore.WarnLevel
	case logging.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
