package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/cacheboot/pkg/autoload"
	"github.com/vnykmshr/cacheboot/pkg/bootstrap"
	"github.com/vnykmshr/cacheboot/pkg/compression"
	"github.com/vnykmshr/cacheboot/pkg/driver"
	"github.com/vnykmshr/cacheboot/pkg/metrics"
	"github.com/vnykmshr/cacheboot/pkg/settings"
)

type applyFlags struct {
	settings    string
	root        string
	out         string
	compress    string
	minSize     int
	metricsFile string
}

func newApplyCmd(a *app) *cobra.Command {
	f := &applyFlags{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Rewrite a settings file for the external cache",
		Long: `Apply runs the bootstrap cache selector against a settings file.

The platform indicator and site name are read from the process environment.
The integration module manifest is looked up under --root, which defaults to
the configured module.app_root.

Examples:
  # Print the rewritten settings
  cacheboot apply --settings settings.yaml

  # Write gzip-compressed output and a node_exporter textfile
  cacheboot apply --settings settings.yaml --out settings.yaml.gz --compress gzip \
    --metrics-textfile /var/lib/node_exporter/cacheboot.prom`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, a, f)
		},
	}

	cmd.Flags().StringVarP(&f.settings, "settings", "s", "", "Settings file to read (YAML, optionally gzip or zlib compressed)")
	cmd.Flags().StringVar(&f.root, "root", "", "Application root (default: module.app_root)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&f.compress, "compress", string(compression.CompressorNone), "Compress the output: none, gzip or deflate")
	cmd.Flags().IntVar(&f.minSize, "compress-min-size", -1, "Leave output smaller than this uncompressed (default: compression.min_size)")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-textfile", "", "Write Prometheus metrics to this file")
	_ = cmd.MarkFlagRequired("settings")
	return cmd
}

func runApply(cmd *cobra.Command, a *app, f *applyFlags) error {
	tree, err := readSettings(f.settings)
	if err != nil {
		return err
	}

	opts, err := a.cfg.Options()
	if err != nil {
		return err
	}
	root := f.root
	if root == "" {
		root = opts.AppRoot
	}
	// container_yamls entries must not depend on the host's working directory
	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve application root: %w", err)
	}
	fsys := os.DirFS(root)

	loader, err := autoload.NewLoader(fsys)
	if err != nil {
		return err
	}
	opts.WithAppRoot(root).
		WithFS(fsys).
		WithLoader(loader).
		WithRegistry(driver.Default()).
		WithLogger(a.logger)

	var reg *prometheus.Registry
	if f.metricsFile != "" {
		reg = prometheus.NewRegistry()
		exporter, err := metrics.NewPrometheusExporter(metrics.NewDefaultConfig(), &metrics.PrometheusConfig{Registry: reg})
		if err != nil {
			return fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		opts.WithMetrics(exporter)
	}

	sel, err := bootstrap.New(opts)
	if err != nil {
		return err
	}
	res, err := sel.Apply(cmd.Context(), bootstrap.OSEnvironment{}, tree)
	if err != nil {
		return err
	}

	compressor, minSize, err := outputCompressor(a, f)
	if err != nil {
		return err
	}
	if err := writeSettings(cmd.OutOrStdout(), f.out, compressor, minSize, tree); err != nil {
		return err
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	printOutcome(cmd.ErrOrStderr(), res)
	return nil
}

func readSettings(path string) (*settings.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	data, err = compression.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress settings file: %w", err)
	}
	return settings.Decode(data)
}

// outputCompressor resolves --compress, taking the level and, unless
// --compress-min-size is given, the threshold from the compression config
func outputCompressor(a *app, f *applyFlags) (compression.Compressor, int, error) {
	algo, err := compression.ParseAlgorithm(f.compress)
	if err != nil {
		return nil, 0, err
	}
	minSize := f.minSize
	if minSize < 0 {
		minSize = a.cfg.Compression.MinSize
	}
	cfg := compression.NewDefaultConfig().
		WithAlgorithm(algo).
		WithMinSize(minSize).
		WithLevel(a.cfg.Compression.Level)
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}
	c, err := compression.NewCompressor(cfg)
	if err != nil {
		return nil, 0, err
	}
	return c, cfg.MinSize, nil
}

func writeSettings(stdout io.Writer, out string, compressor compression.Compressor, minSize int, tree *settings.Tree) (err error) {
	data, err := tree.Encode()
	if err != nil {
		return err
	}
	data, _, err = compression.Pack(data, compressor, minSize)
	if err != nil {
		return err
	}

	w := stdout
	if out != "-" {
		file, cerr := os.Create(out)
		if cerr != nil {
			return fmt.Errorf("failed to create output file: %w", cerr)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output file: %w", cerr)
			}
		}()
		w = file
	}

	_, err = w.Write(data)
	return err
}

func printOutcome(w io.Writer, res *bootstrap.Result) {
	var c *color.Color
	switch res.Outcome {
	case bootstrap.OutcomeIntegrated:
		c = color.New(color.FgGreen, color.Bold)
	case bootstrap.OutcomeFallback:
		c = color.New(color.FgYellow, color.Bold)
	default:
		c = color.New(color.Faint)
	}
	_, _ = c.Fprintf(w, "%s", res.Outcome)

	switch res.Outcome {
	case bootstrap.OutcomeIntegrated:
		fmt.Fprintf(w, ": %d bootstrap services, goredis=%t redigo=%t\n",
			res.Graph.Len(), res.Capabilities.GoRedis, res.Capabilities.Redigo)
	case bootstrap.OutcomeFallback:
		fmt.Fprintf(w, ": diagnostic written to %s", res.DiagnosticPath)
		if res.DiagnosticErr != nil {
			fmt.Fprintf(w, " (failed: %v)", res.DiagnosticErr)
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintln(w)
	}
}

