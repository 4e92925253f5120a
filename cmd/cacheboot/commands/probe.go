package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/cacheboot/pkg/bootstrap"
	"github.com/vnykmshr/cacheboot/pkg/driver"
	"github.com/vnykmshr/cacheboot/pkg/logging"
)

// ErrNoServers is returned by probe --ping when the settings list no servers
var ErrNoServers = errors.New("no redis.servers configured")

type probeFlags struct {
	ping     bool
	settings string
	timeout  time.Duration
}

func newProbeCmd(a *app) *cobra.Command {
	f := &probeFlags{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Show the compiled-in client libraries",
		Long: `Probe lists the cache client libraries compiled into this binary, which is
what the selector's capability check sees.

With --ping it also connects to every server listed under redis.servers in
--settings through the preferred library and sends PING.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, a, f)
		},
	}

	cmd.Flags().BoolVar(&f.ping, "ping", false, "Ping the configured servers")
	cmd.Flags().StringVarP(&f.settings, "settings", "s", "", "Settings file listing redis.servers (required with --ping)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "Overall ping timeout")
	return cmd
}

func runProbe(cmd *cobra.Command, a *app, f *probeFlags) error {
	reg := driver.Default()
	out := cmd.OutOrStdout()

	for _, name := range []string{driver.GoRedis, driver.Redigo} {
		mark := color.New(color.FgRed).Sprint("missing")
		if reg.Registered(name) {
			mark = color.New(color.FgGreen).Sprint("present")
		}
		fmt.Fprintf(out, "%-8s %s\n", name, mark)
	}

	if !f.ping {
		return nil
	}
	if f.settings == "" {
		return errors.New("--settings is required with --ping")
	}

	tree, err := readSettings(f.settings)
	if err != nil {
		return err
	}
	endpoints := bootstrap.Endpoints(tree)
	if len(endpoints) == 0 {
		return ErrNoServers
	}

	d, err := reg.Preferred()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()

	client, err := d.Dial(ctx, endpoints, a.cfg.DriverOptions())
	if err != nil {
		return fmt.Errorf("failed to dial with %s: %w", d.Name, err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx); err != nil {
		a.logger.Warn("ping failed", logging.F("driver", d.Name), logging.F("error", err))
		return fmt.Errorf("ping via %s failed: %w", d.Name, err)
	}
	fmt.Fprintf(out, "ping     %s via %s (%d endpoints)\n", color.New(color.FgGreen).Sprint("ok"), d.Name, len(endpoints))
	return nil
}
