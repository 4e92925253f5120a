package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/cacheboot/pkg/bootstrap"
	"github.com/vnykmshr/cacheboot/pkg/container"
)

type graphFlags struct {
	json      bool
	manifests []string
	externs   []string
}

func newGraphCmd(a *app) *cobra.Command {
	f := &graphFlags{}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the bootstrap container override",
		Long: `Graph prints the service graph installed as bootstrap_container_definition,
using the configured invalidator bin and tolerance.

With --manifest, the given service manifests are merged over the bootstrap
graph and every reference is checked. Services provided by the host
container can be declared with --extern.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, a, f)
		},
	}

	cmd.Flags().BoolVar(&f.json, "json", false, "Print JSON instead of YAML")
	cmd.Flags().StringSliceVarP(&f.manifests, "manifest", "m", nil, "Service manifest to merge and check (repeatable)")
	cmd.Flags().StringSliceVar(&f.externs, "extern", nil, "Service names provided by the host container")
	return cmd
}

func runGraph(cmd *cobra.Command, a *app, f *graphFlags) error {
	g, err := bootstrap.Graph(a.cfg.Invalidator.Tolerance, a.cfg.Invalidator.Bin)
	if err != nil {
		return err
	}

	if len(f.manifests) > 0 {
		graphs := []*container.Graph{g}
		for _, m := range f.manifests {
			mg, err := container.LoadManifest(os.DirFS(filepath.Dir(m)), filepath.Base(m))
			if err != nil {
				return err
			}
			graphs = append(graphs, mg)
		}
		g = container.Merge(graphs...)
		if err := g.Validate(f.externs...); err != nil {
			return err
		}
	}

	tree := g.ToTree()
	var data []byte
	if f.json {
		data, err = tree.MarshalJSON()
		if err == nil {
			data = append(data, '\n')
		}
	} else {
		data, err = tree.Encode()
	}
	if err != nil {
		return fmt.Errorf("failed to render graph: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
