package cmd

import (
	"coffeectl/internal/prober"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify local tools and cluster connectivity",
		Long: `Checks that docker, kubectl and the CLI of the configured cluster backend
are installed, that the docker daemon answers, and that the configured kube
context exists and reaches an API server with at least one Ready node.

The first failed check ends the run with exit code 3 and a hint on how to fix it.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd.OutOrStdout())
			p.header("Checking prerequisites for %s (%s)", cfg.Cluster.KubeContext(), cfg.Cluster.Backend)

			report, err := prober.New(cfg.Cluster, newRunner(), newKubeManager()).Run(cmd.Context())
			p.checks(report.Checks)
			if err != nil {
				return err
			}
			p.ok("all %d checks passed", len(report.Checks))
			return nil
		},
	}
}
