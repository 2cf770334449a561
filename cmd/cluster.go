package cmd

import (
	"fmt"

	"coffeectl/internal/cluster"
	"coffeectl/internal/images"
	"coffeectl/internal/prober"

	"github.com/spf13/cobra"
)

func newClusterCmd() *cobra.Command {
	clusterCmd := &cobra.Command{
		Use:   "cluster",
		Short: "Manage the local cluster",
		Long: `Creates, deletes and loads images into the local cluster of the configured
backend. kind and minikube clusters are created on demand; Docker Desktop
must have Kubernetes enabled already.`,
	}
	clusterCmd.AddCommand(newClusterUpCmd(), newClusterDownCmd(), newClusterLoadCmd())
	return clusterCmd
}

func newClusterUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create or start the cluster and switch to its context",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newPrinter(cmd.OutOrStdout())
			r, km := newRunner(), newKubeManager()

			p.header("Checking tools")
			report, err := prober.New(cfg.Cluster, r, km).Tools(ctx)
			p.checks(report.Checks)
			if err != nil {
				return err
			}

			provisioner, err := cluster.New(cfg.Cluster, r, km)
			if err != nil {
				return err
			}
			p.header("Cluster %s (%s)", provisioner.Name(), provisioner.Backend())
			created, err := cluster.Ensure(ctx, provisioner, km)
			if err != nil {
				return err
			}
			if created {
				p.ok("created, context %s", provisioner.ContextName())
			} else {
				p.ok("already running, context %s", provisioner.ContextName())
			}
			return nil
		},
	}
}

func newClusterDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Delete the cluster",
		Long: `Deletes the kind cluster or minikube profile. Deleting a cluster that does
not exist succeeds. Docker Desktop clusters cannot be deleted by coffeectl.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newPrinter(cmd.OutOrStdout())

			provisioner, err := cluster.New(cfg.Cluster, newRunner(), newKubeManager())
			if err != nil {
				return err
			}
			if err := confirm(cmd, fmt.Sprintf("Delete %s cluster %s?", provisioner.Backend(), provisioner.Name())); err != nil {
				return err
			}
			removed, err := cluster.Remove(ctx, provisioner)
			if err != nil {
				return err
			}
			if removed {
				p.ok("cluster %s deleted", provisioner.Name())
			} else {
				p.skipped("cluster %s does not exist", provisioner.Name())
			}
			return nil
		},
	}
}

func newClusterLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [IMAGE...]",
		Short: "Load locally built images into the cluster",
		Long: `Loads the configured images, or the images named as arguments, from the
host docker into the cluster. The images must have been built already.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newPrinter(cmd.OutOrStdout())
			r := newRunner()

			names := args
			if len(names) == 0 {
				names = images.Names(cfg.Images)
			}
			builder := images.NewBuilder(r)
			for _, name := range names {
				ok, err := builder.Exists(ctx, name)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("image %s not found locally, run coffeectl build first", name)
				}
			}

			provisioner, err := cluster.New(cfg.Cluster, r, newKubeManager())
			if err != nil {
				return err
			}
			p.header("Loading %d image(s) into %s", len(names), provisioner.Name())
			if err := cluster.LoadImages(ctx, provisioner, names); err != nil {
				return err
			}
			for _, name := range names {
				p.ok("%s", name)
			}
			return nil
		},
	}
}
