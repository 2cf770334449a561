package cmd

import (
	"fmt"
	"time"

	"coffeectl/internal/cluster"
	"coffeectl/internal/config"
	"coffeectl/internal/manifest"
	"coffeectl/internal/teardown"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
)

func newCleanupCmd() *cobra.Command {
	var (
		opts          teardown.Options
		manifestsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove the demo from the cluster",
		Long: `Deletes the demo namespace and, with --delete-cluster, the cluster itself.
With --manifests-only the applied manifests are deleted tier by tier in
reverse order and the namespace is kept.

Asks for confirmation unless --yes is given or COFFEECTL_ASSUME_YES is set.
Removing something that is already gone succeeds.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestsOnly && opts.DeleteCluster {
				return usageError{fmt.Errorf("--manifests-only and --delete-cluster are mutually exclusive")}
			}
			ctx := cmd.Context()
			p := newPrinter(cmd.OutOrStdout())
			r, km := newRunner(), newKubeManager()

			if manifestsOnly {
				if err := confirm(cmd, fmt.Sprintf("Delete the demo manifests from namespace %s?", cfg.Namespace)); err != nil {
					return err
				}
				clients, err := clusterClients(km)
				if err != nil {
					return err
				}
				applier := manifest.New(r, clients.Kube, cfg.Cluster.KubeContext(), cfg.Namespace)
				if err := applier.Delete(ctx, manifestTiers(cfg.Tiers)); err != nil {
					return err
				}
				p.ok("manifests deleted from %s", cfg.Namespace)
				return nil
			}

			provisioner, err := cluster.New(cfg.Cluster, r, km)
			if err != nil {
				return err
			}
			td := &teardown.Teardown{
				Namespace:   cfg.Namespace,
				Provisioner: provisioner,
				Clientset: func() (kubernetes.Interface, error) {
					clients, err := clusterClients(km)
					if err != nil {
						return nil, err
					}
					return clients.Kube, nil
				},
				Confirmer: newConfirmer(cmd),
				AssumeYes: cfg.AssumeYes,
			}
			result, err := td.Run(ctx, opts)
			if err != nil {
				return err
			}

			switch {
			case result.NamespaceDeleted:
				p.ok("namespace %s deleted", cfg.Namespace)
			case result.ClusterStopped:
				p.skipped("namespace %s skipped, cluster %s is not running", cfg.Namespace, provisioner.Name())
			default:
				p.skipped("namespace %s not found", cfg.Namespace)
			}
			if opts.DeleteCluster {
				if result.ClusterDeleted {
					p.ok("cluster %s deleted", provisioner.Name())
				} else {
					p.skipped("cluster %s not found", provisioner.Name())
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.DeleteCluster, "delete-cluster", false, "Also delete the cluster")
	cmd.Flags().BoolVar(&manifestsOnly, "manifests-only", false, "Delete the applied manifests but keep the namespace")
	cmd.Flags().DurationVar(&opts.WaitTimeout, "wait", 2*time.Minute, "Wait this long for the namespace to disappear, 0 to not wait")
	return cmd
}

// manifestTiers drops the namespace tier: deleting its manifests could take
// the namespace and everything in it along.
func manifestTiers(tiers []config.TierDefinition) []config.TierDefinition {
	out := make([]config.TierDefinition, 0, len(tiers))
	for _, t := range tiers {
		if t.Name != config.TierNamespace {
			out = append(out, t)
		}
	}
	return out
}
