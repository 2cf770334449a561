package cmd

import (
	"fmt"
	"strconv"
	"time"

	"coffeectl/internal/kube"

	"github.com/spf13/cobra"
)

func newScaleCmd() *cobra.Command {
	var (
		deployment string
		waitFor    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scale REPLICAS",
		Short: "Set the replica count of the application deployment",
		Long: `Sets the replica count of the application deployment, or of the deployment
named with --deployment. A HorizontalPodAutoscaler targeting the deployment
may change the count again.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replicas, err := strconv.ParseInt(args[0], 10, 32)
			if err != nil || replicas < 0 {
				return usageError{fmt.Errorf("replicas must be a non-negative integer, got %q", args[0])}
			}
			if deployment == "" {
				deployment = cfg.Service.Deployment
			}
			clients, err := clusterClients(newKubeManager())
			if err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			previous, err := kube.ScaleDeployment(cmd.Context(), clients.Kube, cfg.Namespace, deployment, int32(replicas))
			if err != nil {
				return err
			}
			p.ok("scaled %s/%s from %d to %d replicas", cfg.Namespace, deployment, previous, replicas)

			if waitFor > 0 {
				if err := kube.WaitForDeploymentAvailable(cmd.Context(), clients.Kube, cfg.Namespace, deployment, waitFor); err != nil {
					return err
				}
				p.ok("%s available", deployment)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&deployment, "deployment", "", "Deployment to scale (default the application deployment)")
	cmd.Flags().DurationVar(&waitFor, "wait", 0, "Wait this long for the deployment to become available")
	return cmd
}
