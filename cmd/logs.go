package cmd

import (
	"coffeectl/internal/config"
	"coffeectl/internal/kube"

	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var (
		tier string
		opts kube.LogOptions
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the logs of a tier's pods",
		Long: `Prints the logs of every pod of the application or database tier, each line
prefixed with the pod name. With --follow the logs are streamed until
interrupted.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := tierSelector(cfg, tier)
			if err != nil {
				return err
			}
			clients, err := clusterClients(newKubeManager())
			if err != nil {
				return err
			}
			return kube.StreamLogs(cmd.Context(), clients.Kube, cfg.Namespace, selector, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&tier, "tier", config.TierApplication, "Tier whose pods to show: application or database")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Stream the logs")
	cmd.Flags().Int64Var(&opts.TailLines, "tail", 100, "Lines of recent log to show, 0 for all")
	cmd.Flags().StringVarP(&opts.Container, "container", "c", "", "Container name, when pods run more than one")
	return cmd
}
