package cmd

import (
	"coffeectl/internal/status"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var outputFormat string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the demo namespace",
		Long: `Shows the pods, services, deployments, autoscalers, resource usage and most
recent events of the demo namespace. Resource usage needs metrics-server;
without it that section is reported as unavailable.

Output formats:
  table - Human-readable tables (default)
  json  - JSON
  yaml  - YAML`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := status.ParseFormat(outputFormat)
			if err != nil {
				return usageError{err}
			}
			clients, err := clusterClients(newKubeManager())
			if err != nil {
				return err
			}

			snap, collectErr := status.NewReporter(clients, cfg.Namespace, cfg.Events.Limit).Collect(cmd.Context())
			if err := status.Render(cmd.OutOrStdout(), snap, format); err != nil {
				return err
			}
			return collectErr
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	return cmd
}
