package cmd

import (

	"coffeectl/internal/deploy"
	"coffeectl/internal/smoketest"

	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	var (
		baseURL  string
		customer string
	)
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the smoke test against the deployed service",
		Long: `Calls the service endpoints in order and stops at the first failure:

  GET  /health
  POST /order?name=<customer>
  GET  /status?name=<customer>
  GET  /numberOfCoffees

Without --url the requests go through a port-forward to the application
service, which is closed when the test ends. A failed step exits with code 6.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newPrinter(cmd.OutOrStdout())
			smokeCfg := cfg.Smoke
			if customer != "" {
				smokeCfg.CustomerName = customer
			}

			var (
				result smoketest.Result
				err    error
			)
			if baseURL != "" {
				p.header("Smoke test against %s", baseURL)
				result, err = smoketest.New(baseURL, smokeCfg).Run(ctx)
			} else {
				clients, cerr := clusterClients(newKubeManager())
				if cerr != nil {
					return cerr
				}
				p.header("Smoke test against service %s/%s", cfg.Namespace, cfg.Service.Name)
				testCfg := cfg
				testCfg.Smoke = smokeCfg
				result, err = deploy.RunSmoke(ctx, clients, testCfg)
			}

			printSmokeSteps(p, result, err)
			return err
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Base URL of the service, skips the port-forward")
	cmd.Flags().StringVar(&customer, "name", "", "Customer name for the test order (default smoke-<random>)")
	return cmd
}
