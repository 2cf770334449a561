package cmd

import (
	"time"

	"coffeectl/internal/dbcheck"
	"coffeectl/internal/deploy"

	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the demo database",
	}
	dbCmd.AddCommand(newDBCheckCmd())
	return dbCmd
}

func newDBCheckCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Connect to the database and report on it",
		Long: `Connects to PostgreSQL through a port-forward to the database service,
runs a round-trip query and reports the server version and whether the
orders table exists. With --dsn the given database is checked directly.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newPrinter(cmd.OutOrStdout())

			var (
				info dbcheck.Info
				err  error
			)
			if dsn != "" {
				p.header("Checking database")
				info, err = dbcheck.Check(ctx, dsn)
			} else {
				clients, cerr := clusterClients(newKubeManager())
				if cerr != nil {
					return cerr
				}
				p.header("Checking database %s/%s", cfg.Namespace, cfg.Database.Service)
				info, err = deploy.CheckDatabase(ctx, clients, cfg)
			}
			if err != nil {
				return err
			}

			p.ok("connected to %s as %s in %s", info.Database, info.User, info.Latency.Round(time.Millisecond))
			p.line("server version %s", info.ServerVersion)
			if info.OrdersTable {
				p.ok("table %s has %d row(s)", dbcheck.OrdersTable, info.Orders)
			} else {
				p.skipped("table %s does not exist yet", dbcheck.OrdersTable)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Connection URL, skips the port-forward")
	return cmd
}
