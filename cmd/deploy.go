package cmd

import (
	"errors"
	"time"

	"coffeectl/internal/deploy"
	"coffeectl/internal/smoketest"

	"github.com/spf13/cobra"
)

func newDeployCmd() *cobra.Command {
	var (
		opts        deploy.Options
		buildOutput bool
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the demo end to end",
		Long: `Runs the whole deployment:

  1. checks docker, kubectl and the backend CLI
  2. creates or reuses the cluster and switches to its context
  3. builds the images and loads them into the cluster
  4. checks that the cluster answers
  5. applies the namespace, database and application tiers, waiting for
     each to become ready with bounded retries
  6. runs the smoke test through a port-forward

The first failure stops the run. Nothing is rolled back; run coffeectl
cleanup to remove a partial deployment.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd.OutOrStdout())
			pipeline := deploy.New(cfg, newRunner(), newKubeManager())
			pipeline.Reporter = p.event
			if buildOutput {
				pipeline.BuildOutput = cmd.OutOrStdout()
			}

			start := time.Now()
			summary, err := pipeline.Run(cmd.Context(), opts)
			if err != nil {
				if summary.Smoke != nil {
					printSmokeSteps(p, *summary.Smoke, err)
				}
				return err
			}

			if summary.Database != nil {
				p.line("database %s (%s), orders table present: %t",
					summary.Database.Database, summary.Database.ServerVersion, summary.Database.OrdersTable)
			}
			if summary.Smoke != nil {
				printSmokeSteps(p, *summary.Smoke, nil)
			}
			p.header("coffee-queue deployed to %s/%s in %s",
				cfg.Cluster.KubeContext(), cfg.Namespace, time.Since(start).Round(time.Second))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.SkipProvision, "skip-provision", false, "Use the cluster as it is, do not create or start it")
	cmd.Flags().BoolVar(&opts.SkipBuild, "skip-build", false, "Do not build and load the images")
	cmd.Flags().BoolVar(&opts.SkipSmoke, "skip-smoke", false, "Do not run the smoke test")
	cmd.Flags().BoolVar(&buildOutput, "build-output", false, "Print docker build output")
	return cmd
}

// printSmokeSteps prints one row per executed step. When err is a step
// failure the last row is the failing step.
func printSmokeSteps(p printer, result smoketest.Result, err error) {
	var stepErr *smoketest.StepError
	failed := errors.As(err, &stepErr)
	for i, s := range result.Steps {
		if failed && i == len(result.Steps)-1 {
			p.fail("%-13s %s %s -> %d (%s)", s.Name, s.Method, s.URL, s.Status, s.Latency.Round(time.Millisecond))
			if s.Body != "" {
				p.line("%s", s.Body)
			}
			continue
		}
		p.ok("%-13s %s %s -> %d (%s)", s.Name, s.Method, s.URL, s.Status, s.Latency.Round(time.Millisecond))
	}
	if result.OrderID != "" {
		p.line("order %s placed for %s", result.OrderID, result.Customer)
	}
}
