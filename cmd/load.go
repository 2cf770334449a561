package cmd

import (
	"fmt"
	"sort"
	"time"

	"coffeectl/internal/loadtest"
	"coffeectl/internal/portforward"

	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Send a burst of requests to exercise the autoscaler",
		Long: `Sends --requests GET requests with at most --concurrency in flight to the
application, through a port-forward unless --url is given. Failed requests
are counted, they do not stop the burst. Watch the autoscaler react with
coffeectl status.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()
			loadCfg := cfg.Load
			if flags.Changed("requests") {
				loadCfg.Requests, _ = flags.GetInt("requests")
			}
			if flags.Changed("concurrency") {
				loadCfg.Concurrency, _ = flags.GetInt("concurrency")
			}
			if flags.Changed("path") {
				loadCfg.Path, _ = flags.GetString("path")
			}
			if loadCfg.Requests < 1 {
				return usageError{fmt.Errorf("--requests must be at least 1")}
			}

			run := func(url string) error {
				gen := loadtest.New(url, loadCfg, timeout)
				p := newPrinter(cmd.OutOrStdout())
				p.header("Sending %d requests to %s, %d at a time", loadCfg.Requests, gen.Target(), loadCfg.Concurrency)
				summary, err := gen.Run(ctx)
				printLoadSummary(p, summary)
				return err
			}

			if baseURL != "" {
				return run(baseURL)
			}
			clients, err := clusterClients(newKubeManager())
			if err != nil {
				return err
			}
			target := portforward.Target{
				Namespace: cfg.Namespace,
				Service:   cfg.Service.Name,
				Port:      cfg.Service.Port,
				LocalPort: cfg.Service.LocalPort,
			}
			return portforward.With(ctx, clients, target, func(s *portforward.Session) error {
				return run(s.LocalURL())
			})
		},
	}
	cmd.Flags().Int("requests", 0, "Number of requests (default from config)")
	cmd.Flags().Int("concurrency", 0, "Requests in flight at once (default from config)")
	cmd.Flags().String("path", "", "Request path (default from config)")
	cmd.Flags().StringVar(&baseURL, "url", "", "Base URL of the service, skips the port-forward")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout of each request")
	return cmd
}

func printLoadSummary(p printer, s loadtest.Summary) {
	if s.Failures == 0 {
		p.ok("%d/%d requests succeeded in %s", s.Successes, s.Total, s.Elapsed.Round(time.Millisecond))
	} else {
		p.fail("%d/%d requests failed in %s", s.Failures, s.Total, s.Elapsed.Round(time.Millisecond))
	}
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		p.line("HTTP %d: %d", code, s.StatusCodes[code])
	}
	if s.Errors > 0 {
		p.line("no response: %d", s.Errors)
	}
	p.line("latency min %s, avg %s, p95 %s, max %s",
		s.MinLatency.Round(time.Millisecond), s.AvgLatency.Round(time.Millisecond),
		s.P95Latency.Round(time.Millisecond), s.MaxLatency.Round(time.Millisecond))
}
