package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"coffeectl/internal/cluster"
	"coffeectl/internal/color"
	"coffeectl/internal/config"
	"coffeectl/internal/kube"
	"coffeectl/internal/manifest"
	"coffeectl/internal/prober"
	"coffeectl/internal/runner"
	"coffeectl/internal/smoketest"
	"coffeectl/pkg/logging"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Exit codes of the coffeectl binary.
const (
	ExitOK           = 0
	ExitGeneric      = 1
	ExitUsage        = 2
	ExitPrerequisite = 3
	ExitProvisioning = 4
	ExitReadiness    = 5
	ExitSmokeTest    = 6
)

// skipConfigAnnotation marks commands that run without loading configuration.
const skipConfigAnnotation = "coffeectl/skip-config"

var (
	clusterNameFlag string
	backendFlag     string
	contextFlag     string
	namespaceFlag   string
	logLevelFlag    string
	logFormatFlag   string
	assumeYesFlag   bool
)

// cfg is the configuration loaded for the running command.
var cfg config.Config

// For mocking in tests
var (
	loadConfig     = config.LoadConfig
	newRunner      = func() runner.Runner { return runner.Logging{Runner: runner.New()} }
	newKubeManager = kube.NewManager
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "coffeectl",
	Short: "Deploy the coffee-queue demo to a local Kubernetes cluster",
	Long: `coffeectl deploys the coffee-queue demo (an HTTP ordering API backed by
PostgreSQL) to a local kind, minikube or Docker Desktop cluster, verifies it
with a smoke test, reports on it and tears it down again.

Configuration is read from ~/.config/coffeectl/config.yaml,
./.coffeectl/config.yaml, a .env file and the environment, in that order.
Flags override all of them.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(rootCmd, os.Stderr, err)
		os.Exit(ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&clusterNameFlag, "cluster", "", "Cluster name (default coffee-queue)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Cluster backend: kind, minikube or docker-desktop")
	rootCmd.PersistentFlags().StringVar(&contextFlag, "context", "", "Kubeconfig context (derived from the backend when empty)")
	rootCmd.PersistentFlags().StringVarP(&namespaceFlag, "namespace", "n", "", "Namespace of the demo (default coffee-queue)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&assumeYesFlag, "yes", "y", false, "Do not ask for confirmation")

	rootCmd.SetVersionTemplate(`{{printf "coffeectl version %s\n" .Version}}`)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newClusterCmd())
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newScaleCmd())
	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newDBCmd())
	rootCmd.AddCommand(newCleanupCmd())
}

// setup initializes logging and loads the configuration for every command.
func setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(logLevelFlag)
	if err != nil {
		return usageError{err}
	}
	format := logging.Format(strings.ToLower(logFormatFlag))
	if format != logging.FormatText && format != logging.FormatJSON {
		return usageError{fmt.Errorf("unknown log format %q", logFormatFlag)}
	}
	logging.Init(level, format, cmd.ErrOrStderr())
	color.Initialize(lipgloss.HasDarkBackground())

	if !needsConfig(cmd) {
		return nil
	}

	loaded, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg, err = config.ApplyOverrides(loaded, config.Overrides{
		ClusterName: clusterNameFlag,
		Backend:     strings.ToLower(backendFlag),
		Context:     contextFlag,
		Namespace:   namespaceFlag,
		AssumeYes:   assumeYesFlag,
	})
	if err != nil {
		return usageError{err}
	}
	logging.Debug("Config", "Using cluster %s (%s), context %s, namespace %s",
		cfg.Cluster.Name, cfg.Cluster.Backend, cfg.Cluster.KubeContext(), cfg.Namespace)
	return nil
}

// needsConfig reports whether cmd works on the demo and therefore needs the
// loaded configuration. help, completion and version do not.
func needsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return false
		}
		switch c.Name() {
		case "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd, "completion":
			return false
		}
	}
	return true
}

// usageError marks errors caused by how coffeectl was invoked.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func isUnknownCommand(err error) bool {
	return strings.HasPrefix(err.Error(), "unknown command")
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		usage   usageError
		prereq  *prober.PrerequisiteError
		prov    *cluster.ProvisionError
		timeout *manifest.TierTimeoutError
		step    *smoketest.StepError
	)
	switch {
	case errors.As(err, &usage), isUnknownCommand(err):
		return ExitUsage
	case errors.As(err, &prereq):
		return ExitPrerequisite
	case errors.As(err, &prov):
		return ExitProvisioning
	case errors.As(err, &timeout):
		return ExitReadiness
	case errors.As(err, &step):
		return ExitSmokeTest
	default:
		return ExitGeneric
	}
}

// reportError prints err with whatever remediation the error carries.
func reportError(cmd *cobra.Command, w io.Writer, err error) {
	p := newPrinter(w)
	p.errorLine(err)

	var (
		usage   usageError
		prereq  *prober.PrerequisiteError
		prov    *cluster.ProvisionError
		timeout *manifest.TierTimeoutError
		apply   *manifest.ApplyError
	)
	switch {
	case isUnknownCommand(err), errors.As(err, &usage):
		fmt.Fprintln(w)
		fmt.Fprint(w, cmd.UsageString())
	case errors.As(err, &prereq):
		p.hint(prereq.Hint())
	case errors.As(err, &prov):
		p.output(prov.Output)
		p.hint(prov.Hint)
	case errors.As(err, &timeout):
		p.output(timeout.Diagnostics.String())
	case errors.As(err, &apply):
		p.output(apply.Output)
	}
}
