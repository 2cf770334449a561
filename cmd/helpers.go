package cmd

import (
	"fmt"
	"io"
	"os"

	"coffeectl/internal/config"
	"coffeectl/internal/kube"
	"coffeectl/internal/teardown"

	"github.com/spf13/cobra"
)

// For mocking in tests
var newConfirmer = func(cmd *cobra.Command) teardown.Confirmer {
	return teardown.PromptConfirmer{Stdin: io.NopCloser(os.Stdin), Stdout: cmd.OutOrStdout()}
}

// clusterClients returns the API clients of the configured cluster.
func clusterClients(km kube.Manager) (*kube.Clients, error) {
	kubeContext := cfg.Cluster.KubeContext()
	clients, err := km.Clients(kubeContext)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to context %s: %w", kubeContext, err)
	}
	return clients, nil
}

// confirm asks question unless confirmations are switched off.
func confirm(cmd *cobra.Command, question string) error {
	if cfg.AssumeYes {
		return nil
	}
	ok, err := newConfirmer(cmd).Confirm(question)
	if err != nil {
		return err
	}
	if !ok {
		return teardown.ErrAborted
	}
	return nil
}

// tierSelector returns the label selector of the pods that make up a tier.
func tierSelector(c config.Config, name string) (string, error) {
	tier, ok := c.Tier(name)
	if !ok {
		return "", usageError{fmt.Errorf("unknown tier %q", name)}
	}
	if tier.Wait.Selector != "" {
		return tier.Wait.Selector, nil
	}
	switch name {
	case config.TierApplication:
		return c.Service.Selector, nil
	case config.TierDatabase:
		return c.Database.Selector, nil
	default:
		return "", usageError{fmt.Errorf("tier %q has no pod selector", name)}
	}
}
