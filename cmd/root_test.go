package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"coffeectl/internal/cluster"
	"coffeectl/internal/config"
	"coffeectl/internal/manifest"
	"coffeectl/internal/prober"
	"coffeectl/internal/smoketest"
	"coffeectl/internal/teardown"

	"github.com/spf13/cobra"
)

func TestSetVersion(t *testing.T) {
	// Test setting version
	testVersion := "1.2.3-test"
	SetVersion(testVersion)

	if rootCmd.Version != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, rootCmd.Version)
	}
}

func TestRootCommand(t *testing.T) {
	// Test root command properties
	if rootCmd.Use != "coffeectl" {
		t.Errorf("Expected Use to be 'coffeectl', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if rootCmd.Long == "" {
		t.Error("Expected Long description to be set")
	}

	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}

	for _, name := range []string{"cluster", "backend", "context", "namespace", "log-level", "log-format", "yes"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag --%s", name)
		}
	}
}

func TestVersionTemplate(t *testing.T) {
	// Create a new command to test version template
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}

	// Set the same version template as in init()
	testCmd.SetVersionTemplate(`{{printf "coffeectl version %s\n" .Version}}`)

	// Capture output
	var buf bytes.Buffer
	testCmd.SetOut(&buf)

	// Execute version command
	testCmd.SetArgs([]string{"--version"})
	err := testCmd.Execute()
	if err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	output := buf.String()
	expected := "coffeectl version 1.0.0\n"
	if output != expected {
		t.Errorf("Expected version output %q, got %q", expected, output)
	}
}

func TestSubcommands(t *testing.T) {
	// Test that subcommands are added
	commands := rootCmd.Commands()

	expectedCommands := []string{
		"version", "check", "cluster", "build", "deploy", "test",
		"status", "logs", "scale", "load", "db", "cleanup",
	}
	foundCommands := make(map[string]bool)

	for _, cmd := range commands {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("Expected subcommand %s not found", expected)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"generic", errors.New("boom"), ExitGeneric},
		{"aborted", teardown.ErrAborted, ExitGeneric},
		{"usage", usageError{errors.New("bad flag")}, ExitUsage},
		{"unknown command", errors.New(`unknown command "brew" for "coffeectl"`), ExitUsage},
		{"prerequisite", fmt.Errorf("deploy: %w", &prober.PrerequisiteError{Check: prober.Check{Name: "kind installed"}}), ExitPrerequisite},
		{"provisioning", &cluster.ProvisionError{Backend: config.BackendKind, Op: "create cluster", Err: errors.New("exit status 1")}, ExitProvisioning},
		{"readiness", &manifest.TierTimeoutError{Tier: "database", Attempts: 3, Err: errors.New("timed out")}, ExitReadiness},
		{"smoke test", &smoketest.StepError{Step: smoketest.StepHealth, Status: 503}, ExitSmokeTest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestReportError(t *testing.T) {
	t.Run("prerequisite hint", func(t *testing.T) {
		var buf bytes.Buffer
		reportError(rootCmd, &buf, &prober.PrerequisiteError{Check: prober.Check{Name: "kind installed", Hint: "install kind from https://kind.sigs.k8s.io"}})
		if !strings.Contains(buf.String(), "hint: install kind") {
			t.Errorf("Expected hint in output, got %q", buf.String())
		}
	})

	t.Run("provisioning output", func(t *testing.T) {
		var buf bytes.Buffer
		reportError(rootCmd, &buf, &cluster.ProvisionError{Backend: config.BackendKind, Op: "create cluster", Output: "port 6443 already in use"})
		if !strings.Contains(buf.String(), "port 6443 already in use") {
			t.Errorf("Expected tool output, got %q", buf.String())
		}
	})

	t.Run("unknown command prints usage", func(t *testing.T) {
		var buf bytes.Buffer
		reportError(rootCmd, &buf, errors.New(`unknown command "brew" for "coffeectl"`))
		if !strings.Contains(buf.String(), "Usage:") {
			t.Errorf("Expected usage, got %q", buf.String())
		}
	})
}
