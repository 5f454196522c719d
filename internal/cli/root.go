// Package cli implements the autodialer command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/acme/autodialer/internal/app"
	"github.com/acme/autodialer/internal/dialer"
	"github.com/acme/autodialer/internal/privacy"
)

var (
	appVersion = "dev"
	appCommit  = "none"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit string) {
	appVersion = version
	appCommit = commit
}

var configPath string

// Container is the wired application. Commands build it on first use; tests
// may assign one directly.
var Container *app.Container

var ownsContainer bool

var rootCmd = &cobra.Command{
	Use:   "autodialer",
	Short: "Compliance-gated automated call queue",
	Long: `autodialer keeps a queue of outbound call jobs, checks them against a
calling policy (consent, business hours, allowed days, daily quota) and
dispatches them one at a time to a simulated telephony provider.

Queue, settings and statistics persist in the configured storage backend and
survive restarts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if Container != nil || cmd.Annotations["skipContainer"] == "true" {
			return nil
		}
		c, err := app.Build(commandContext(cmd), configPath)
		if err != nil {
			return fmt.Errorf("initializing autodialer: %w", err)
		}
		Container = c
		ownsContainer = true
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Annotations: map[string]string{"skipContainer": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "autodialer %s\ncommit: %s\n", appVersion, appCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and releases the container afterwards.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if ownsContainer && Container != nil {
		if cerr := Container.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
		Container = nil
		ownsContainer = false
	}
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func dialerService(cmd *cobra.Command) (*dialer.Service, error) {
	if Container == nil {
		return nil, fmt.Errorf("autodialer not initialized")
	}
	return Container.Dialer(commandContext(cmd), terminalNotifier{w: cmd.ErrOrStderr()})
}

func privacyRegistry(cmd *cobra.Command) (*privacy.Registry, error) {
	if Container == nil {
		return nil, fmt.Errorf("autodialer not initialized")
	}
	return Container.Privacy(commandContext(cmd)), nil
}

type terminalNotifier struct {
	w io.Writer
}

func (n terminalNotifier) Notify(title, message string) {
	fmt.Fprintf(n.w, "%s: %s\n", title, message)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
