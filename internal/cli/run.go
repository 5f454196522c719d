package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/acme/autodialer/internal/dialer"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

const stopGrace = 10 * time.Second

var runAssumeYes bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dialer and dispatch the queue",
	Long: `Check the calling policy, show the legal notice and, once confirmed,
dispatch eligible jobs one at a time until the queue is exhausted.

Interrupt (Ctrl-C) stops the run. A call in progress returns to pending and
is dialled again on the next run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var confirmer dialer.Confirmer
		if runAssumeYes {
			confirmer = dialer.ConfirmFunc(func(context.Context, string, string) (bool, error) { return true, nil })
		} else {
			in := cmd.InOrStdin()
			if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
				return fmt.Errorf("%w: stdin is not a terminal; pass --yes to acknowledge the notice", apperrors.ErrValidation)
			}
			confirmer = terminalConfirmer(in, cmd.ErrOrStderr())
		}

		res, err := svc.Start(ctx, confirmer)
		if err != nil {
			return fmt.Errorf("starting dialer: %w", err)
		}
		out := cmd.OutOrStdout()
		if !res.Compliance.IsCompliant {
			fmt.Fprintln(out, "Compliance check failed:")
			for _, issue := range res.Compliance.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("%w: dialer not started", apperrors.ErrRefused)
		}
		if !res.Started {
			fmt.Fprintln(out, "Start cancelled.")
			return nil
		}

		fmt.Fprintf(out, "Dialing %d eligible job(s). Press Ctrl-C to stop.\n", len(svc.Eligible()))
		select {
		case <-svc.Done():
		case <-ctx.Done():
			svc.Stop(context.WithoutCancel(ctx))
			waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopGrace)
			defer cancel()
			if err := svc.Wait(waitCtx); err != nil {
				return fmt.Errorf("waiting for dialer to stop: %w", err)
			}
			fmt.Fprintln(out, "Stopped.")
		}

		return printStatistics(out, svc)
	},
}

// terminalConfirmer prints the notice to w and reads a y/N answer from r.
func terminalConfirmer(r io.Reader, w io.Writer) dialer.Confirmer {
	return dialer.ConfirmFunc(func(ctx context.Context, title, notice string) (bool, error) {
		fmt.Fprintf(w, "%s\n\n%s\n\nProceed? [y/N] ", title, notice)
		line, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, fmt.Errorf("reading confirmation: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}

func init() {
	runCmd.Flags().BoolVarP(&runAssumeYes, "yes", "y", false, "acknowledge the legal notice without prompting")
	rootCmd.AddCommand(runCmd)
}
