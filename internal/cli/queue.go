package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/acme/autodialer/internal/domain"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

var (
	queueEligibleOnly bool
	queueJSON         bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and edit the call queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued jobs in insertion order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		jobs := svc.Queue()
		if queueEligibleOnly {
			jobs = svc.Eligible()
		}
		out := cmd.OutOrStdout()
		if queueJSON {
			return printJSON(out, jobs)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(out, "Queue is empty.")
			return nil
		}
		printJobs(out, jobs)
		return nil
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a job from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		if !svc.Remove(commandContext(cmd), args[0]) {
			return fmt.Errorf("%w: job %s", apperrors.ErrNotFound, args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		job, err := svc.Cancel(commandContext(cmd), args[0])
		if err != nil {
			return fmt.Errorf("cancelling %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s (%s)\n", job.ID, job.PhoneNumber)
		return nil
	},
}

func printJobs(w io.Writer, jobs []domain.CallJob) {
	fmt.Fprintf(w, "%-36s  %-16s  %-8s  %-9s  %-8s  %s\n", "ID", "PHONE", "PRIORITY", "STATUS", "ATTEMPTS", "CONTACT")
	for _, job := range jobs {
		fmt.Fprintf(w, "%-36s  %-16s  %-8s  %-9s  %d/%-6d  %s\n",
			job.ID, job.PhoneNumber, job.Priority, job.Status, job.CurrentAttempts, job.MaxAttempts, job.ContactName)
	}
}

func init() {
	queueListCmd.Flags().BoolVar(&queueEligibleOnly, "eligible", false, "only jobs that can still be dispatched")
	queueListCmd.Flags().BoolVar(&queueJSON, "json", false, "print JSON")
	queueCmd.AddCommand(queueListCmd, queueRemoveCmd, queueCancelCmd)
	rootCmd.AddCommand(queueCmd)
}
