package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/acme/autodialer/internal/dialer"
)

var (
	exportOut    string
	historyLimit int
)

var complianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Check the queue against the calling policy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		res := svc.ValidateCompliance()
		out := cmd.OutOrStdout()
		if res.IsCompliant {
			fmt.Fprintln(out, "Compliant.")
			return nil
		}
		fmt.Fprintln(out, "Not compliant:")
		for _, issue := range res.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print call statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		return printStatistics(cmd.OutOrStdout(), svc)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export queue, statistics and settings as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		doc, err := svc.Export()
		if err != nil {
			return err
		}
		if exportOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), doc)
			return nil
		}
		if err := os.WriteFile(exportOut, []byte(doc), 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", exportOut)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <job-id>",
	Short: "Show the recorded attempts of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		attempts, err := svc.History(commandContext(cmd), args[0], historyLimit)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(attempts) == 0 {
			fmt.Fprintln(out, "No attempts recorded.")
			return nil
		}
		for _, a := range attempts {
			fmt.Fprintf(out, "#%d  %s  %-9s  %-9s  %ds  %s\n",
				a.AttemptNumber, a.CreatedAt.Format(time.RFC3339), a.Status, a.Outcome, a.DurationSec, a.Notes)
		}
		return nil
	},
}

func printStatistics(w io.Writer, svc *dialer.Service) error {
	stats := svc.Statistics()
	rate := 0.0
	if stats.TotalCalls > 0 {
		rate = float64(stats.SuccessfulCalls) / float64(stats.TotalCalls) * 100
	}
	fmt.Fprintf(w, "Total calls:      %d\n", stats.TotalCalls)
	fmt.Fprintf(w, "Successful:       %d\n", stats.SuccessfulCalls)
	fmt.Fprintf(w, "Failed:           %d\n", stats.FailedCalls)
	fmt.Fprintf(w, "Success rate:     %.1f%%\n", rate)
	fmt.Fprintf(w, "Average duration: %.0fs\n", stats.AverageDuration)
	return nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum attempts to show")
	rootCmd.AddCommand(complianceCmd, statsCmd, exportCmd, historyCmd)
}
