package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/acme/autodialer/internal/events"
	"github.com/acme/autodialer/internal/worker/dispatch"
)

var eventsRecord bool

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with the dispatch event stream",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print dispatch events as they are published",
	Long: `Consume the dispatch event topic and print one line per event until
interrupted. With --record each event is also written to the attempt
history store, which lets a separate process build history for dialers
that run without one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Container == nil {
			return fmt.Errorf("autodialer not initialized")
		}
		if Container.Kafka == nil {
			return fmt.Errorf("kafka is not configured (set kafka.brokers)")
		}
		if eventsRecord && Container.Attempts == nil {
			return fmt.Errorf("no attempt history store is configured")
		}

		out := cmd.OutOrStdout()
		var record dispatch.Handler
		if eventsRecord {
			record = dispatch.RecordAttempts(Container.Attempts)
		}
		handler := func(ctx context.Context, evt events.DispatchEvent) error {
			fmt.Fprintf(out, "%s  %s  #%d/%d  %-9s  %-9s  %ds\n",
				evt.OccurredAt.Format(time.RFC3339), evt.JobID, evt.Attempt, evt.MaxAttempts, evt.Status, evt.Outcome, evt.DurationSec)
			if record != nil {
				return record(ctx, evt)
			}
			return nil
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := Container.Config.Kafka
		w := dispatch.New(Container.Kafka, cfg.EventsTopic, cfg.ConsumerGroup, handler, Container.Logger)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	eventsTailCmd.Flags().BoolVar(&eventsRecord, "record", false, "also append each event to the attempt history")
	eventsCmd.AddCommand(eventsTailCmd)
	rootCmd.AddCommand(eventsCmd)
}
