package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/acme/autodialer/internal/domain"
	"github.com/acme/autodialer/internal/privacy"
	"github.com/acme/autodialer/internal/repository"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

var (
	enqueuePhone    string
	enqueueName     string
	enqueuePriority string
	enqueuePurpose  string
	enqueueAttempts int
	enqueueAt       string
	enqueueConsent  bool
	enqueueFile     string
)

// jobInput is one entry of an enqueue batch file.
type jobInput struct {
	PhoneNumber     string          `json:"phoneNumber"`
	ContactName     string          `json:"contactName"`
	Priority        domain.Priority `json:"priority"`
	ScheduledTime   string          `json:"scheduledTime"`
	MaxAttempts     int             `json:"maxAttempts"`
	Purpose         string          `json:"purpose"`
	ConsentVerified *bool           `json:"consentVerified"`
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Add call jobs to the queue",
	Long: `Add one job from flags, or a batch from a JSON file (--file).

The whole batch is refused when the queue plus the batch would fail the
calling policy or exceed the daily quota. When consent is not given
explicitly it is taken from the consent registry.

Examples:
  autodialer enqueue --phone +15550100 --name "Ada" --purpose "appointment reminder" --priority high
  autodialer enqueue --file jobs.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		registry, err := privacyRegistry(cmd)
		if err != nil {
			return err
		}

		var inputs []jobInput
		if enqueueFile != "" {
			raw, err := os.ReadFile(enqueueFile)
			if err != nil {
				return fmt.Errorf("reading batch file: %w", err)
			}
			if err := json.Unmarshal(raw, &inputs); err != nil {
				return fmt.Errorf("decoding batch file: %w", err)
			}
		} else {
			in := jobInput{
				PhoneNumber:   enqueuePhone,
				ContactName:   enqueueName,
				Priority:      domain.Priority(enqueuePriority),
				ScheduledTime: enqueueAt,
				MaxAttempts:   enqueueAttempts,
				Purpose:       enqueuePurpose,
			}
			if cmd.Flags().Changed("consent") {
				consent := enqueueConsent
				in.ConsentVerified = &consent
			}
			inputs = []jobInput{in}
		}

		jobs, err := toNewJobs(inputs, registry, Container.Location)
		if err != nil {
			return err
		}

		res, err := svc.Enqueue(commandContext(cmd), jobs)
		if err != nil {
			return fmt.Errorf("enqueueing: %w", err)
		}
		out := cmd.OutOrStdout()
		if !res.Accepted {
			fmt.Fprintln(out, "Batch refused:")
			for _, issue := range res.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("%w: batch not enqueued", apperrors.ErrRefused)
		}
		fmt.Fprintf(out, "Added %d job(s):\n", len(res.Jobs))
		for _, job := range res.Jobs {
			fmt.Fprintf(out, "  %s  %s  %s\n", job.ID, job.PhoneNumber, job.Priority)
		}
		return nil
	},
}

func toNewJobs(inputs []jobInput, registry *privacy.Registry, loc *time.Location) ([]domain.NewJob, error) {
	jobs := make([]domain.NewJob, 0, len(inputs))
	for i, in := range inputs {
		job := domain.NewJob{
			PhoneNumber: in.PhoneNumber,
			ContactName: in.ContactName,
			Priority:    in.Priority,
			MaxAttempts: in.MaxAttempts,
			Purpose:     in.Purpose,
		}
		if job.MaxAttempts == 0 {
			job.MaxAttempts = 3
		}
		if in.ScheduledTime != "" {
			at, err := repository.ParseTimestamp(in.ScheduledTime, loc)
			if err != nil {
				return nil, fmt.Errorf("job %d: invalid scheduled time %q: %w", i+1, in.ScheduledTime, err)
			}
			job.ScheduledTime = &at
		}
		if in.ConsentVerified != nil {
			job.ConsentVerified = *in.ConsentVerified
		} else {
			job.ConsentVerified = registry.HasConsent(in.PhoneNumber)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueuePhone, "phone", "", "phone number to call")
	enqueueCmd.Flags().StringVar(&enqueueName, "name", "", "contact name")
	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", string(domain.PriorityMedium), "priority: low, medium or high")
	enqueueCmd.Flags().StringVar(&enqueuePurpose, "purpose", "", "business purpose of the call")
	enqueueCmd.Flags().IntVar(&enqueueAttempts, "attempts", 3, "maximum dial attempts")
	enqueueCmd.Flags().StringVar(&enqueueAt, "at", "", "scheduled time (RFC 3339 or epoch milliseconds)")
	enqueueCmd.Flags().BoolVar(&enqueueConsent, "consent", false, "consent verified (defaults to the consent registry)")
	enqueueCmd.Flags().StringVarP(&enqueueFile, "file", "f", "", "JSON file with an array of jobs")
	rootCmd.AddCommand(enqueueCmd)
}
