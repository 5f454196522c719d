package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acme/autodialer/internal/domain"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the calling policy",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the calling policy as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), svc.Settings())
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key=value> [key=value...]",
	Short: "Change calling policy fields",
	Long: `Change one or more calling policy fields.

Keys: enabled, maxConcurrentCalls, delayBetweenCalls, maxDailyAttempts,
respectDoNotCall, requireConsent, businessHoursOnly, businessHours.start,
businessHours.end, allowedDays (comma separated, 0=Sunday), complianceMode.

Numeric values that are not positive integers fall back to their defaults.

Examples:
  autodialer settings set maxDailyAttempts=50 businessHours.start=08:30
  autodialer settings set allowedDays=1,2,3,4,5,6`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := dialerService(cmd)
		if err != nil {
			return err
		}
		patch, err := parseSettingsPatch(args, svc.Settings())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), svc.UpdateSettings(commandContext(cmd), patch))
	},
}

func parseSettingsPatch(args []string, current domain.Settings) (domain.SettingsPatch, error) {
	var patch domain.SettingsPatch
	hours := current.BusinessHours
	hoursChanged := false

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return patch, fmt.Errorf("%w: expected key=value, got %q", apperrors.ErrValidation, arg)
		}
		value = strings.TrimSpace(value)

		switch key {
		case "enabled", "respectDoNotCall", "requireConsent", "businessHoursOnly":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return patch, fmt.Errorf("%w: %s must be true or false", apperrors.ErrValidation, key)
			}
			switch key {
			case "enabled":
				patch.Enabled = &b
			case "respectDoNotCall":
				patch.RespectDoNotCall = &b
			case "requireConsent":
				patch.RequireConsent = &b
			default:
				patch.BusinessHoursOnly = &b
			}
		case "maxConcurrentCalls":
			n := domain.ParseIntSetting(value, 1)
			patch.MaxConcurrentCalls = &n
		case "delayBetweenCalls":
			n := domain.ParseIntSetting(value, domain.DefaultDelayBetweenCalls)
			patch.DelayBetweenCalls = &n
		case "maxDailyAttempts":
			n := domain.ParseIntSetting(value, domain.DefaultMaxDailyAttempts)
			patch.MaxDailyAttempts = &n
		case "businessHours.start":
			hours.Start = value
			hoursChanged = true
		case "businessHours.end":
			hours.End = value
			hoursChanged = true
		case "allowedDays":
			days, err := parseDays(value)
			if err != nil {
				return patch, err
			}
			patch.AllowedDays = days
		case "complianceMode":
			mode := domain.ComplianceMode(value)
			switch mode {
			case domain.ComplianceStrict, domain.ComplianceStandard, domain.ComplianceMinimal:
			default:
				return patch, fmt.Errorf("%w: unknown compliance mode %q", apperrors.ErrValidation, value)
			}
			patch.ComplianceMode = &mode
		default:
			return patch, fmt.Errorf("%w: unknown setting %q", apperrors.ErrValidation, key)
		}
	}

	if hoursChanged {
		patch.BusinessHours = &hours
	}
	return patch, nil
}

func parseDays(raw string) ([]int, error) {
	days := []int{}
	if raw == "" {
		return days, nil
	}
	for _, part := range strings.Split(raw, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: allowed day %q must be 0-6", apperrors.ErrValidation, part)
		}
		days = append(days, d)
	}
	return days, nil
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
