package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/acme/autodialer/internal/domain"
	"github.com/acme/autodialer/internal/privacy"
)

var (
	consentPurpose   string
	privacyRegion    string
	privacyRetention string
	privacyRecording string
)

var consentCmd = &cobra.Command{
	Use:   "consent",
	Short: "Manage recipient consent and privacy settings",
}

var consentGrantCmd = &cobra.Command{
	Use:   "grant <phone>",
	Short: "Record explicit consent for a number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := privacyRegistry(cmd)
		if err != nil {
			return err
		}
		rec, err := registry.RecordConsent(commandContext(cmd), args[0], consentPurpose)
		if err != nil {
			return fmt.Errorf("recording consent: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Consent recorded for %s (retained %d days)\n", rec.PhoneNumber, rec.DataRetentionPeriod)
		return nil
	},
}

var consentRevokeCmd = &cobra.Command{
	Use:   "revoke <phone>",
	Short: "Revoke consent for a number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := privacyRegistry(cmd)
		if err != nil {
			return err
		}
		removed, err := registry.RevokeConsent(commandContext(cmd), args[0])
		if err != nil {
			return fmt.Errorf("revoking consent: %w", err)
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "No consent on record for %s\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Consent revoked for %s\n", args[0])
		return nil
	},
}

var consentShowCmd = &cobra.Command{
	Use:   "show [phone]",
	Short: "Show consent records and regional requirements",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := privacyRegistry(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			rec, ok := registry.ConsentStatus(args[0])
			if !ok {
				fmt.Fprintf(out, "No consent on record for %s\n", args[0])
				return nil
			}
			return printJSON(out, rec)
		}

		settings := registry.Settings()
		req := registry.Requirements()
		fmt.Fprintf(out, "Region: %s (max retention %d days, implied consent allowed: %t)\n",
			settings.ComplianceRegion, req.MaxRetentionDays, req.AllowsImpliedConsent)
		for _, rec := range registry.Records() {
			fmt.Fprintf(out, "  %-16s  %-11s  %s  %s\n",
				rec.PhoneNumber, rec.ConsentType, rec.ConsentDate.Format(time.RFC3339), rec.RecordingPurpose)
		}
		return nil
	},
}

var consentSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change privacy settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := privacyRegistry(cmd)
		if err != nil {
			return err
		}
		var patch privacy.SettingsPatch
		if cmd.Flags().Changed("region") {
			region := privacy.Region(privacyRegion)
			patch.ComplianceRegion = &region
		}
		if cmd.Flags().Changed("retention") {
			days := domain.ParseIntSetting(privacyRetention, domain.DefaultRetentionDays)
			patch.AutoDeleteAfterDays = &days
		}
		if cmd.Flags().Changed("recording") {
			enabled := privacyRecording == "on" || privacyRecording == "true"
			patch.RecordingEnabled = &enabled
		}
		settings := registry.Settings()
		if patch != (privacy.SettingsPatch{}) {
			if settings, err = registry.UpdateSettings(commandContext(cmd), patch); err != nil {
				return fmt.Errorf("updating privacy settings: %w", err)
			}
		}
		return printJSON(cmd.OutOrStdout(), settings)
	},
}

var consentExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export privacy settings and consent records as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := privacyRegistry(cmd)
		if err != nil {
			return err
		}
		doc, err := registry.Export()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), doc)
		return nil
	},
}

var consentPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all consent records and reset privacy settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := privacyRegistry(cmd)
		if err != nil {
			return err
		}
		if err := registry.DeleteAll(commandContext(cmd)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All privacy data deleted.")
		return nil
	},
}

func init() {
	consentGrantCmd.Flags().StringVar(&consentPurpose, "purpose", "", "recording purpose")
	consentSettingsCmd.Flags().StringVar(&privacyRegion, "region", "", "compliance region: US, EU, CA, AU or GLOBAL")
	consentSettingsCmd.Flags().StringVar(&privacyRetention, "retention", "", "auto-delete after this many days")
	consentSettingsCmd.Flags().StringVar(&privacyRecording, "recording", "", "call recording: on or off")
	consentCmd.AddCommand(consentGrantCmd, consentRevokeCmd, consentShowCmd, consentSettingsCmd, consentExportCmd, consentPurgeCmd)
	rootCmd.AddCommand(consentCmd)
}
