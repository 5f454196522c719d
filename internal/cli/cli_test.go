package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/acme/autodialer/internal/app"
	"github.com/acme/autodialer/internal/clock"
	"github.com/acme/autodialer/internal/domain"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

// Tuesday inside default business hours.
var testNow = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func setupContainer(t *testing.T) *app.Container {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "storage:\n  backend: memory\ndialer:\n  time_zone: UTC\n  dispatch_delay: 0s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := app.Build(context.Background(), path)
	if err != nil {
		t.Fatalf("build container: %v", err)
	}
	c.Clock = clock.Fake(testNow)

	orig := Container
	Container = c
	t.Cleanup(func() {
		Container = orig
		_ = c.Close(context.Background())
	})
	return c
}

func capture(cmd *cobra.Command) (*bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetContext(context.Background())
	return &out, &errOut
}

func resetEnqueueFlags() {
	enqueuePhone, enqueueName, enqueuePurpose, enqueueAt, enqueueFile = "", "", "", "", ""
	enqueuePriority = string(domain.PriorityMedium)
	enqueueAttempts = 3
	enqueueConsent = false
	_ = enqueueCmd.Flags().Set("consent", "false")
	enqueueCmd.Flags().Lookup("consent").Changed = false
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"enqueue": false, "queue": false, "run": false, "settings": false, "stats": false, "export": false, "history": false, "compliance": false, "consent": false, "version": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q command to be registered", name)
		}
	}
}

func TestCommandsRequireContainer(t *testing.T) {
	orig := Container
	Container = nil
	defer func() { Container = orig }()

	capture(statsCmd)
	err := statsCmd.RunE(statsCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestEnqueueTakesConsentFromRegistry(t *testing.T) {
	setupContainer(t)
	resetEnqueueFlags()
	defer resetEnqueueFlags()

	capture(consentGrantCmd)
	if err := consentGrantCmd.RunE(consentGrantCmd, []string{"+15550100"}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	out, _ := capture(enqueueCmd)
	enqueuePhone = "+15550100"
	enqueuePurpose = "appointment reminder"
	if err := enqueueCmd.RunE(enqueueCmd, nil); err != nil {
		t.Fatalf("enqueue consented number: %v", err)
	}
	if !strings.Contains(out.String(), "Added 1 job(s)") {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	enqueuePhone = "+15550199"
	err := enqueueCmd.RunE(enqueueCmd, nil)
	if err == nil {
		t.Fatalf("expected unconsented batch to be refused")
	}
	if !strings.Contains(out.String(), "consent") {
		t.Fatalf("refusal should name the consent issue, got %q", out.String())
	}

	queueOut, _ := capture(queueListCmd)
	if err := queueListCmd.RunE(queueListCmd, nil); err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Count(queueOut.String(), "+1555") != 1 {
		t.Fatalf("expected exactly one queued job, got %q", queueOut.String())
	}
}

func TestEnqueueBatchFile(t *testing.T) {
	setupContainer(t)
	resetEnqueueFlags()
	defer resetEnqueueFlags()

	path := filepath.Join(t.TempDir(), "jobs.json")
	batch := `[
		{"phoneNumber":"+1","purpose":"survey","priority":"high","consentVerified":true,"maxAttempts":2},
		{"phoneNumber":"+2","purpose":"survey","scheduledTime":"2024-01-02T09:00:00Z","consentVerified":true}
	]`
	if err := os.WriteFile(path, []byte(batch), 0o644); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	enqueueFile = path

	out, _ := capture(enqueueCmd)
	if err := enqueueCmd.RunE(enqueueCmd, nil); err != nil {
		t.Fatalf("enqueue batch: %v", err)
	}
	if !strings.Contains(out.String(), "Added 2 job(s)") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunDrainsQueue(t *testing.T) {
	setupContainer(t)
	defer func() { runAssumeYes = false }()
	runAssumeYes = true

	out, errOut := capture(runCmd)
	if err := runCmd.RunE(runCmd, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(errOut.String(), "Queue Complete") {
		t.Fatalf("expected queue complete notice, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), "Total calls:      0") {
		t.Fatalf("expected statistics, got %q", out.String())
	}
}

func TestTerminalConfirmer(t *testing.T) {
	var prompt bytes.Buffer
	ok, err := terminalConfirmer(strings.NewReader("yes\n"), &prompt).Confirm(context.Background(), "Title", "Notice")
	if err != nil || !ok {
		t.Fatalf("expected confirmation, got ok=%v err=%v", ok, err)
	}
	if !strings.Contains(prompt.String(), "Notice") {
		t.Fatalf("notice not shown: %q", prompt.String())
	}

	ok, err = terminalConfirmer(strings.NewReader(""), &prompt).Confirm(context.Background(), "Title", "Notice")
	if err != nil || ok {
		t.Fatalf("empty answer must decline, got ok=%v err=%v", ok, err)
	}
}

func TestParseSettingsPatch(t *testing.T) {
	current := domain.DefaultSettings()
	patch, err := parseSettingsPatch([]string{"maxDailyAttempts=abc", "delayBetweenCalls=45", "businessHours.start=08:30", "allowedDays=1,2,6", "requireConsent=false"}, current)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := patch.Apply(current)
	if got.MaxDailyAttempts != domain.DefaultMaxDailyAttempts {
		t.Errorf("MaxDailyAttempts = %d, want fallback %d", got.MaxDailyAttempts, domain.DefaultMaxDailyAttempts)
	}
	if got.DelayBetweenCalls != 45 {
		t.Errorf("DelayBetweenCalls = %d, want 45", got.DelayBetweenCalls)
	}
	if got.BusinessHours.Start != "08:30" || got.BusinessHours.End != "17:00" {
		t.Errorf("BusinessHours = %+v", got.BusinessHours)
	}
	if len(got.AllowedDays) != 3 || got.AllowedDays[2] != 6 {
		t.Errorf("AllowedDays = %v", got.AllowedDays)
	}
	if got.RequireConsent {
		t.Errorf("RequireConsent should be false")
	}

	for _, bad := range []string{"nope", "colour=blue", "allowedDays=7", "enabled=maybe", "complianceMode=lax"} {
		if _, err := parseSettingsPatch([]string{bad}, current); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("%q: expected validation error, got %v", bad, err)
		}
	}
}
