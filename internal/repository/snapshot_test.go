package repository

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/acme/autodialer/internal/domain"
)

func TestQueueRoundTripKeepsDates(t *testing.T) {
	scheduled := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	last := time.Date(2024, 1, 2, 10, 15, 5, 0, time.UTC)
	jobs := []domain.CallJob{{
		ID:              "a",
		PhoneNumber:     "+15550100",
		Priority:        domain.PriorityHigh,
		ScheduledTime:   &scheduled,
		MaxAttempts:     3,
		CurrentAttempts: 1,
		Status:          domain.JobStatusFailed,
		Purpose:         "survey",
		LastAttempt:     &last,
		CallResult:      &domain.CallResult{Outcome: domain.OutcomeNoAnswer},
	}}

	raw, err := EncodeQueue(jobs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(raw, `"phoneNumber":"+15550100"`) || !strings.Contains(raw, `"lastAttempt":"2024-01-02T10:15:05Z"`) {
		t.Fatalf("unexpected wire format: %s", raw)
	}

	got, err := DecodeQueue(raw, time.UTC)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || !got[0].ScheduledTime.Equal(scheduled) || !got[0].LastAttempt.Equal(last) {
		t.Fatalf("dates not restored: %+v", got)
	}
	if got[0].CallResult == nil || got[0].CallResult.Outcome != domain.OutcomeNoAnswer {
		t.Fatalf("call result not restored: %+v", got[0].CallResult)
	}
}

func TestDecodeQueueAcceptsEpochMillis(t *testing.T) {
	raw := `[
		{"id":"a","phoneNumber":"1","priority":"low","maxAttempts":1,"status":"pending","purpose":"p","lastAttempt":1704189600000},
		{"id":"b","phoneNumber":"2","priority":"low","maxAttempts":1,"status":"pending","purpose":"p","lastAttempt":"1704189600000"},
		{"id":"c","phoneNumber":"3","priority":"low","maxAttempts":1,"status":"pending","purpose":"p","lastAttempt":null}
	]`
	want := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	got, err := DecodeQueue(raw, time.UTC)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, job := range got[:2] {
		if job.LastAttempt == nil || !job.LastAttempt.Equal(want) {
			t.Fatalf("job %s lastAttempt = %v, want %v", job.ID, job.LastAttempt, want)
		}
	}
	if got[2].LastAttempt != nil {
		t.Fatalf("expected nil lastAttempt for null, got %v", got[2].LastAttempt)
	}
}

func TestDecodeQueueReadsZonelessDatesInLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	raw := `[
		{"id":"a","phoneNumber":"1","priority":"low","maxAttempts":1,"status":"pending","purpose":"p","scheduledTime":"2024-01-02T09:30:00"},
		{"id":"b","phoneNumber":"2","priority":"low","maxAttempts":1,"status":"pending","purpose":"p","scheduledTime":"2024-01-02T09:30:00Z"},
		{"id":"c","phoneNumber":"3","priority":"low","maxAttempts":1,"status":"pending","purpose":"p","scheduledTime":"2024-01-02"}
	]`

	got, err := DecodeQueue(raw, loc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if want := time.Date(2024, 1, 2, 9, 30, 0, 0, loc); !got[0].ScheduledTime.Equal(want) {
		t.Fatalf("zoneless time = %v, want %v", got[0].ScheduledTime, want)
	}
	if want := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC); !got[1].ScheduledTime.Equal(want) {
		t.Fatalf("explicit UTC time = %v, want %v", got[1].ScheduledTime, want)
	}
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, loc); !got[2].ScheduledTime.Equal(want) {
		t.Fatalf("date-only time = %v, want %v", got[2].ScheduledTime, want)
	}
}

func TestParseTimestampDefaultsToUTC(t *testing.T) {
	got, err := ParseTimestamp("2024-01-02T09:30", nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if want := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodeQueueRejectsGarbage(t *testing.T) {
	if _, err := DecodeQueue(`[{"lastAttempt":"yesterday"}]`, time.UTC); err == nil {
		t.Fatalf("expected error for unparsable timestamp")
	}
	if _, err := DecodeQueue(`{`, time.UTC); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestDecodeSettingsFillsDefaults(t *testing.T) {
	got, err := DecodeSettings(`{"enabled":true,"maxDailyAttempts":5}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Enabled || got.MaxDailyAttempts != 5 {
		t.Fatalf("stored fields not applied: %+v", got)
	}
	if got.BusinessHours.Start != "09:00" || len(got.AllowedDays) != 5 {
		t.Fatalf("defaults not kept: %+v", got)
	}
}

func TestDecodeStatisticsLegacySampleCount(t *testing.T) {
	got, err := DecodeStatistics(`{"totalCalls":4,"successfulCalls":3,"failedCalls":1,"averageDuration":60}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TimedCalls != 4 {
		t.Fatalf("TimedCalls = %d, want 4", got.TimedCalls)
	}
}

func TestEncodeExport(t *testing.T) {
	at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	raw, err := EncodeExport(Export{Settings: domain.DefaultSettings(), ExportDate: at})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("export is not json: %v", err)
	}
	for _, key := range []string{"queue", "statistics", "settings", "exportDate"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("export missing %q: %s", key, raw)
		}
	}
	if string(doc["queue"]) != "[]" || string(doc["exportDate"]) != `"2024-01-02T10:00:00Z"` {
		t.Fatalf("unexpected export body: %s", raw)
	}
}
