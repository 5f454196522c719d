package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/acme/autodialer/internal/domain"
)

// FlexTime decodes a timestamp stored either as an ISO-8601 string, as epoch
// milliseconds, or as epoch milliseconds in a string. It always encodes as
// RFC 3339.
type FlexTime struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (t FlexTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler. Strings without a zone are read
// as UTC.
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	parsed, err := decodeTimestamp(data, time.UTC)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func decodeTimestamp(data []byte, loc *time.Location) (time.Time, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return time.Time{}, nil
	}
	if data[0] != '"' {
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("snapshot: invalid timestamp %s: %w", data, err)
		}
		return time.UnixMilli(int64(ms)).UTC(), nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return time.Time{}, fmt.Errorf("snapshot: invalid timestamp: %w", err)
	}
	return ParseTimestamp(raw, loc)
}

// ParseTimestamp parses the textual timestamp forms accepted by FlexTime.
// Forms without a zone offset are read in loc, or UTC when loc is nil.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04", "2006-01-02"} {
		if parsed, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("snapshot: unrecognised timestamp %q", raw)
}

type wireJob struct {
	domain.CallJob
	ScheduledTime json.RawMessage `json:"scheduledTime,omitempty"`
	LastAttempt   json.RawMessage `json:"lastAttempt,omitempty"`
}

func (w wireJob) job(loc *time.Location) (domain.CallJob, error) {
	job := w.CallJob
	job.ScheduledTime = nil
	job.LastAttempt = nil
	scheduled, err := decodeTimestamp(w.ScheduledTime, loc)
	if err != nil {
		return domain.CallJob{}, err
	}
	if !scheduled.IsZero() {
		job.ScheduledTime = &scheduled
	}
	last, err := decodeTimestamp(w.LastAttempt, loc)
	if err != nil {
		return domain.CallJob{}, err
	}
	if !last.IsZero() {
		job.LastAttempt = &last
	}
	return job, nil
}

// EncodeQueue serialises jobs for storage.
func EncodeQueue(jobs []domain.CallJob) (string, error) {
	if jobs == nil {
		jobs = []domain.CallJob{}
	}
	raw, err := json.Marshal(jobs)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode queue: %w", err)
	}
	return string(raw), nil
}

// DecodeQueue parses a stored queue, rebuilding date fields. Dates stored
// without a zone are read in loc.
func DecodeQueue(raw string, loc *time.Location) ([]domain.CallJob, error) {
	var wire []wireJob
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("snapshot: decode queue: %w", err)
	}
	jobs := make([]domain.CallJob, 0, len(wire))
	for i, w := range wire {
		job, err := w.job(loc)
		if err != nil {
			return nil, fmt.Errorf("snapshot: decode queue: job %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// EncodeSettings serialises settings for storage.
func EncodeSettings(s domain.Settings) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode settings: %w", err)
	}
	return string(raw), nil
}

// DecodeSettings parses stored settings over the defaults, so fields absent
// from older snapshots keep their default value.
func DecodeSettings(raw string) (domain.Settings, error) {
	s := domain.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return domain.DefaultSettings(), fmt.Errorf("snapshot: decode settings: %w", err)
	}
	return s, nil
}

// EncodeStatistics serialises statistics for storage.
func EncodeStatistics(s domain.Statistics) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("snapshot: encode statistics: %w", err)
	}
	return string(raw), nil
}

// DecodeStatistics parses stored statistics. Snapshots written before the
// sample count existed are assumed to have averaged over every call.
func DecodeStatistics(raw string) (domain.Statistics, error) {
	var s domain.Statistics
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return domain.Statistics{}, fmt.Errorf("snapshot: decode statistics: %w", err)
	}
	if s.TimedCalls == 0 && s.AverageDuration > 0 {
		s.TimedCalls = s.TotalCalls
	}
	return s, nil
}

// Export is the user-facing dump of dialer state.
type Export struct {
	Queue      []domain.CallJob  `json:"queue"`
	Statistics domain.Statistics `json:"statistics"`
	Settings   domain.Settings   `json:"settings"`
	ExportDate time.Time         `json:"exportDate"`
}

// EncodeExport renders an indented export document.
func EncodeExport(e Export) (string, error) {
	if e.Queue == nil {
		e.Queue = []domain.CallJob{}
	}
	e.ExportDate = e.ExportDate.UTC()
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot: encode export: %w", err)
	}
	return string(raw), nil
}
