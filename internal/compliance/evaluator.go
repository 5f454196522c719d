// Package compliance evaluates the calling policy against a set of jobs.
// Evaluation is pure: callers supply the clock reading and get back a result,
// never an error.
package compliance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/acme/autodialer/internal/domain"
)

// Issue messages surfaced to operators.
const (
	IssueDayNotAllowed       = "Current day is not allowed for calling"
	IssueOutsideHours        = "Current time is outside business hours"
	IssueDailyLimit          = "Daily call limit reached"
	IssueInvalidBusinessHour = "Business hours configuration is invalid"
)

// Result is the outcome of a compliance evaluation.
type Result struct {
	IsCompliant bool     `json:"isCompliant"`
	Issues      []string `json:"issues"`
}

func newResult(issues []string) Result {
	if issues == nil {
		issues = []string{}
	}
	return Result{IsCompliant: len(issues) == 0, Issues: issues}
}

// Evaluate runs every applicable check and accumulates the issues found.
func Evaluate(policy domain.Settings, jobs []domain.CallJob, now time.Time) Result {
	var issues []string

	if policy.RequireConsent {
		missing := 0
		for _, job := range jobs {
			if !job.ConsentVerified {
				missing++
			}
		}
		if missing > 0 {
			issues = append(issues, fmt.Sprintf("%d calls lack proper consent", missing))
		}
	}

	if policy.BusinessHoursOnly {
		issues = append(issues, businessHourIssues(policy, now)...)
	}

	if AttemptedToday(jobs, now) >= policy.MaxDailyAttempts {
		issues = append(issues, IssueDailyLimit)
	}

	return newResult(issues)
}

// CheckEnqueue rejects a batch of incoming jobs when it would push today's
// attempt count past the daily quota.
func CheckEnqueue(policy domain.Settings, jobs []domain.CallJob, incoming int, now time.Time) Result {
	if AttemptedToday(jobs, now)+incoming > policy.MaxDailyAttempts {
		return newResult([]string{fmt.Sprintf("Cannot exceed %d calls per day", policy.MaxDailyAttempts)})
	}
	return newResult(nil)
}

// AttemptedToday counts jobs whose last attempt falls on now's calendar date.
func AttemptedToday(jobs []domain.CallJob, now time.Time) int {
	count := 0
	for _, job := range jobs {
		if job.AttemptedOn(now) {
			count++
		}
	}
	return count
}

// WithinBusinessHours reports whether now satisfies the day and hours checks.
func WithinBusinessHours(policy domain.Settings, now time.Time) bool {
	return len(businessHourIssues(policy, now)) == 0
}

func businessHourIssues(policy domain.Settings, now time.Time) []string {
	var issues []string

	if !policy.DayAllowed(int(now.Weekday())) {
		issues = append(issues, IssueDayNotAllowed)
	}

	start, errStart := ParseClock(policy.BusinessHours.Start)
	end, errEnd := ParseClock(policy.BusinessHours.End)
	if errStart != nil || errEnd != nil {
		return append(issues, IssueInvalidBusinessHour)
	}

	minuteOfDay := now.Hour()*60 + now.Minute()
	if minuteOfDay < start || minuteOfDay > end {
		issues = append(issues, IssueOutsideHours)
	}
	return issues
}

// ParseClock converts an "HH:MM" wall-clock string to minutes since midnight.
func ParseClock(raw string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("compliance: clock %q: missing colon", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("compliance: clock %q: invalid hour", raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("compliance: clock %q: invalid minute", raw)
	}
	return h*60 + m, nil
}
