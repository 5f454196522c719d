package domain

import (
	"strconv"
	"strings"
)

// ComplianceMode is informational; it does not change evaluation.
type ComplianceMode string

const (
	ComplianceStrict   ComplianceMode = "strict"
	ComplianceStandard ComplianceMode = "standard"
	ComplianceMinimal  ComplianceMode = "minimal"
)

// Fallbacks applied when a numeric setting cannot be parsed.
const (
	DefaultDelayBetweenCalls = 30
	DefaultMaxDailyAttempts  = 100
	DefaultRetentionDays     = 30
)

// BusinessHours is a wall-clock window expressed as HH:MM strings.
type BusinessHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Settings is the process-wide calling policy.
type Settings struct {
	Enabled            bool           `json:"enabled"`
	MaxConcurrentCalls int            `json:"maxConcurrentCalls"`
	DelayBetweenCalls  int            `json:"delayBetweenCalls"`
	MaxDailyAttempts   int            `json:"maxDailyAttempts"`
	RespectDoNotCall   bool           `json:"respectDoNotCall"`
	RequireConsent     bool           `json:"requireConsent"`
	BusinessHoursOnly  bool           `json:"businessHoursOnly"`
	BusinessHours      BusinessHours  `json:"businessHours"`
	AllowedDays        []int          `json:"allowedDays"`
	ComplianceMode     ComplianceMode `json:"complianceMode"`
}

// DefaultSettings mirrors the defaults shipped with the dialer.
func DefaultSettings() Settings {
	return Settings{
		Enabled:            false,
		MaxConcurrentCalls: 1,
		DelayBetweenCalls:  DefaultDelayBetweenCalls,
		MaxDailyAttempts:   DefaultMaxDailyAttempts,
		RespectDoNotCall:   true,
		RequireConsent:     true,
		BusinessHoursOnly:  true,
		BusinessHours:      BusinessHours{Start: "09:00", End: "17:00"},
		AllowedDays:        []int{1, 2, 3, 4, 5},
		ComplianceMode:     ComplianceStrict,
	}
}

// Clone copies the allowed-days slice.
func (s Settings) Clone() Settings {
	out := s
	out.AllowedDays = append([]int(nil), s.AllowedDays...)
	return out
}

// DayAllowed reports whether weekday (0=Sunday) is permitted.
func (s Settings) DayAllowed(weekday int) bool {
	for _, d := range s.AllowedDays {
		if d == weekday {
			return true
		}
	}
	return false
}

// SettingsPatch is a partial settings update.
type SettingsPatch struct {
	Enabled            *bool
	MaxConcurrentCalls *int
	DelayBetweenCalls  *int
	MaxDailyAttempts   *int
	RespectDoNotCall   *bool
	RequireConsent     *bool
	BusinessHoursOnly  *bool
	BusinessHours      *BusinessHours
	AllowedDays        []int
	ComplianceMode     *ComplianceMode
}

// Apply merges the patch into s and returns the result.
func (p SettingsPatch) Apply(s Settings) Settings {
	s = s.Clone()
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.MaxConcurrentCalls != nil {
		s.MaxConcurrentCalls = *p.MaxConcurrentCalls
	}
	if p.DelayBetweenCalls != nil {
		s.DelayBetweenCalls = *p.DelayBetweenCalls
	}
	if p.MaxDailyAttempts != nil {
		s.MaxDailyAttempts = *p.MaxDailyAttempts
	}
	if p.RespectDoNotCall != nil {
		s.RespectDoNotCall = *p.RespectDoNotCall
	}
	if p.RequireConsent != nil {
		s.RequireConsent = *p.RequireConsent
	}
	if p.BusinessHoursOnly != nil {
		s.BusinessHoursOnly = *p.BusinessHoursOnly
	}
	if p.BusinessHours != nil {
		s.BusinessHours = *p.BusinessHours
	}
	if p.AllowedDays != nil {
		s.AllowedDays = append([]int(nil), p.AllowedDays...)
	}
	if p.ComplianceMode != nil {
		s.ComplianceMode = *p.ComplianceMode
	}
	return s
}

// ParseIntSetting parses user-entered numeric input. Anything that is not a
// positive integer yields fallback.
func ParseIntSetting(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
