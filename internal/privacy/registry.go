// Package privacy keeps per-number consent records and the recording privacy
// settings, and answers region-specific compliance questions.
package privacy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/acme/autodialer/internal/clock"
	"github.com/acme/autodialer/internal/domain"
	"github.com/acme/autodialer/internal/repository"
	apperrors "github.com/acme/autodialer/pkg/errors"
	"github.com/acme/autodialer/pkg/logger"
)

// Region selects a jurisdiction's requirement table.
type Region string

const (
	RegionUS     Region = "US"
	RegionEU     Region = "EU"
	RegionCA     Region = "CA"
	RegionAU     Region = "AU"
	RegionGlobal Region = "GLOBAL"
)

// ConsentType records how consent was obtained.
type ConsentType string

const (
	ConsentExplicit   ConsentType = "explicit"
	ConsentImplied    ConsentType = "implied"
	ConsentLegalBasis ConsentType = "legal_basis"
)

// Requirements are the obligations attached to a region.
type Requirements struct {
	RequiresConsent      bool `json:"requiresConsent"`
	MaxRetentionDays     int  `json:"maxRetentionDays"`
	AllowsImpliedConsent bool `json:"allowsImpliedConsent"`
	RequiresNotification bool `json:"requiresNotification"`
}

var regionRequirements = map[Region]Requirements{
	RegionUS:     {RequiresConsent: true, MaxRetentionDays: 365, AllowsImpliedConsent: true, RequiresNotification: true},
	RegionEU:     {RequiresConsent: true, MaxRetentionDays: 90, AllowsImpliedConsent: false, RequiresNotification: true},
	RegionCA:     {RequiresConsent: true, MaxRetentionDays: 180, AllowsImpliedConsent: true, RequiresNotification: true},
	RegionAU:     {RequiresConsent: true, MaxRetentionDays: 365, AllowsImpliedConsent: true, RequiresNotification: true},
	RegionGlobal: {RequiresConsent: true, MaxRetentionDays: 30, AllowsImpliedConsent: false, RequiresNotification: true},
}

// Valid reports whether r has a requirement table.
func (r Region) Valid() bool {
	_, ok := regionRequirements[r]
	return ok
}

// Settings controls call recording privacy.
type Settings struct {
	RecordingEnabled       bool   `json:"recordingEnabled"`
	AutoDeleteAfterDays    int    `json:"autoDeleteAfterDays"`
	EncryptRecordings      bool   `json:"encryptRecordings"`
	RequireExplicitConsent bool   `json:"requireExplicitConsent"`
	ShowRecordingIndicator bool   `json:"showRecordingIndicator"`
	AllowThirdPartySharing bool   `json:"allowThirdPartySharing"`
	ComplianceRegion       Region `json:"complianceRegion"`
}

// DefaultSettings returns the shipped privacy defaults.
func DefaultSettings() Settings {
	return Settings{
		RecordingEnabled:       false,
		AutoDeleteAfterDays:    domain.DefaultRetentionDays,
		EncryptRecordings:      true,
		RequireExplicitConsent: true,
		ShowRecordingIndicator: true,
		AllowThirdPartySharing: false,
		ComplianceRegion:       RegionGlobal,
	}
}

// SettingsPatch is a partial settings update.
type SettingsPatch struct {
	RecordingEnabled       *bool
	AutoDeleteAfterDays    *int
	EncryptRecordings      *bool
	RequireExplicitConsent *bool
	ShowRecordingIndicator *bool
	AllowThirdPartySharing *bool
	ComplianceRegion       *Region
}

// ConsentRecord is the consent held for one phone number.
type ConsentRecord struct {
	PhoneNumber         string      `json:"phoneNumber"`
	ConsentGiven        bool        `json:"consentGiven"`
	ConsentDate         time.Time   `json:"consentDate"`
	ConsentType         ConsentType `json:"consentType"`
	RecordingPurpose    string      `json:"recordingPurpose"`
	DataRetentionPeriod int         `json:"dataRetentionPeriod"`
	CanRevoke           bool        `json:"canRevoke"`
}

type wireConsent struct {
	ConsentRecord
	ConsentDate repository.FlexTime `json:"consentDate"`
}

// Registry holds privacy state in memory and writes it through a KVStore.
type Registry struct {
	kv    repository.KVStore
	clock clock.Clock
	log   *logger.Logger

	mu       sync.RWMutex
	settings Settings
	records  []ConsentRecord
}

// NewRegistry builds a registry and loads persisted state. Unreadable state
// is logged and replaced by defaults.
func NewRegistry(ctx context.Context, kv repository.KVStore, clk clock.Clock, log *logger.Logger) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{kv: kv, clock: clk, log: log.Named("privacy"), settings: DefaultSettings()}
	r.load(ctx)
	return r
}

func (r *Registry) load(ctx context.Context) {
	if raw, ok, err := r.kv.LoadJSON(ctx, repository.KeyPrivacySettings); err != nil {
		r.log.Warn("privacy settings load failed", zap.Error(err))
	} else if ok {
		settings := DefaultSettings()
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			r.log.Warn("discarding unreadable privacy settings", zap.Error(err))
		} else {
			r.settings = settings
		}
	}

	raw, ok, err := r.kv.LoadJSON(ctx, repository.KeyConsentRecords)
	if err != nil {
		r.log.Warn("consent records load failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var wire []wireConsent
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		r.log.Warn("discarding unreadable consent records", zap.Error(err))
		return
	}
	records := make([]ConsentRecord, 0, len(wire))
	for _, w := range wire {
		rec := w.ConsentRecord
		rec.ConsentDate = w.ConsentDate.Time
		records = append(records, rec)
	}
	r.records = records
}

// Settings returns the current privacy settings.
func (r *Registry) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// UpdateSettings merges patch and persists the result.
func (r *Registry) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	if patch.ComplianceRegion != nil && !patch.ComplianceRegion.Valid() {
		return Settings{}, fmt.Errorf("%w: unknown compliance region %q", apperrors.ErrValidation, *patch.ComplianceRegion)
	}
	if patch.AutoDeleteAfterDays != nil && *patch.AutoDeleteAfterDays <= 0 {
		return Settings{}, fmt.Errorf("%w: retention must be positive", apperrors.ErrValidation)
	}

	r.mu.Lock()
	s := r.settings
	if patch.RecordingEnabled != nil {
		s.RecordingEnabled = *patch.RecordingEnabled
	}
	if patch.AutoDeleteAfterDays != nil {
		s.AutoDeleteAfterDays = *patch.AutoDeleteAfterDays
	}
	if patch.EncryptRecordings != nil {
		s.EncryptRecordings = *patch.EncryptRecordings
	}
	if patch.RequireExplicitConsent != nil {
		s.RequireExplicitConsent = *patch.RequireExplicitConsent
	}
	if patch.ShowRecordingIndicator != nil {
		s.ShowRecordingIndicator = *patch.ShowRecordingIndicator
	}
	if patch.AllowThirdPartySharing != nil {
		s.AllowThirdPartySharing = *patch.AllowThirdPartySharing
	}
	if patch.ComplianceRegion != nil {
		s.ComplianceRegion = *patch.ComplianceRegion
	}
	r.settings = s
	r.mu.Unlock()

	return s, r.save(ctx, repository.KeyPrivacySettings, s)
}

// RecordConsent stores explicit consent for phone, replacing any earlier
// record for the same number.
func (r *Registry) RecordConsent(ctx context.Context, phone, purpose string) (ConsentRecord, error) {
	if phone == "" {
		return ConsentRecord{}, fmt.Errorf("%w: phone number is required", apperrors.ErrValidation)
	}

	r.mu.Lock()
	rec := ConsentRecord{
		PhoneNumber:         phone,
		ConsentGiven:        true,
		ConsentDate:         r.clock.Now(),
		ConsentType:         ConsentExplicit,
		RecordingPurpose:    purpose,
		DataRetentionPeriod: r.settings.AutoDeleteAfterDays,
		CanRevoke:           true,
	}
	r.records = append(r.without(phone), rec)
	records := append([]ConsentRecord(nil), r.records...)
	r.mu.Unlock()

	r.log.Info("consent recorded", zap.String("phone", phone))
	return rec, r.save(ctx, repository.KeyConsentRecords, records)
}

// RevokeConsent drops the record for phone. It reports whether one existed.
func (r *Registry) RevokeConsent(ctx context.Context, phone string) (bool, error) {
	r.mu.Lock()
	before := len(r.records)
	r.records = r.without(phone)
	removed := len(r.records) != before
	records := append([]ConsentRecord(nil), r.records...)
	r.mu.Unlock()

	if !removed {
		return false, nil
	}
	r.log.Info("consent revoked", zap.String("phone", phone))
	return true, r.save(ctx, repository.KeyConsentRecords, records)
}

// ConsentStatus returns the record for phone.
func (r *Registry) ConsentStatus(phone string) (ConsentRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.PhoneNumber == phone {
			return rec, true
		}
	}
	return ConsentRecord{}, false
}

// HasConsent reports whether phone has a record with consent given.
func (r *Registry) HasConsent(phone string) bool {
	rec, ok := r.ConsentStatus(phone)
	return ok && rec.ConsentGiven
}

// Records returns every consent record.
func (r *Registry) Records() []ConsentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ConsentRecord(nil), r.records...)
}

// Requirements returns the obligations for the configured region.
func (r *Registry) Requirements() Requirements {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if req, ok := regionRequirements[r.settings.ComplianceRegion]; ok {
		return req
	}
	return regionRequirements[RegionGlobal]
}

// Export renders settings and consent records as indented JSON.
func (r *Registry) Export() (string, error) {
	r.mu.RLock()
	doc := struct {
		Settings   Settings        `json:"settings"`
		Consents   []ConsentRecord `json:"consents"`
		ExportDate time.Time       `json:"exportDate"`
	}{
		Settings:   r.settings,
		Consents:   append([]ConsentRecord{}, r.records...),
		ExportDate: r.clock.Now().UTC(),
	}
	r.mu.RUnlock()

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("privacy: export: %w", err)
	}
	return string(raw), nil
}

// DeleteAll resets settings, forgets every record and removes both keys.
func (r *Registry) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	r.settings = DefaultSettings()
	r.records = nil
	r.mu.Unlock()

	if err := r.kv.RemoveKeys(ctx, repository.KeyPrivacySettings, repository.KeyConsentRecords); err != nil {
		return fmt.Errorf("privacy: delete all: %w", err)
	}
	r.log.Info("privacy data deleted")
	return nil
}

// without must be called with mu held.
func (r *Registry) without(phone string) []ConsentRecord {
	out := make([]ConsentRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.PhoneNumber != phone {
			out = append(out, rec)
		}
	}
	return out
}

// save persists v under key. In-memory state is kept when the write fails.
func (r *Registry) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("privacy: encode %s: %w", key, err)
	}
	if err := r.kv.SaveJSON(ctx, key, string(raw)); err != nil {
		r.log.Error("privacy save failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("privacy: save %s: %w", key, err)
	}
	return nil
}
