package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/corpus"
	"github.com/wardenhq/warden/detect/engine"
	"github.com/wardenhq/warden/enforce"
)

// Store wraps the database behind the persistence surfaces the engine,
// corpus feed, and orchestrator each depend on.
type Store struct {
	db *gorm.DB
}

var (
	_ engine.ConfigSource   = (*Store)(nil)
	_ engine.DecisionStore  = (*Store)(nil)
	_ corpus.SampleStore    = (*Store)(nil)
	_ enforce.ActionStore   = (*Store)(nil)
	_ enforce.ContactSource = (*Store)(nil)
	_ enforce.AuditSink     = (*Store)(nil)
)

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&CheckConfig{},
		&Decision{},
		&CorpusSample{},
		&ActionRecord{},
		&Membership{},
		&Account{},
		&CommunitySettings{},
		&AuditEvent{},
	); err != nil {
		return nil, fmt.Errorf("running database migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping verifies database connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec("SELECT 1").Error
}

// --- check configuration ---

func (s *Store) GetCheckConfig(ctx context.Context, check detect.CheckName, communityID string) (*detect.EffectiveConfig, error) {
	var row CheckConfig
	err := s.db.WithContext(ctx).
		Where("check_name = ? AND community_id = ?", string(check), communityID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg := detect.EffectiveConfig{
		Enabled:   row.Enabled,
		UseGlobal: row.UseGlobal,
		Threshold: row.Threshold,
		AlwaysRun: row.AlwaysRun,
	}
	if row.ParamsJSON != "" {
		if err := json.Unmarshal([]byte(row.ParamsJSON), &cfg.Params); err != nil {
			return nil, fmt.Errorf("parsing stored params for %s: %w", check, err)
		}
	}
	return &cfg, nil
}

// PutCheckConfig creates or replaces the record for one (check, community)
// scope.
func (s *Store) PutCheckConfig(ctx context.Context, check detect.CheckName, communityID string, cfg detect.EffectiveConfig) error {
	var paramsJSON string
	if len(cfg.Params) > 0 {
		b, err := json.Marshal(cfg.Params)
		if err != nil {
			return fmt.Errorf("encoding params: %w", err)
		}
		paramsJSON = string(b)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CheckConfig{}).
			Where("check_name = ? AND community_id = ?", string(check), communityID).
			Updates(map[string]any{
				"enabled":     cfg.Enabled,
				"use_global":  cfg.UseGlobal,
				"threshold":   cfg.Threshold,
				"always_run":  cfg.AlwaysRun,
				"params_json": paramsJSON,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&CheckConfig{
			CheckName:   string(check),
			CommunityID: communityID,
			Enabled:     cfg.Enabled,
			UseGlobal:   cfg.UseGlobal,
			Threshold:   cfg.Threshold,
			AlwaysRun:   cfg.AlwaysRun,
			ParamsJSON:  paramsJSON,
		}).Error
	})
}

// --- decisions ---

func (s *Store) LatestEditVersion(ctx context.Context, messageID string) (int, error) {
	var latest int
	err := s.db.WithContext(ctx).Model(&Decision{}).
		Where("message_id = ?", messageID).
		Select("COALESCE(MAX(edit_version), 0)").
		Scan(&latest).Error
	if err != nil {
		return 0, err
	}
	return latest, nil
}

func (s *Store) InsertDecision(ctx context.Context, d *detect.Decision) error {
	results, err := json.Marshal(d.Results)
	if err != nil {
		return fmt.Errorf("encoding check results: %w", err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int
		if err := tx.Model(&Decision{}).
			Where("message_id = ?", d.MessageID).
			Select("COALESCE(MAX(edit_version), 0)").
			Scan(&latest).Error; err != nil {
			return err
		}
		if d.EditVersion <= latest {
			return fmt.Errorf("%w: message %s version %d, stored %d", engine.ErrStaleEdit, d.MessageID, d.EditVersion, latest)
		}
		row := Decision{
			ID:               d.ID,
			MessageID:        d.MessageID,
			EditVersion:      d.EditVersion,
			AccountID:        d.AccountID,
			CommunityID:      d.CommunityID,
			CreatedAt:        d.CreatedAt,
			Verdict:          string(d.Verdict),
			NetConfidence:    d.NetConfidence,
			ResultsJSON:      string(results),
			Source:           string(d.Source),
			TrainingEligible: d.TrainingEligible,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: message %s version %d", engine.ErrStaleEdit, d.MessageID, d.EditVersion)
			}
			return err
		}
		return nil
	})
}

func (s *Store) GetDecision(ctx context.Context, id string) (*detect.Decision, error) {
	var row Decision
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	d := &detect.Decision{
		ID:               row.ID,
		MessageID:        row.MessageID,
		AccountID:        row.AccountID,
		CommunityID:      row.CommunityID,
		CreatedAt:        row.CreatedAt,
		Verdict:          detect.Verdict(row.Verdict),
		NetConfidence:    row.NetConfidence,
		Source:           detect.Source(row.Source),
		EditVersion:      row.EditVersion,
		TrainingEligible: row.TrainingEligible,
	}
	if row.ResultsJSON != "" {
		if err := json.Unmarshal([]byte(row.ResultsJSON), &d.Results); err != nil {
			return nil, fmt.Errorf("parsing stored check results: %w", err)
		}
	}
	return d, nil
}

// SetTrainingEligible flips the one mutable decision field, used by human
// review and accuracy corrections.
func (s *Store) SetTrainingEligible(ctx context.Context, id string, eligible bool) error {
	res := s.db.WithContext(ctx).Model(&Decision{}).
		Where("id = ?", id).
		Update("training_eligible", eligible)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) TrainingMode(ctx context.Context, communityID string) (bool, error) {
	var row CommunitySettings
	err := s.db.WithContext(ctx).Where("community_id = ?", communityID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.TrainingMode, nil
}

func (s *Store) SetTrainingMode(ctx context.Context, communityID string, on bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CommunitySettings{}).
			Where("community_id = ?", communityID).
			Update("training_mode", on)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&CommunitySettings{CommunityID: communityID, TrainingMode: on}).Error
	})
}

// --- corpus samples ---

func (s *Store) InsertSample(ctx context.Context, sample corpus.Sample) error {
	return s.db.WithContext(ctx).Create(&CorpusSample{
		Label:      string(sample.Label),
		Source:     string(sample.Source),
		Text:       sample.Text,
		DecisionID: sample.DecisionID,
		CreatedAt:  time.Now().UTC(),
	}).Error
}

func (s *Store) ManualSamples(ctx context.Context, label detect.Verdict) ([]corpus.Sample, error) {
	var rows []CorpusSample
	err := s.db.WithContext(ctx).
		Where("label = ? AND source = ?", string(label), string(corpus.SourceManual)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return sampleRows(rows), nil
}

func (s *Store) RecentAutoSamples(ctx context.Context, label detect.Verdict, n int) ([]corpus.Sample, error) {
	var rows []CorpusSample
	err := s.db.WithContext(ctx).
		Where("label = ? AND source = ?", string(label), string(corpus.SourceAutomatic)).
		Order("id desc").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return sampleRows(rows), nil
}

func (s *Store) PruneAutoSamples(ctx context.Context, label detect.Verdict, keep int) error {
	keepIDs := s.db.Model(&CorpusSample{}).
		Select("id").
		Where("label = ? AND source = ?", string(label), string(corpus.SourceAutomatic)).
		Order("id desc").
		Limit(keep)
	return s.db.WithContext(ctx).
		Where("label = ? AND source = ? AND id NOT IN (?)", string(label), string(corpus.SourceAutomatic), keepIDs).
		Delete(&CorpusSample{}).Error
}

func sampleRows(rows []CorpusSample) []corpus.Sample {
	out := make([]corpus.Sample, len(rows))
	for i, r := range rows {
		out[i] = corpus.Sample{
			ID:         r.ID,
			Label:      detect.Verdict(r.Label),
			Source:     corpus.SampleSource(r.Source),
			Text:       r.Text,
			DecisionID: r.DecisionID,
			CreatedAt:  r.CreatedAt,
		}
	}
	return out
}

// --- memberships and accounts ---

func (s *Store) Memberships(ctx context.Context, accountID string) ([]enforce.Membership, error) {
	var rows []Membership
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]enforce.Membership, len(rows))
	for i, r := range rows {
		out[i] = enforce.Membership{CommunityID: r.CommunityID, Admin: r.Admin}
	}
	return out, nil
}

func (s *Store) IsProtected(ctx context.Context, accountID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Membership{}).
		Where("account_id = ? AND admin = ?", accountID, true).
		Count(&count).Error
	return count > 0, err
}

// PutMembership records or updates an account's presence in a community,
// fed from platform membership events.
func (s *Store) PutMembership(ctx context.Context, accountID, communityID string, admin bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Membership{}).
			Where("account_id = ? AND community_id = ?", accountID, communityID).
			Update("admin", admin)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&Membership{AccountID: accountID, CommunityID: communityID, Admin: admin}).Error
	})
}

func (s *Store) RemoveMembership(ctx context.Context, accountID, communityID string) error {
	return s.db.WithContext(ctx).
		Where("account_id = ? AND community_id = ?", accountID, communityID).
		Delete(&Membership{}).Error
}

func (s *Store) PrivateContact(ctx context.Context, accountID string) (bool, error) {
	var row Account
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.PrivateContact, nil
}

// MarkPrivateContact records that the account opened a private channel.
func (s *Store) MarkPrivateContact(ctx context.Context, accountID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Account{}).
			Where("account_id = ?", accountID).
			Update("private_contact", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&Account{AccountID: accountID, PrivateContact: true}).Error
	})
}

// --- enforcement actions ---

func actionRow(rec *enforce.ActionRecord) ActionRecord {
	return ActionRecord{
		ID:         rec.ID,
		AccountID:  rec.AccountID,
		Kind:       string(rec.Kind),
		Issuer:     rec.Issuer,
		Reason:     rec.Reason,
		MessageID:  rec.MessageID,
		IssuedAt:   rec.IssuedAt,
		ExpiresAt:  rec.ExpiresAt,
		ReversedAt: rec.ReversedAt,
		ClaimedAt:  rec.ClaimedAt,
	}
}

func actionFromRow(row ActionRecord) enforce.ActionRecord {
	return enforce.ActionRecord{
		ID:         row.ID,
		AccountID:  row.AccountID,
		Kind:       enforce.ActionKind(row.Kind),
		Issuer:     row.Issuer,
		Reason:     row.Reason,
		MessageID:  row.MessageID,
		IssuedAt:   row.IssuedAt,
		ExpiresAt:  row.ExpiresAt,
		ReversedAt: row.ReversedAt,
		ClaimedAt:  row.ClaimedAt,
	}
}

// activeScope filters to active records: not reversed, not past expiry.
func activeScope(tx *gorm.DB, now time.Time) *gorm.DB {
	return tx.Where("reversed_at IS NULL AND (expires_at IS NULL OR expires_at > ?)", now)
}

func (s *Store) InsertAction(ctx context.Context, rec *enforce.ActionRecord) error {
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// bans and trust grants supersede any prior active record of the
		// same kind for the account
		if rec.Kind == enforce.KindBan || rec.Kind == enforce.KindTrust {
			now := time.Now().UTC()
			if err := activeScope(tx.Model(&ActionRecord{}), now).
				Where("account_id = ? AND kind = ?", rec.AccountID, string(rec.Kind)).
				Update("reversed_at", now).Error; err != nil {
				return err
			}
		}
		row := actionRow(rec)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		rec.ID = row.ID
		return nil
	})
}

func (s *Store) ActiveAction(ctx context.Context, accountID string, kind enforce.ActionKind) (*enforce.ActionRecord, error) {
	var row ActionRecord
	err := activeScope(s.db.WithContext(ctx), time.Now().UTC()).
		Where("account_id = ? AND kind = ?", accountID, string(kind)).
		Order("id desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := actionFromRow(row)
	return &rec, nil
}

func (s *Store) RevokeTrust(ctx context.Context, accountID string) (bool, error) {
	now := time.Now().UTC()
	res := activeScope(s.db.WithContext(ctx).Model(&ActionRecord{}), now).
		Where("account_id = ? AND kind = ?", accountID, string(enforce.KindTrust)).
		Update("reversed_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MarkReversed(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&ActionRecord{}).
		Where("id = ? AND reversed_at IS NULL", id).
		Update("reversed_at", time.Now().UTC()).Error
}

// ClaimExpired leases up to limit expired records and returns them. The
// conditional update is the claim: a record another sweep leased inside
// the window, or already reversed, is skipped, so each record goes to one
// caller at a time. Reversal is marked separately via MarkReversed; an
// unreversed record becomes claimable again once the lease lapses.
func (s *Store) ClaimExpired(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]enforce.ActionRecord, error) {
	cutoff := now.Add(-lease)
	var candidates []ActionRecord
	err := s.db.WithContext(ctx).
		Where("reversed_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ? AND (claimed_at IS NULL OR claimed_at < ?)", now, cutoff).
		Order("expires_at").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	var claimed []enforce.ActionRecord
	for _, row := range candidates {
		res := s.db.WithContext(ctx).Model(&ActionRecord{}).
			Where("id = ? AND reversed_at IS NULL AND (claimed_at IS NULL OR claimed_at < ?)", row.ID, cutoff).
			Update("claimed_at", now)
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		row.ClaimedAt = &now
		claimed = append(claimed, actionFromRow(row))
	}
	return claimed, nil
}

// ActionsForAccount lists an account's records, newest first.
func (s *Store) ActionsForAccount(ctx context.Context, accountID string) ([]enforce.ActionRecord, error) {
	var rows []ActionRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]enforce.ActionRecord, len(rows))
	for i, row := range rows {
		out[i] = actionFromRow(row)
	}
	return out, nil
}

// PruneActionRecords bulk-deletes records reversed before the cutoff.
// Active and merely-expired records are never touched.
func (s *Store) PruneActionRecords(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("reversed_at IS NOT NULL AND reversed_at < ?", before).
		Delete(&ActionRecord{})
	return res.RowsAffected, res.Error
}

// --- audit ---

func (s *Store) AppendAudit(ctx context.Context, actor, target, action, outcome, detail string) error {
	return s.db.WithContext(ctx).Create(&AuditEvent{
		CreatedAt: time.Now().UTC(),
		Actor:     actor,
		Target:    target,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
	}).Error
}

// AuditForTarget lists audit events about one account, newest first.
func (s *Store) AuditForTarget(ctx context.Context, target string, limit int) ([]AuditEvent, error) {
	var rows []AuditEvent
	err := s.db.WithContext(ctx).
		Where("target = ?", target).
		Order("id desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
