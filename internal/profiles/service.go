package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates a direct update referenced a profile that does not exist.
	ErrNotFound = errors.New("profiles: not found")
	// ErrInvalidUserID indicates the supplied identity key is unusable.
	ErrInvalidUserID = errors.New("profiles: invalid user id")
)

// The dreams table is queried by name during recounts so the dependency
// between the two packages stays one-way.
const dreamsTable = "dreams"

// ServiceConfig describes the dependencies for profile management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages per-identity profiles and their dream counters.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("profiles: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// GetOrCreate returns the profile for the identity, creating a default one on
// first reference. It never fails on absence.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (Profile, error) {
	id := normalize(userID)
	if id == "" {
		return Profile{}, ErrInvalidUserID
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := s.now().UTC().Unix()
		profile = Profile{
			UserID:            id,
			Name:              DefaultName,
			Picture:           DefaultPicture,
			JoinedAtSeconds:   now,
			LastActiveSeconds: now,
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return Profile{}, err
		}
		return profile, nil
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Lookup returns the profile for the identity without creating one. Viewing
// an unknown identity is ErrNotFound rather than a lazily created row.
func (s *Service) Lookup(ctx context.Context, userID string) (Profile, error) {
	id := normalize(userID)
	if id == "" {
		return Profile{}, ErrInvalidUserID
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Ensure creates or refreshes a profile from verified login claims. Display
// fields from the identity provider are only adopted when non-empty and the
// user has not already diverged from the defaults.
func (s *Service) Ensure(ctx context.Context, userID, name, picture string) (Profile, error) {
	profile, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	updates := map[string]interface{}{}
	if claimName := normalize(name); claimName != "" && profile.Name == DefaultName {
		updates["name"] = claimName
		profile.Name = claimName
	}
	if claimPicture := normalize(picture); claimPicture != "" && profile.Picture == DefaultPicture {
		updates["picture"] = claimPicture
		profile.Picture = claimPicture
	}
	lastActive := s.now().UTC().Unix()
	updates["last_active_s"] = lastActive
	profile.LastActiveSeconds = lastActive

	if err := s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", profile.UserID).
		Updates(updates).Error; err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// UpdateRequest lists the optional profile fields a partial update may change.
type UpdateRequest struct {
	Name         *string
	Bio          *string
	Picture      *string
	HasSeenGuide *bool
}

// UpdateFields applies a partial update; only provided fields change. Unlike
// GetOrCreate it fails when the profile is absent.
func (s *Service) UpdateFields(ctx context.Context, userID string, request UpdateRequest) (Profile, error) {
	id := normalize(userID)
	if id == "" {
		return Profile{}, ErrInvalidUserID
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("user_id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Profile{}, err
	}

	updates := map[string]interface{}{}
	if request.Name != nil {
		profile.Name = normalize(*request.Name)
		updates["name"] = profile.Name
	}
	if request.Bio != nil {
		profile.Bio = normalize(*request.Bio)
		updates["bio"] = profile.Bio
	}
	if request.Picture != nil {
		profile.Picture = normalize(*request.Picture)
		updates["picture"] = profile.Picture
	}
	if request.HasSeenGuide != nil {
		profile.HasSeenGuide = *request.HasSeenGuide
		updates["has_seen_guide"] = profile.HasSeenGuide
	}
	if len(updates) == 0 {
		return profile, nil
	}
	lastActive := s.now().UTC().Unix()
	updates["last_active_s"] = lastActive
	profile.LastActiveSeconds = lastActive

	if err := s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", id).
		Updates(updates).Error; err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Recount recomputes both dream counters from the dream store and persists
// them. It is idempotent and safe to call at any time; it is the repair
// operation for counter drift.
func (s *Service) Recount(ctx context.Context, userID string) error {
	_, err := s.RecountProfile(ctx, userID)
	return err
}

// RecountProfile is Recount returning the repaired profile.
func (s *Service) RecountProfile(ctx context.Context, userID string) (Profile, error) {
	profile, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	var total, public int64
	if err := s.db.WithContext(ctx).Table(dreamsTable).
		Where("user_id = ?", profile.UserID).
		Count(&total).Error; err != nil {
		return Profile{}, err
	}
	if err := s.db.WithContext(ctx).Table(dreamsTable).
		Where("user_id = ? AND public = ?", profile.UserID, true).
		Count(&public).Error; err != nil {
		return Profile{}, err
	}

	if profile.TotalDreams != total || profile.PublicDreams != public {
		s.logger.Info("profile counters repaired",
			zap.String("user_id", profile.UserID),
			zap.Int64("total_dreams", total),
			zap.Int64("public_dreams", public))
	}

	if err := s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", profile.UserID).
		Updates(map[string]interface{}{
			"total_dreams":  total,
			"public_dreams": public,
		}).Error; err != nil {
		return Profile{}, err
	}
	profile.TotalDreams = total
	profile.PublicDreams = public
	return profile, nil
}

// RecordDreamCreated bumps the owner's counters after a dream insert.
func (s *Service) RecordDreamCreated(ctx context.Context, userID string, isPublic bool) error {
	profile, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"total_dreams": gorm.Expr("total_dreams + 1"),
	}
	if isPublic {
		updates["public_dreams"] = gorm.Expr("public_dreams + 1")
	}
	return s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", profile.UserID).
		Updates(updates).Error
}

// DisplayInfo returns the current display name and picture for the identity,
// creating the profile when absent. This is the live lookup used to stamp
// creator snapshots.
func (s *Service) DisplayInfo(ctx context.Context, userID string) (string, string, error) {
	profile, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return profile.Name, profile.Picture, nil
}
