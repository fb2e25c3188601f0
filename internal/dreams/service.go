package dreams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the referenced dream does not exist.
	ErrNotFound = errors.New("dreams: not found")
	// ErrForbidden indicates the caller does not own the referenced dream.
	ErrForbidden = errors.New("dreams: forbidden")
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("dreams: invalid input")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingProfiles   = errors.New("profile directory is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries an operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "dreams.service.new"
	opCreate     = "dreams.create"
	opUpdate     = "dreams.update"
	opDelete     = "dreams.delete"
	opToggle     = "dreams.toggle_visibility"
	opListOwner  = "dreams.list_by_owner"
	opListPublic = "dreams.list_public"
	opExists     = "dreams.exists"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ProfileDirectory is the slice of the profile service the dream store needs:
// snapshot data for the creator columns and counter maintenance after
// ownership- or visibility-affecting mutations.
type ProfileDirectory interface {
	DisplayInfo(ctx context.Context, userID string) (name string, picture string, err error)
	RecordDreamCreated(ctx context.Context, userID string, isPublic bool) error
	Recount(ctx context.Context, userID string) error
}

// IDProvider issues dream identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the dream store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Profiles   ProfileDirectory
	Logger     *zap.Logger
}

// Service persists dreams and enforces single-owner mutation rules.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	profiles   ProfileDirectory
	logger     *zap.Logger
}

// NewService constructs the dream store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Profiles == nil {
		return nil, newServiceError(opServiceNew, "missing_profiles", errMissingProfiles)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		profiles:   cfg.Profiles,
		logger:     logger,
	}, nil
}

// CreateRequest carries the owner-supplied fields for a new dream.
type CreateRequest struct {
	UserID      string
	Body        string
	Tags        []Tag
	ImageURL    string
	DateSeconds int64
	Public      bool
}

// UpdateRequest carries the full editable field set; update is a whole-record
// overwrite, never a partial merge.
type UpdateRequest struct {
	DreamID     string
	CallerID    string
	Body        string
	Tags        []Tag
	ImageURL    string
	DateSeconds int64
	Public      bool
}

// Create persists a new dream and bumps the owner's counters.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Dream, error) {
	if s.db == nil {
		return Dream{}, newServiceError(opCreate, "missing_database", errMissingDatabase)
	}
	userID, err := NewUserID(request.UserID)
	if err != nil {
		return Dream{}, newServiceError(opCreate, "missing_user_id", fmt.Errorf("%w: %v", ErrValidation, err))
	}
	body := trimmedBody(request.Body)
	if body == "" {
		return Dream{}, newServiceError(opCreate, "body_required", fmt.Errorf("%w: empty body", ErrValidation))
	}
	tagsJSON, err := encodeTags(request.Tags)
	if err != nil {
		return Dream{}, newServiceError(opCreate, "invalid_tags", fmt.Errorf("%w: %v", ErrValidation, err))
	}

	dreamID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", userID.String()))
		return Dream{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	dateSeconds := request.DateSeconds
	if dateSeconds <= 0 {
		dateSeconds = now.Unix()
	}

	dream := Dream{
		DreamID:          dreamID,
		UserID:           userID.String(),
		Body:             body,
		ImageURL:         request.ImageURL,
		DateSeconds:      dateSeconds,
		Public:           request.Public,
		TagsJSON:         tagsJSON,
		CreatedAtSeconds: now.Unix(),
	}

	if request.Public {
		name, picture, err := s.profiles.DisplayInfo(ctx, userID.String())
		if err != nil {
			s.logError(opCreate, "snapshot_fetch_failed", err, zap.String("user_id", userID.String()))
			return Dream{}, newServiceError(opCreate, "snapshot_fetch_failed", err)
		}
		dream.CreatorName = name
		dream.CreatorPicture = picture
	}

	if err := s.db.WithContext(ctx).Create(&dream).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", userID.String()))
		return Dream{}, newServiceError(opCreate, "insert_failed", err)
	}

	// The dream row is already committed; a counter failure here only leaves
	// drift the next recount repairs.
	if err := s.profiles.RecordDreamCreated(ctx, userID.String(), dream.Public); err != nil {
		s.logger.Warn("dream counter increment failed",
			zap.String("user_id", userID.String()),
			zap.String("dream_id", dream.DreamID),
			zap.Error(err))
	}

	return dream, nil
}

// Update overwrites the editable fields of an owned dream.
func (s *Service) Update(ctx context.Context, request UpdateRequest) (Dream, error) {
	if s.db == nil {
		return Dream{}, newServiceError(opUpdate, "missing_database", errMissingDatabase)
	}
	body := trimmedBody(request.Body)
	if body == "" {
		return Dream{}, newServiceError(opUpdate, "body_required", fmt.Errorf("%w: empty body", ErrValidation))
	}
	tagsJSON, err := encodeTags(request.Tags)
	if err != nil {
		return Dream{}, newServiceError(opUpdate, "invalid_tags", fmt.Errorf("%w: %v", ErrValidation, err))
	}

	dream, err := s.loadOwned(ctx, opUpdate, request.DreamID, request.CallerID)
	if err != nil {
		return Dream{}, err
	}

	wasPublic := dream.Public
	dream.Body = body
	dream.ImageURL = request.ImageURL
	dream.TagsJSON = tagsJSON
	dream.Public = request.Public
	if request.DateSeconds > 0 {
		dream.DateSeconds = request.DateSeconds
	}

	if !wasPublic && dream.Public {
		name, picture, err := s.profiles.DisplayInfo(ctx, dream.UserID)
		if err != nil {
			s.logError(opUpdate, "snapshot_fetch_failed", err, zap.String("user_id", dream.UserID))
			return Dream{}, newServiceError(opUpdate, "snapshot_fetch_failed", err)
		}
		dream.CreatorName = name
		dream.CreatorPicture = picture
	}

	if err := s.db.WithContext(ctx).Save(&dream).Error; err != nil {
		s.logError(opUpdate, "save_failed", err, zap.String("dream_id", dream.DreamID))
		return Dream{}, newServiceError(opUpdate, "save_failed", err)
	}

	if wasPublic != dream.Public {
		s.recountOwner(ctx, opUpdate, dream.UserID)
	}

	return dream, nil
}

// Delete removes an owned dream and recounts the owner's counters from source
// truth rather than decrementing, so previously lost updates cannot compound.
func (s *Service) Delete(ctx context.Context, dreamID, callerID string) error {
	if s.db == nil {
		return newServiceError(opDelete, "missing_database", errMissingDatabase)
	}

	dream, err := s.loadOwned(ctx, opDelete, dreamID, callerID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&Dream{}, "dream_id = ?", dream.DreamID).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.String("dream_id", dream.DreamID))
		return newServiceError(opDelete, "delete_failed", err)
	}

	s.recountOwner(ctx, opDelete, dream.UserID)
	return nil
}

// ToggleVisibility flips the public flag of an owned dream. The creator
// snapshot is refreshed only on the transition to public; flipping to private
// leaves it untouched. The owner's public counter is recomputed by full
// recount afterwards.
func (s *Service) ToggleVisibility(ctx context.Context, dreamID, callerID string) (Dream, error) {
	if s.db == nil {
		return Dream{}, newServiceError(opToggle, "missing_database", errMissingDatabase)
	}

	dream, err := s.loadOwned(ctx, opToggle, dreamID, callerID)
	if err != nil {
		return Dream{}, err
	}

	dream.Public = !dream.Public
	if dream.Public {
		name, picture, err := s.profiles.DisplayInfo(ctx, dream.UserID)
		if err != nil {
			s.logError(opToggle, "snapshot_fetch_failed", err, zap.String("user_id", dream.UserID))
			return Dream{}, newServiceError(opToggle, "snapshot_fetch_failed", err)
		}
		dream.CreatorName = name
		dream.CreatorPicture = picture
	}

	if err := s.db.WithContext(ctx).Save(&dream).Error; err != nil {
		s.logError(opToggle, "save_failed", err, zap.String("dream_id", dream.DreamID))
		return Dream{}, newServiceError(opToggle, "save_failed", err)
	}

	s.recountOwner(ctx, opToggle, dream.UserID)
	return dream, nil
}

// ListByOwner returns all dreams for the owner, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Dream, error) {
	if s.db == nil {
		return nil, newServiceError(opListOwner, "missing_database", errMissingDatabase)
	}
	userID, err := NewUserID(ownerID)
	if err != nil {
		return nil, newServiceError(opListOwner, "missing_user_id", fmt.Errorf("%w: %v", ErrValidation, err))
	}

	var results []Dream
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("date_s DESC, dream_id ASC").
		Find(&results).Error; err != nil {
		s.logError(opListOwner, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListOwner, "query_failed", err)
	}
	return results, nil
}

// ListPublic returns a page of public dreams, newest first. Equal timestamps
// order by dream id ascending so pagination stays deterministic.
func (s *Service) ListPublic(ctx context.Context, limit, offset int) ([]Dream, error) {
	if s.db == nil {
		return nil, newServiceError(opListPublic, "missing_database", errMissingDatabase)
	}
	if limit <= 0 {
		return nil, newServiceError(opListPublic, "invalid_limit", fmt.Errorf("%w: limit %d", ErrValidation, limit))
	}
	if offset < 0 {
		offset = 0
	}

	var results []Dream
	if err := s.db.WithContext(ctx).
		Where("public = ?", true).
		Order("date_s DESC, dream_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&results).Error; err != nil {
		s.logError(opListPublic, "query_failed", err)
		return nil, newServiceError(opListPublic, "query_failed", err)
	}
	return results, nil
}

// Exists reports whether a dream with the given identifier is persisted.
func (s *Service) Exists(ctx context.Context, dreamID string) (bool, error) {
	if s.db == nil {
		return false, newServiceError(opExists, "missing_database", errMissingDatabase)
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Dream{}).
		Where("dream_id = ?", dreamID).
		Count(&count).Error; err != nil {
		s.logError(opExists, "query_failed", err, zap.String("dream_id", dreamID))
		return false, newServiceError(opExists, "query_failed", err)
	}
	return count > 0, nil
}

func (s *Service) loadOwned(ctx context.Context, operation, dreamID, callerID string) (Dream, error) {
	id, err := NewDreamID(dreamID)
	if err != nil {
		return Dream{}, newServiceError(operation, "missing_dream_id", fmt.Errorf("%w: %v", ErrValidation, err))
	}
	caller, err := NewUserID(callerID)
	if err != nil {
		return Dream{}, newServiceError(operation, "missing_user_id", fmt.Errorf("%w: %v", ErrValidation, err))
	}

	var dream Dream
	err = s.db.WithContext(ctx).Where("dream_id = ?", id.String()).Take(&dream).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Dream{}, newServiceError(operation, "not_found", fmt.Errorf("%w: %s", ErrNotFound, id.String()))
	}
	if err != nil {
		s.logError(operation, "select_failed", err, zap.String("dream_id", id.String()))
		return Dream{}, newServiceError(operation, "select_failed", err)
	}
	if dream.UserID != caller.String() {
		return Dream{}, newServiceError(operation, "forbidden", fmt.Errorf("%w: caller %s", ErrForbidden, caller.String()))
	}
	return dream, nil
}

func (s *Service) recountOwner(ctx context.Context, operation, userID string) {
	if err := s.profiles.Recount(ctx, userID); err != nil {
		s.logger.Warn("owner recount failed",
			zap.String("operation", operation),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func trimmedBody(body string) string {
	return strings.TrimSpace(body)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("dreams service error", attrs...)
}
