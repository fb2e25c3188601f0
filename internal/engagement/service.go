package engagement

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
	ErrNotFound = errors.New("engagement: dream not found")
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("engagement: invalid input")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
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
	opServiceNew   = "engagement.service.new"
	opToggleLike   = "engagement.toggle_like"
	opLikeSummary  = "engagement.like_summary"
	opAddComment   = "engagement.add_comment"
	opListComments = "engagement.list_comments"
	opCounts       = "engagement.counts"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Enrichment reads join the dreams and profiles tables by name so the
// package dependencies stay one-way.
const (
	dreamsTable   = "dreams"
	profilesTable = "profiles"

	anonymousName    = "Anonymous Dreamer"
	anonymousPicture = "/default-profile.svg"
)

// IDProvider issues like and comment identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the engagement store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists likes and comments against dreams.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the engagement store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
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
		logger:     logger,
	}, nil
}

// ToggleLike creates the like when absent and removes it when present,
// returning the resulting liked state. Any authenticated identity may like any
// dream, including their own; retries are safe because the pair is unique.
func (s *Service) ToggleLike(ctx context.Context, userID, dreamID string) (bool, error) {
	if s.db == nil {
		return false, newServiceError(opToggleLike, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(dreamID) == "" {
		return false, newServiceError(opToggleLike, "missing_identifier", fmt.Errorf("%w: user and dream ids required", ErrValidation))
	}

	if err := s.requireDream(ctx, opToggleLike, dreamID); err != nil {
		return false, err
	}

	var existing Like
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND dream_id = ?", userID, dreamID).
		Take(&existing).Error
	if err == nil {
		if err := s.db.WithContext(ctx).Delete(&Like{}, "like_id = ?", existing.LikeID).Error; err != nil {
			s.logError(opToggleLike, "delete_failed", err, zap.String("dream_id", dreamID))
			return false, newServiceError(opToggleLike, "delete_failed", err)
		}
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opToggleLike, "select_failed", err, zap.String("dream_id", dreamID))
		return false, newServiceError(opToggleLike, "select_failed", err)
	}

	likeID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opToggleLike, "id_generation_failed", err)
		return false, newServiceError(opToggleLike, "id_generation_failed", err)
	}
	like := Like{
		LikeID:           likeID,
		UserID:           userID,
		DreamID:          dreamID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&like).Error; err != nil {
		s.logError(opToggleLike, "insert_failed", err, zap.String("dream_id", dreamID))
		return false, newServiceError(opToggleLike, "insert_failed", err)
	}
	return true, nil
}

// Summary returns the like count for a dream and whether the viewer liked it.
func (s *Service) Summary(ctx context.Context, dreamID, viewerID string) (LikeSummary, error) {
	if s.db == nil {
		return LikeSummary{}, newServiceError(opLikeSummary, "missing_database", errMissingDatabase)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Like{}).
		Where("dream_id = ?", dreamID).
		Count(&count).Error; err != nil {
		s.logError(opLikeSummary, "count_failed", err, zap.String("dream_id", dreamID))
		return LikeSummary{}, newServiceError(opLikeSummary, "count_failed", err)
	}

	viewerLiked := false
	if strings.TrimSpace(viewerID) != "" {
		var viewerCount int64
		if err := s.db.WithContext(ctx).Model(&Like{}).
			Where("dream_id = ? AND user_id = ?", dreamID, viewerID).
			Count(&viewerCount).Error; err != nil {
			s.logError(opLikeSummary, "viewer_count_failed", err, zap.String("dream_id", dreamID))
			return LikeSummary{}, newServiceError(opLikeSummary, "viewer_count_failed", err)
		}
		viewerLiked = viewerCount > 0
	}

	return LikeSummary{Count: count, ViewerLiked: viewerLiked}, nil
}

// AddComment appends a comment to an existing dream.
func (s *Service) AddComment(ctx context.Context, userID, dreamID, body string) (Comment, error) {
	if s.db == nil {
		return Comment{}, newServiceError(opAddComment, "missing_database", errMissingDatabase)
	}
	if strings.TrimSpace(userID) == "" {
		return Comment{}, newServiceError(opAddComment, "missing_user_id", fmt.Errorf("%w: user id required", ErrValidation))
	}
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return Comment{}, newServiceError(opAddComment, "body_required", fmt.Errorf("%w: empty comment", ErrValidation))
	}

	if err := s.requireDream(ctx, opAddComment, dreamID); err != nil {
		return Comment{}, err
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddComment, "id_generation_failed", err)
		return Comment{}, newServiceError(opAddComment, "id_generation_failed", err)
	}
	comment := Comment{
		CommentID:        commentID,
		DreamID:          dreamID,
		UserID:           userID,
		Body:             trimmed,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logError(opAddComment, "insert_failed", err, zap.String("dream_id", dreamID))
		return Comment{}, newServiceError(opAddComment, "insert_failed", err)
	}
	return comment, nil
}

// ListComments returns the comments for a dream oldest first, each enriched
// with the commenting identity's current profile. Authorship display follows
// live profile edits because enrichment happens at read time.
func (s *Service) ListComments(ctx context.Context, dreamID string) ([]CommentView, error) {
	if s.db == nil {
		return nil, newServiceError(opListComments, "missing_database", errMissingDatabase)
	}

	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("dream_id = ?", dreamID).
		Order("created_at_s ASC, comment_id ASC").
		Find(&comments).Error; err != nil {
		s.logError(opListComments, "query_failed", err, zap.String("dream_id", dreamID))
		return nil, newServiceError(opListComments, "query_failed", err)
	}

	authorIDs := make([]string, 0, len(comments))
	seen := make(map[string]struct{}, len(comments))
	for _, comment := range comments {
		if _, ok := seen[comment.UserID]; ok {
			continue
		}
		seen[comment.UserID] = struct{}{}
		authorIDs = append(authorIDs, comment.UserID)
	}

	authors, err := s.authorProfiles(ctx, authorIDs)
	if err != nil {
		s.logError(opListComments, "author_lookup_failed", err, zap.String("dream_id", dreamID))
		return nil, newServiceError(opListComments, "author_lookup_failed", err)
	}

	views := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		view := CommentView{
			CommentID:        comment.CommentID,
			DreamID:          comment.DreamID,
			UserID:           comment.UserID,
			Body:             comment.Body,
			CreatedAtSeconds: comment.CreatedAtSeconds,
			AuthorName:       anonymousName,
			AuthorPicture:    anonymousPicture,
		}
		if author, ok := authors[comment.UserID]; ok {
			view.AuthorName = author.Name
			view.AuthorPicture = author.Picture
		}
		views = append(views, view)
	}
	return views, nil
}

// Counts returns per-dream like and comment totals for the given page of
// dream identifiers, one query per table.
func (s *Service) Counts(ctx context.Context, dreamIDs []string) (map[string]int64, map[string]int64, error) {
	if s.db == nil {
		return nil, nil, newServiceError(opCounts, "missing_database", errMissingDatabase)
	}
	likes := make(map[string]int64, len(dreamIDs))
	comments := make(map[string]int64, len(dreamIDs))
	if len(dreamIDs) == 0 {
		return likes, comments, nil
	}

	type countRow struct {
		DreamID string `gorm:"column:dream_id"`
		Total   int64  `gorm:"column:total"`
	}

	var likeRows []countRow
	if err := s.db.WithContext(ctx).Model(&Like{}).
		Select("dream_id, COUNT(*) AS total").
		Where("dream_id IN ?", dreamIDs).
		Group("dream_id").
		Find(&likeRows).Error; err != nil {
		s.logError(opCounts, "like_counts_failed", err)
		return nil, nil, newServiceError(opCounts, "like_counts_failed", err)
	}
	for _, row := range likeRows {
		likes[row.DreamID] = row.Total
	}

	var commentRows []countRow
	if err := s.db.WithContext(ctx).Model(&Comment{}).
		Select("dream_id, COUNT(*) AS total").
		Where("dream_id IN ?", dreamIDs).
		Group("dream_id").
		Find(&commentRows).Error; err != nil {
		s.logError(opCounts, "comment_counts_failed", err)
		return nil, nil, newServiceError(opCounts, "comment_counts_failed", err)
	}
	for _, row := range commentRows {
		comments[row.DreamID] = row.Total
	}

	return likes, comments, nil
}

type authorProfile struct {
	UserID  string `gorm:"column:user_id"`
	Name    string `gorm:"column:name"`
	Picture string `gorm:"column:picture"`
}

func (s *Service) authorProfiles(ctx context.Context, userIDs []string) (map[string]authorProfile, error) {
	profiles := make(map[string]authorProfile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var rows []authorProfile
	if err := s.db.WithContext(ctx).Table(profilesTable).
		Select("user_id, name, picture").
		Where("user_id IN ?", userIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		profiles[row.UserID] = row
	}
	return profiles, nil
}

func (s *Service) requireDream(ctx context.Context, operation, dreamID string) error {
	trimmed := strings.TrimSpace(dreamID)
	if trimmed == "" {
		return newServiceError(operation, "missing_dream_id", fmt.Errorf("%w: dream id required", ErrValidation))
	}
	var count int64
	if err := s.db.WithContext(ctx).Table(dreamsTable).
		Where("dream_id = ?", trimmed).
		Count(&count).Error; err != nil {
		s.logError(operation, "dream_lookup_failed", err, zap.String("dream_id", trimmed))
		return newServiceError(operation, "dream_lookup_failed", err)
	}
	if count == 0 {
		return newServiceError(operation, "dream_not_found", fmt.Errorf("%w: %s", ErrNotFound, trimmed))
	}
	return nil
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
	s.loggerOrDefault().Error("engagement service error", attrs...)
}
