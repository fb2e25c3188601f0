package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamscape-labs/dreamscape/backend/internal/dreams"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingDreams     = errors.New("dream source is required")
	errMissingEngagement = errors.New("engagement counter is required")
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
	opServiceNew = "feed.service.new"
	opAssemble   = "feed.assemble"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const (
	defaultPageLimit = 100
	profilesTable    = "profiles"

	anonymousName    = "Anonymous Dreamer"
	anonymousPicture = "/default-profile.svg"
)

// Creator is the live display identity attached to each feed item.
type Creator struct {
	UserID  string
	Name    string
	Picture string
}

// FeedItem is one public dream joined with its creator's current profile and,
// in enriched mode, live engagement counts.
type FeedItem struct {
	DreamID      string
	UserID       string
	Body         string
	ImageURL     string
	DateSeconds  int64
	Tags         []dreams.Tag
	Creator      Creator
	LikeCount    int64
	CommentCount int64
}

// DreamSource is the slice of the dream store the assembler reads from.
type DreamSource interface {
	ListPublic(ctx context.Context, limit, offset int) ([]dreams.Dream, error)
}

// EngagementCounter supplies per-dream like and comment totals.
type EngagementCounter interface {
	Counts(ctx context.Context, dreamIDs []string) (map[string]int64, map[string]int64, error)
}

// ServiceConfig describes the dependencies of the feed assembler.
type ServiceConfig struct {
	Database   *gorm.DB
	Dreams     DreamSource
	Engagement EngagementCounter
	PageLimit  int
	Logger     *zap.Logger
}

// Service builds the creator-enriched public feed.
type Service struct {
	db         *gorm.DB
	dreams     DreamSource
	engagement EngagementCounter
	pageLimit  int
	logger     *zap.Logger
}

// NewService constructs the feed assembler.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Dreams == nil {
		return nil, newServiceError(opServiceNew, "missing_dreams", errMissingDreams)
	}
	if cfg.Engagement == nil {
		return nil, newServiceError(opServiceNew, "missing_engagement", errMissingEngagement)
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		dreams:     cfg.Dreams,
		engagement: cfg.Engagement,
		pageLimit:  pageLimit,
		logger:     logger,
	}, nil
}

// Assemble fetches up to limit public dreams newest first and joins each with
// its creator's current profile. Profiles for the page's distinct owners are
// fetched in one query. Enriched mode additionally attaches live like and
// comment counts. Owners without a profile fall back to an anonymous
// placeholder instead of failing the page.
func (s *Service) Assemble(ctx context.Context, limit int, enriched bool) ([]FeedItem, error) {
	if s.db == nil {
		return nil, newServiceError(opAssemble, "missing_database", errMissingDatabase)
	}
	if s.dreams == nil {
		return nil, newServiceError(opAssemble, "missing_dreams", errMissingDreams)
	}
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}

	page, err := s.dreams.ListPublic(ctx, limit, 0)
	if err != nil {
		s.logError(opAssemble, "list_public_failed", err)
		return nil, newServiceError(opAssemble, "list_public_failed", err)
	}
	if len(page) == 0 {
		return []FeedItem{}, nil
	}

	ownerIDs := make([]string, 0, len(page))
	dreamIDs := make([]string, 0, len(page))
	seenOwners := make(map[string]struct{}, len(page))
	for _, dream := range page {
		dreamIDs = append(dreamIDs, dream.DreamID)
		if _, ok := seenOwners[dream.UserID]; ok {
			continue
		}
		seenOwners[dream.UserID] = struct{}{}
		ownerIDs = append(ownerIDs, dream.UserID)
	}

	creators, err := s.creatorProfiles(ctx, ownerIDs)
	if err != nil {
		s.logError(opAssemble, "profile_batch_failed", err)
		return nil, newServiceError(opAssemble, "profile_batch_failed", err)
	}

	var likeCounts, commentCounts map[string]int64
	if enriched {
		likeCounts, commentCounts, err = s.engagement.Counts(ctx, dreamIDs)
		if err != nil {
			s.logError(opAssemble, "engagement_counts_failed", err)
			return nil, newServiceError(opAssemble, "engagement_counts_failed", err)
		}
	}

	items := make([]FeedItem, 0, len(page))
	for _, dream := range page {
		tags, err := dream.Tags()
		if err != nil {
			// A malformed tag blob should not sink the whole feed.
			s.logger.Warn("skipping malformed dream tags",
				zap.String("dream_id", dream.DreamID),
				zap.Error(err))
			tags = nil
		}

		creator := Creator{
			UserID:  dream.UserID,
			Name:    anonymousName,
			Picture: anonymousPicture,
		}
		if profile, ok := creators[dream.UserID]; ok {
			creator.Name = profile.Name
			creator.Picture = profile.Picture
		}

		item := FeedItem{
			DreamID:     dream.DreamID,
			UserID:      dream.UserID,
			Body:        dream.Body,
			ImageURL:    dream.ImageURL,
			DateSeconds: dream.DateSeconds,
			Tags:        tags,
			Creator:     creator,
		}
		if enriched {
			item.LikeCount = likeCounts[dream.DreamID]
			item.CommentCount = commentCounts[dream.DreamID]
		}
		items = append(items, item)
	}
	return items, nil
}

type creatorProfile struct {
	UserID  string `gorm:"column:user_id"`
	Name    string `gorm:"column:name"`
	Picture string `gorm:"column:picture"`
}

func (s *Service) creatorProfiles(ctx context.Context, userIDs []string) (map[string]creatorProfile, error) {
	profiles := make(map[string]creatorProfile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var rows []creatorProfile
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
	s.loggerOrDefault().Error("feed service error", attrs...)
}
