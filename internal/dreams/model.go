package dreams

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDreamID indicates that a dream identifier is empty or exceeds storage bounds.
	ErrInvalidDreamID = errors.New("dreams: invalid dream id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("dreams: invalid user id")
)

// DreamID represents a validated dream identifier.
type DreamID string

// NewDreamID validates raw input and returns a DreamID.
func NewDreamID(rawInput string) (DreamID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDreamID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDreamID, maxIdentifierLength)
	}
	return DreamID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DreamID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Tag labels a dream. Labels are matched case-insensitively by the feed filter.
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Dream models one persisted journal entry. The creator columns hold a
// denormalized display snapshot captured on the transition to public; they can
// lag live profile edits and readers that need live identity must fetch the
// profile directly.
type Dream struct {
	DreamID          string `gorm:"column:dream_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;size:190;not null;index:idx_dreams_user_date,priority:1"`
	Body             string `gorm:"column:body;type:text;not null"`
	ImageURL         string `gorm:"column:image_url;size:512;not null;default:''"`
	DateSeconds      int64  `gorm:"column:date_s;not null;index:idx_dreams_user_date,priority:2"`
	Public           bool   `gorm:"column:public;not null;default:false;index:idx_dreams_public"`
	TagsJSON         string `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	CreatorName      string `gorm:"column:creator_name;size:320;not null;default:''"`
	CreatorPicture   string `gorm:"column:creator_picture;size:512;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Dream) TableName() string {
	return "dreams"
}

// Tags decodes the persisted tag list.
func (d Dream) Tags() ([]Tag, error) {
	if strings.TrimSpace(d.TagsJSON) == "" {
		return nil, nil
	}
	var tags []Tag
	if err := json.Unmarshal([]byte(d.TagsJSON), &tags); err != nil {
		return nil, fmt.Errorf("dreams: decode tags: %w", err)
	}
	return tags, nil
}

// normalizeTags deduplicates tags by id, keeping first occurrence order, and
// drops entries without an id or label.
func normalizeTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]Tag, 0, len(tags))
	for _, tag := range tags {
		id := strings.TrimSpace(tag.ID)
		label := strings.TrimSpace(tag.Label)
		if id == "" || label == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		normalized = append(normalized, Tag{ID: id, Label: label, Color: strings.TrimSpace(tag.Color)})
	}
	return normalized
}

func encodeTags(tags []Tag) (string, error) {
	normalized := normalizeTags(tags)
	if len(normalized) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("dreams: encode tags: %w", err)
	}
	return string(encoded), nil
}
