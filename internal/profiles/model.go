package profiles

import "strings"

// Default display values applied when a profile is created lazily, before the
// user has customized anything.
const (
	DefaultName    = "Dreamer"
	DefaultPicture = "/default-profile.svg"
)

// Profile is the per-identity aggregate and display record. The two counters
// are maintained incrementally and repaired by Recount; treat them as
// eventually consistent.
type Profile struct {
	UserID            string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Name              string `gorm:"column:name;size:320;not null;default:''"`
	Bio               string `gorm:"column:bio;type:text;not null;default:''"`
	Picture           string `gorm:"column:picture;size:512;not null;default:''"`
	TotalDreams       int64  `gorm:"column:total_dreams;not null;default:0"`
	PublicDreams      int64  `gorm:"column:public_dreams;not null;default:0"`
	HasSeenGuide      bool   `gorm:"column:has_seen_guide;not null;default:false"`
	JoinedAtSeconds   int64  `gorm:"column:joined_at_s;not null"`
	LastActiveSeconds int64  `gorm:"column:last_active_s;not null"`
}

// TableName exposes the table backing profiles.
func (Profile) TableName() string {
	return "profiles"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
