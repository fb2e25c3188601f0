package engagement

// Like is one (identity, dream) engagement edge. The composite unique index
// backs the at-most-one-like-per-pair invariant.
type Like struct {
	LikeID           string `gorm:"column:like_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_likes_user_dream,priority:1"`
	DreamID          string `gorm:"column:dream_id;size:190;not null;uniqueIndex:idx_likes_user_dream,priority:2;index:idx_likes_dream"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Like) TableName() string {
	return "likes"
}

// Comment is an append-only engagement record. Rows are immutable once
// created; author display data is joined live at read time, never snapshotted.
type Comment struct {
	CommentID        string `gorm:"column:comment_id;primaryKey;size:190;not null"`
	DreamID          string `gorm:"column:dream_id;size:190;not null;index:idx_comments_dream"`
	UserID           string `gorm:"column:user_id;size:190;not null"`
	Body             string `gorm:"column:body;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// LikeSummary reports like state for one dream from a viewer's perspective.
type LikeSummary struct {
	Count       int64
	ViewerLiked bool
}

// CommentView is a comment enriched with the author's current profile.
type CommentView struct {
	CommentID        string
	DreamID          string
	UserID           string
	Body             string
	CreatedAtSeconds int64
	AuthorName       string
	AuthorPicture    string
}
