package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dreamscape-labs/dreamscape/backend/internal/dreams"
	"github.com/dreamscape-labs/dreamscape/backend/internal/feed"
	"github.com/dreamscape-labs/dreamscape/backend/internal/profiles"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type tagPayload struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

type creatorPayload struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type dreamPayload struct {
	DreamID          string       `json:"dream_id"`
	UserID           string       `json:"user_id"`
	Body             string       `json:"body"`
	ImageURL         string       `json:"image_url,omitempty"`
	DateSeconds      int64        `json:"date_s"`
	Public           bool         `json:"public"`
	Tags             []tagPayload `json:"tags"`
	CreatorName      string       `json:"creator_name,omitempty"`
	CreatorPicture   string       `json:"creator_picture,omitempty"`
	CreatedAtSeconds int64        `json:"created_at_s"`
}

type dreamRequestPayload struct {
	Body        string       `json:"body"`
	ImageURL    string       `json:"image_url"`
	DateSeconds int64        `json:"date_s"`
	Public      bool         `json:"public"`
	Tags        []tagPayload `json:"tags"`
}

func toDreamPayload(dream dreams.Dream, logger *zap.Logger) dreamPayload {
	tags, err := dream.Tags()
	if err != nil {
		logger.Warn("dropping malformed dream tags",
			zap.String("dream_id", dream.DreamID),
			zap.Error(err))
		tags = nil
	}
	return dreamPayload{
		DreamID:          dream.DreamID,
		UserID:           dream.UserID,
		Body:             dream.Body,
		ImageURL:         dream.ImageURL,
		DateSeconds:      dream.DateSeconds,
		Public:           dream.Public,
		Tags:             toTagPayloads(tags),
		CreatorName:      dream.CreatorName,
		CreatorPicture:   dream.CreatorPicture,
		CreatedAtSeconds: dream.CreatedAtSeconds,
	}
}

func toTagPayloads(tags []dreams.Tag) []tagPayload {
	payloads := make([]tagPayload, 0, len(tags))
	for _, tag := range tags {
		payloads = append(payloads, tagPayload{ID: tag.ID, Label: tag.Label, Color: tag.Color})
	}
	return payloads
}

func fromTagPayloads(payloads []tagPayload) []dreams.Tag {
	tags := make([]dreams.Tag, 0, len(payloads))
	for _, payload := range payloads {
		tags = append(tags, dreams.Tag{ID: payload.ID, Label: payload.Label, Color: payload.Color})
	}
	return tags
}

func (h *httpHandler) handleListDreams(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	page, err := h.dreams.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]dreamPayload, 0, len(page))
	for _, dream := range page {
		payloads = append(payloads, toDreamPayload(dream, h.logger))
	}
	c.JSON(http.StatusOK, gin.H{"dreams": payloads})
}

func (h *httpHandler) handleCreateDream(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request dreamRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	dream, err := h.dreams.Create(c.Request.Context(), dreams.CreateRequest{
		UserID:      userID,
		Body:        request.Body,
		Tags:        fromTagPayloads(request.Tags),
		ImageURL:    request.ImageURL,
		DateSeconds: request.DateSeconds,
		Public:      request.Public,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDreamPayload(dream, h.logger))
}

func (h *httpHandler) handleUpdateDream(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request dreamRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	dream, err := h.dreams.Update(c.Request.Context(), dreams.UpdateRequest{
		DreamID:     c.Param("dreamId"),
		CallerID:    userID,
		Body:        request.Body,
		Tags:        fromTagPayloads(request.Tags),
		ImageURL:    request.ImageURL,
		DateSeconds: request.DateSeconds,
		Public:      request.Public,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDreamPayload(dream, h.logger))
}

func (h *httpHandler) handleDeleteDream(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if err := h.dreams.Delete(c.Request.Context(), c.Param("dreamId"), userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *httpHandler) handleToggleVisibility(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	dream, err := h.dreams.ToggleVisibility(c.Request.Context(), c.Param("dreamId"), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDreamPayload(dream, h.logger))
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	liked, err := h.engagement.ToggleLike(c.Request.Context(), userID, c.Param("dreamId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func (h *httpHandler) handleLikeSummary(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	summary, err := h.engagement.Summary(c.Request.Context(), c.Param("dreamId"), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":        summary.Count,
		"viewer_liked": summary.ViewerLiked,
	})
}

type commentRequestPayload struct {
	Body string `json:"body"`
}

type commentPayload struct {
	CommentID        string `json:"comment_id"`
	DreamID          string `json:"dream_id"`
	UserID           string `json:"user_id"`
	Body             string `json:"body"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	AuthorName       string `json:"author_name,omitempty"`
	AuthorPicture    string `json:"author_picture,omitempty"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request commentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	comment, err := h.engagement.AddComment(c.Request.Context(), userID, c.Param("dreamId"), request.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, commentPayload{
		CommentID:        comment.CommentID,
		DreamID:          comment.DreamID,
		UserID:           comment.UserID,
		Body:             comment.Body,
		CreatedAtSeconds: comment.CreatedAtSeconds,
	})
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	views, err := h.engagement.ListComments(c.Request.Context(), c.Param("dreamId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]commentPayload, 0, len(views))
	for _, view := range views {
		payloads = append(payloads, commentPayload{
			CommentID:        view.CommentID,
			DreamID:          view.DreamID,
			UserID:           view.UserID,
			Body:             view.Body,
			CreatedAtSeconds: view.CreatedAtSeconds,
			AuthorName:       view.AuthorName,
			AuthorPicture:    view.AuthorPicture,
		})
	}
	c.JSON(http.StatusOK, gin.H{"comments": payloads})
}

type generateImageRequestPayload struct {
	Prompt string `json:"prompt"`
}

func (h *httpHandler) handleGenerateImage(c *gin.Context) {
	if h.images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image_generation_unavailable"})
		return
	}
	var request generateImageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	imageURL, err := h.images.Generate(c.Request.Context(), request.Prompt)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"image_url": imageURL})
}

type uploadAssetRequestPayload struct {
	ImageURL string `json:"image_url"`
}

func (h *httpHandler) handleUploadAsset(c *gin.Context) {
	if h.uploads == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "asset_storage_unavailable"})
		return
	}
	var request uploadAssetRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ImageURL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	durableURL, err := h.uploads.UploadFromURL(c.Request.Context(), request.ImageURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"image_url": durableURL})
}

type feedItemPayload struct {
	DreamID      string         `json:"dream_id"`
	UserID       string         `json:"user_id"`
	Body         string         `json:"body"`
	ImageURL     string         `json:"image_url,omitempty"`
	DateSeconds  int64          `json:"date_s"`
	Tags         []tagPayload   `json:"tags"`
	Creator      creatorPayload `json:"creator"`
	LikeCount    int64          `json:"like_count"`
	CommentCount int64          `json:"comment_count"`
}

type galleryResponsePayload struct {
	Items         []feedItemPayload `json:"items"`
	TagVocabulary []string          `json:"tag_vocabulary"`
}

// handleGallery serves the public feed. Query parameters: limit caps the page,
// tags is a comma-separated AND filter on labels, sort picks the comparator,
// enriched attaches engagement counts. Count-based sorts force enrichment.
func (h *httpHandler) handleGallery(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	sortKey := feed.SortLatest
	if raw := strings.TrimSpace(c.Query("sort")); raw != "" {
		parsed, err := feed.ParseSortKey(raw)
		if err != nil {
			h.respondError(c, err)
			return
		}
		sortKey = parsed
	}

	enriched := strings.EqualFold(strings.TrimSpace(c.Query("enriched")), "true")
	if sortKey.NeedsCounts() {
		enriched = true
	}

	items, err := h.feed.Assemble(c.Request.Context(), limit, enriched)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var tagLabels []string
	if raw := strings.TrimSpace(c.Query("tags")); raw != "" {
		tagLabels = strings.Split(raw, ",")
	}

	// Vocabulary derives from the unfiltered snapshot so deselecting a tag
	// always remains possible.
	vocabulary := feed.TagVocabulary(items)
	shaped := feed.Apply(items, tagLabels, sortKey)

	response := galleryResponsePayload{
		Items:         make([]feedItemPayload, 0, len(shaped)),
		TagVocabulary: vocabulary,
	}
	for _, item := range shaped {
		response.Items = append(response.Items, feedItemPayload{
			DreamID:     item.DreamID,
			UserID:      item.UserID,
			Body:        item.Body,
			ImageURL:    item.ImageURL,
			DateSeconds: item.DateSeconds,
			Tags:        toTagPayloads(item.Tags),
			Creator: creatorPayload{
				UserID:  item.Creator.UserID,
				Name:    item.Creator.Name,
				Picture: item.Creator.Picture,
			},
			LikeCount:    item.LikeCount,
			CommentCount: item.CommentCount,
		})
	}
	c.JSON(http.StatusOK, response)
}

type profilePayload struct {
	UserID            string `json:"user_id"`
	Name              string `json:"name"`
	Bio               string `json:"bio"`
	Picture           string `json:"picture"`
	TotalDreams       int64  `json:"total_dreams"`
	PublicDreams      int64  `json:"public_dreams"`
	HasSeenGuide      bool   `json:"has_seen_guide"`
	JoinedAtSeconds   int64  `json:"joined_at_s"`
	LastActiveSeconds int64  `json:"last_active_s"`
}

func toProfilePayload(profile profiles.Profile) profilePayload {
	return profilePayload{
		UserID:            profile.UserID,
		Name:              profile.Name,
		Bio:               profile.Bio,
		Picture:           profile.Picture,
		TotalDreams:       profile.TotalDreams,
		PublicDreams:      profile.PublicDreams,
		HasSeenGuide:      profile.HasSeenGuide,
		JoinedAtSeconds:   profile.JoinedAtSeconds,
		LastActiveSeconds: profile.LastActiveSeconds,
	}
}

func (h *httpHandler) handleGetOwnProfile(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	profile, err := h.profiles.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfilePayload(profile))
}

type profileUpdatePayload struct {
	Name         *string `json:"name"`
	Bio          *string `json:"bio"`
	Picture      *string `json:"picture"`
	HasSeenGuide *bool   `json:"has_seen_guide"`
}

func (h *httpHandler) handleUpdateOwnProfile(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request profileUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.profiles.UpdateFields(c.Request.Context(), userID, profiles.UpdateRequest{
		Name:         request.Name,
		Bio:          request.Bio,
		Picture:      request.Picture,
		HasSeenGuide: request.HasSeenGuide,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfilePayload(profile))
}

func (h *httpHandler) handleRecountOwnProfile(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	profile, err := h.profiles.RecountProfile(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProfilePayload(profile))
}

// handleGetProfile serves another identity's public profile card. It uses the
// read-only lookup path so probing an unknown id does not create rows.
func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.profiles.Lookup(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profilePayload{
		UserID:       profile.UserID,
		Name:         profile.Name,
		Bio:          profile.Bio,
		Picture:      profile.Picture,
		TotalDreams:  profile.TotalDreams,
		PublicDreams: profile.PublicDreams,
	})
}
