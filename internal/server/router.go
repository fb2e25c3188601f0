package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dreamscape-labs/dreamscape/backend/internal/assets"
	"github.com/dreamscape-labs/dreamscape/backend/internal/auth"
	"github.com/dreamscape-labs/dreamscape/backend/internal/dreams"
	"github.com/dreamscape-labs/dreamscape/backend/internal/engagement"
	"github.com/dreamscape-labs/dreamscape/backend/internal/feed"
	"github.com/dreamscape-labs/dreamscape/backend/internal/imagegen"
	"github.com/dreamscape-labs/dreamscape/backend/internal/profiles"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const userIDContextKey = "dreamscape_user_id"

var (
	errMissingGoogleVerifier    = errors.New("google verifier dependency required")
	errMissingTokenManager      = errors.New("token manager dependency required")
	errMissingDreamsService     = errors.New("dreams service dependency required")
	errMissingProfilesService   = errors.New("profiles service dependency required")
	errMissingEngagementService = errors.New("engagement service dependency required")
	errMissingFeedService       = errors.New("feed service dependency required")
	errInvalidAuthorization     = errors.New("authorization header missing or invalid")
)

type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, claims auth.GoogleClaims) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// ImageGenerator produces an illustration URL for a text prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AssetUploader re-hosts a transient image URL on durable storage.
type AssetUploader interface {
	UploadFromURL(ctx context.Context, imageURL string) (string, error)
}

type Dependencies struct {
	GoogleVerifier    GoogleVerifier
	TokenManager      BackendTokenManager
	DreamsService     *dreams.Service
	ProfilesService   *profiles.Service
	EngagementService *engagement.Service
	FeedService       *feed.Service
	ImageGenerator    ImageGenerator
	AssetUploader     AssetUploader
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GoogleVerifier == nil {
		return nil, errMissingGoogleVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.DreamsService == nil {
		return nil, errMissingDreamsService
	}
	if deps.ProfilesService == nil {
		return nil, errMissingProfilesService
	}
	if deps.EngagementService == nil {
		return nil, errMissingEngagementService
	}
	if deps.FeedService == nil {
		return nil, errMissingFeedService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		verifier:   deps.GoogleVerifier,
		tokens:     deps.TokenManager,
		dreams:     deps.DreamsService,
		profiles:   deps.ProfilesService,
		engagement: deps.EngagementService,
		feed:       deps.FeedService,
		images:     deps.ImageGenerator,
		uploads:    deps.AssetUploader,
		logger:     logger,
	}

	router.POST("/auth/google", handler.handleGoogleAuth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/dreams", handler.handleListDreams)
	protected.POST("/dreams", handler.handleCreateDream)
	protected.PUT("/dreams/:dreamId", handler.handleUpdateDream)
	protected.DELETE("/dreams/:dreamId", handler.handleDeleteDream)
	protected.POST("/dreams/:dreamId/visibility", handler.handleToggleVisibility)
	protected.POST("/dreams/:dreamId/like", handler.handleToggleLike)
	protected.GET("/dreams/:dreamId/likes", handler.handleLikeSummary)
	protected.POST("/dreams/:dreamId/comments", handler.handleAddComment)
	protected.GET("/dreams/:dreamId/comments", handler.handleListComments)
	protected.POST("/images/generate", handler.handleGenerateImage)
	protected.POST("/assets/upload", handler.handleUploadAsset)
	protected.GET("/gallery", handler.handleGallery)
	protected.GET("/profile", handler.handleGetOwnProfile)
	protected.PUT("/profile", handler.handleUpdateOwnProfile)
	protected.POST("/profile/recount", handler.handleRecountOwnProfile)
	protected.GET("/profiles/:userId", handler.handleGetProfile)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	verifier   GoogleVerifier
	tokens     BackendTokenManager
	dreams     *dreams.Service
	profiles   *profiles.Service
	engagement *engagement.Service
	feed       *feed.Service
	images     ImageGenerator
	uploads    AssetUploader
	logger     *zap.Logger
}

type authRequestPayload struct {
	IDToken string `json:"id_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Bootstrap the profile before issuing the session so the first
	// visibility toggle already has a display identity to snapshot.
	if _, err := h.profiles.Ensure(c.Request.Context(), claims.Subject, claims.Name, claims.Picture); err != nil {
		h.logger.Error("profile bootstrap failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_bootstrap_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	response := authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logTokenValidationFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// Expired sessions are routine client behavior, not an operational signal.
func (h *httpHandler) logTokenValidationFailure(err error) {
	if errors.Is(err, jwt.ErrTokenExpired) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

// errorCoder is satisfied by the per-service operation-code errors.
type errorCoder interface {
	error
	Code() string
}

// respondError maps service failures onto HTTP statuses. The body always
// carries a short error label and, when the failure originated in a service,
// its machine-readable operation code.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	label := "internal_error"
	switch {
	case errors.Is(err, dreams.ErrValidation),
		errors.Is(err, engagement.ErrValidation),
		errors.Is(err, feed.ErrInvalidSortKey),
		errors.Is(err, profiles.ErrInvalidUserID):
		status, label = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, dreams.ErrForbidden):
		status, label = http.StatusForbidden, "forbidden"
	case errors.Is(err, dreams.ErrNotFound),
		errors.Is(err, engagement.ErrNotFound),
		errors.Is(err, profiles.ErrNotFound):
		status, label = http.StatusNotFound, "not_found"
	case errors.Is(err, imagegen.ErrGeneration):
		status, label = http.StatusBadGateway, "generation_failed"
	case errors.Is(err, assets.ErrStorage):
		status, label = http.StatusBadGateway, "upload_failed"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}

	body := gin.H{"error": label}
	var coded errorCoder
	if errors.As(err, &coded) {
		body["code"] = coded.Code()
	}
	c.JSON(status, body)
}
