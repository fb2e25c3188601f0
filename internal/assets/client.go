// Package assets re-hosts transient image URLs on durable storage. Generated
// image links expire quickly, so a dream keeps only the durable URL returned
// here.
package assets

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultUploadURLFormat = "https://api.cloudinary.com/v1_1/%s/image/upload"
	defaultFolder          = "dreamscape"
)

var (
	// ErrStorage wraps every failure of the asset-storage collaborator.
	ErrStorage = errors.New("assets: upload failed")

	errMissingCredentials = errors.New("storage credentials not configured")
	errMissingImageURL    = errors.New("image url must not be empty")
)

// ClientConfig configures the asset-storage client.
type ClientConfig struct {
	CloudName  string
	APIKey     string
	APISecret  string
	Folder     string
	UploadURL  string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      func() time.Time
}

// Client uploads images by URL and returns durable public URLs.
type Client struct {
	cloudName  string
	apiKey     string
	apiSecret  string
	folder     string
	uploadURL  string
	httpClient *http.Client
	logger     *zap.Logger
	clock      func() time.Time
}

// NewClient constructs the client. Missing credentials are tolerated here and
// reported at call time.
func NewClient(cfg ClientConfig) *Client {
	folder := strings.TrimSpace(cfg.Folder)
	if folder == "" {
		folder = defaultFolder
	}
	uploadURL := strings.TrimSpace(cfg.UploadURL)
	if uploadURL == "" && strings.TrimSpace(cfg.CloudName) != "" {
		uploadURL = fmt.Sprintf(defaultUploadURLFormat, strings.TrimSpace(cfg.CloudName))
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Client{
		cloudName:  strings.TrimSpace(cfg.CloudName),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  strings.TrimSpace(cfg.APISecret),
		folder:     folder,
		uploadURL:  uploadURL,
		httpClient: httpClient,
		logger:     logger,
		clock:      clock,
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// UploadFromURL re-hosts the image behind imageURL and returns its durable
// secure URL.
func (c *Client) UploadFromURL(ctx context.Context, imageURL string) (string, error) {
	if c.uploadURL == "" || c.apiKey == "" || c.apiSecret == "" {
		return "", fmt.Errorf("%w: %v", ErrStorage, errMissingCredentials)
	}
	source := strings.TrimSpace(imageURL)
	if source == "" {
		return "", fmt.Errorf("%w: %v", ErrStorage, errMissingImageURL)
	}

	timestamp := fmt.Sprintf("%d", c.clock().UTC().Unix())
	form := url.Values{}
	form.Set("file", source)
	form.Set("folder", c.folder)
	form.Set("timestamp", timestamp)
	form.Set("api_key", c.apiKey)
	form.Set("signature", c.signature(timestamp))

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer response.Body.Close()

	var decoded uploadResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if response.StatusCode != http.StatusOK {
		c.logger.Warn("asset upload rejected",
			zap.Int("status", response.StatusCode),
			zap.String("message", decoded.Error.Message))
		return "", fmt.Errorf("%w: status %d", ErrStorage, response.StatusCode)
	}
	if strings.TrimSpace(decoded.SecureURL) == "" {
		return "", fmt.Errorf("%w: response contained no secure url", ErrStorage)
	}
	return decoded.SecureURL, nil
}

// signature implements the upload API's request signing: the signed parameters
// in lexical order, concatenated with the secret, hashed with SHA-1.
func (c *Client) signature(timestamp string) string {
	signed := fmt.Sprintf("folder=%s&timestamp=%s%s", c.folder, timestamp, c.apiSecret)
	digest := sha1.Sum([]byte(signed))
	return hex.EncodeToString(digest[:])
}
