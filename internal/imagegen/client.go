// Package imagegen calls the hosted image-generation API that turns a dream
// description into an illustration. The returned URL is treated as an opaque
// reference; re-hosting it durably is the assets package's job.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultAPIURL = "https://api.openai.com/v1/images/generations"
	defaultModel  = "dall-e-2"
	defaultSize   = "1024x1024"
)

var (
	// ErrGeneration wraps every failure of the image-generation collaborator.
	ErrGeneration = errors.New("imagegen: generation failed")

	errMissingAPIKey = errors.New("api key not configured")
	errEmptyPrompt   = errors.New("prompt must not be empty")
)

// ClientConfig configures the image-generation client.
type ClientConfig struct {
	APIKey     string
	APIURL     string
	Model      string
	Size       string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client generates images from text prompts.
type Client struct {
	apiKey     string
	apiURL     string
	model      string
	size       string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs the client. A missing API key is tolerated here and
// reported at call time, so the server can boot without the collaborator
// configured.
func NewClient(cfg ClientConfig) *Client {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	size := strings.TrimSpace(cfg.Size)
	if size == "" {
		size = defaultSize
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiURL:     apiURL,
		model:      model,
		size:       size,
		httpClient: httpClient,
		logger:     logger,
	}
}

type generationRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type generationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate requests a single image for the prompt and returns its URL.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: %v", ErrGeneration, errMissingAPIKey)
	}
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %v", ErrGeneration, errEmptyPrompt)
	}

	payload, err := json.Marshal(generationRequest{
		Model:  c.model,
		Prompt: trimmed,
		N:      1,
		Size:   c.size,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		c.logger.Warn("image generation request rejected",
			zap.Int("status", response.StatusCode))
		return "", fmt.Errorf("%w: status %d", ErrGeneration, response.StatusCode)
	}

	var decoded generationResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(decoded.Data) == 0 || strings.TrimSpace(decoded.Data[0].URL) == "" {
		return "", fmt.Errorf("%w: response contained no image url", ErrGeneration)
	}
	return decoded.Data[0].URL, nil
}
