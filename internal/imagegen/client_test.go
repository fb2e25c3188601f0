package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateReturnsImageURL(t *testing.T) {
	var captured generationRequest
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{map[string]string{"url": "https://images.example.com/out.png"}},
		})
	}))
	defer apiServer.Close()

	client := NewClient(ClientConfig{
		APIKey:     "test-key",
		APIURL:     apiServer.URL,
		HTTPClient: apiServer.Client(),
	})

	imageURL, err := client.Generate(context.Background(), "  a staircase of clouds  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if imageURL != "https://images.example.com/out.png" {
		t.Fatalf("unexpected url %q", imageURL)
	}
	if captured.Prompt != "a staircase of clouds" {
		t.Fatalf("expected trimmed prompt, got %q", captured.Prompt)
	}
	if captured.N != 1 || captured.Model != defaultModel || captured.Size != defaultSize {
		t.Fatalf("unexpected request defaults: %+v", captured)
	}
}

func TestGenerateWrapsProviderRejection(t *testing.T) {
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer apiServer.Close()

	client := NewClient(ClientConfig{
		APIKey:     "test-key",
		APIURL:     apiServer.URL,
		HTTPClient: apiServer.Client(),
	})

	if _, err := client.Generate(context.Background(), "anything"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestGenerateRequiresConfigurationAndPrompt(t *testing.T) {
	client := NewClient(ClientConfig{})
	if _, err := client.Generate(context.Background(), "prompt"); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected error without api key, got %v", err)
	}

	client = NewClient(ClientConfig{APIKey: "test-key"})
	if _, err := client.Generate(context.Background(), "   "); !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected error for blank prompt, got %v", err)
	}
}
