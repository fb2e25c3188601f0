package assets

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestUploadFromURLSignsAndReturnsSecureURL(t *testing.T) {
	fixedTime := time.Unix(1700000000, 0).UTC()
	var capturedForm map[string]string

	uploadServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		capturedForm = map[string]string{
			"file":      r.PostFormValue("file"),
			"folder":    r.PostFormValue("folder"),
			"timestamp": r.PostFormValue("timestamp"),
			"api_key":   r.PostFormValue("api_key"),
			"signature": r.PostFormValue("signature"),
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"secure_url": "https://cdn.example.com/durable.png",
		})
	}))
	defer uploadServer.Close()

	client := NewClient(ClientConfig{
		APIKey:     "key-1",
		APISecret:  "secret-1",
		Folder:     "dreamscape",
		UploadURL:  uploadServer.URL,
		HTTPClient: uploadServer.Client(),
		Clock:      func() time.Time { return fixedTime },
	})

	secureURL, err := client.UploadFromURL(context.Background(), "https://transient.example.com/raw.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secureURL != "https://cdn.example.com/durable.png" {
		t.Fatalf("unexpected url %q", secureURL)
	}

	if capturedForm["file"] != "https://transient.example.com/raw.png" {
		t.Fatalf("unexpected file parameter %q", capturedForm["file"])
	}
	wantTimestamp := fmt.Sprintf("%d", fixedTime.Unix())
	if capturedForm["timestamp"] != wantTimestamp {
		t.Fatalf("unexpected timestamp %q", capturedForm["timestamp"])
	}
	signed := fmt.Sprintf("folder=dreamscape&timestamp=%s%s", wantTimestamp, "secret-1")
	digest := sha1.Sum([]byte(signed))
	if capturedForm["signature"] != hex.EncodeToString(digest[:]) {
		t.Fatalf("unexpected signature %q", capturedForm["signature"])
	}
}

func TestUploadFromURLWrapsProviderRejection(t *testing.T) {
	uploadServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "invalid signature"},
		})
	}))
	defer uploadServer.Close()

	client := NewClient(ClientConfig{
		APIKey:     "key-1",
		APISecret:  "secret-1",
		UploadURL:  uploadServer.URL,
		HTTPClient: uploadServer.Client(),
	})

	if _, err := client.UploadFromURL(context.Background(), "https://x/y.png"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestUploadFromURLRequiresCredentialsAndSource(t *testing.T) {
	client := NewClient(ClientConfig{})
	if _, err := client.UploadFromURL(context.Background(), "https://x/y.png"); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected error without credentials, got %v", err)
	}

	client = NewClient(ClientConfig{APIKey: "k", APISecret: "s", UploadURL: "https://upload.example.com"})
	if _, err := client.UploadFromURL(context.Background(), "   "); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected error for blank source, got %v", err)
	}
}
