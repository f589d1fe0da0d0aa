package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"animaldetect/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newModel(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"label":"fox","confidence":0.87}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func unconfiguredBackends(modelURL string) *config.AppConfig {
	cfg := &config.AppConfig{Environment: "test"}
	cfg.HTTP.MaxUploadBytes = 1 << 20
	cfg.Model.URL = modelURL
	cfg.Model.Timeout = 5 * time.Second
	cfg.Persist.Workers = 1
	cfg.Persist.QueueSize = 4
	cfg.Persist.Timeout = time.Second
	cfg.Storage.BucketLabeled = "labeled-images"
	cfg.Storage.BucketCaptured = "captured-images"
	cfg.Detection.AutoPersist = true
	return cfg
}

func predictRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "fox.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	_, _ = part.Write([]byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F'})
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestNewApp_StartsWithoutDatabaseOrStorage(t *testing.T) {
	model := newModel(t)
	cfg := unconfiguredBackends(model.URL)

	missing := cfg.Missing()
	for _, key := range []string{"postgres.dsn", "storage.endpoint"} {
		if !slices.Contains(missing, key) {
			t.Errorf("Expected %s in Missing(), got %v", key, missing)
		}
	}

	a := newApp(context.Background(), cfg, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.close(ctx)
	})
	handler := a.server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected /health 200, got %d", rec.Code)
	}

	for _, path := range []string{"/predict-only", "/predict"} {
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, predictRequest(t, path))
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected %s 200, got %d: %s", path, rec.Code, rec.Body.String())
		}
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body["animal"] != "fox" || body["confidence"] != 87.0 {
			t.Errorf("%s: unexpected body %v", path, body)
		}
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected /readyz 503 without a database, got %d", rec.Code)
	}

	payload := `{"image_url":"http://x/y.jpg","animal":"dog","confidence":0.91,"user_id":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/save-history", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected save-history to fail at first use, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"save failed"}` {
		t.Errorf("Unexpected error body %s", got)
	}
}

func TestNewApp_UnreachableRedisFallsBackToLog(t *testing.T) {
	cfg := unconfiguredBackends(newModel(t).URL)
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.DeadLetterMaxLen = 10

	a := newApp(context.Background(), cfg, zerolog.Nop())
	defer a.close(context.Background())

	if a.redis != nil {
		t.Error("Expected no redis client when the server is unreachable")
	}
}
