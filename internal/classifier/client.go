package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"animaldetect/internal/config"
	"animaldetect/internal/models"
)

var (
	ErrUpstream          = errors.New("model endpoint failure")
	ErrMalformedResponse = errors.New("malformed model response")
)

const maxResponseBytes = 1 << 20

// Client posts images to the remote classification endpoint. It makes a
// single attempt per call.
type Client struct {
	endpoint  string
	fieldName string
	httpc     *http.Client
	log       zerolog.Logger
}

func New(cfg config.ModelConfig, log zerolog.Logger) *Client {
	fieldName := cfg.FieldName
	if fieldName == "" {
		fieldName = "image"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		endpoint:  cfg.URL,
		fieldName: fieldName,
		httpc:     &http.Client{Timeout: timeout},
		log:       log,
	}
}

type prediction struct {
	Label      *string         `json:"label"`
	Confidence json.RawMessage `json:"confidence"`
}

func (c *Client) Classify(ctx context.Context, image models.ImageUpload) (models.Detection, error) {
	body, contentType, err := encodeImage(c.fieldName, image)
	if err != nil {
		return models.Detection{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return models.Detection{}, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.Detection{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.Detection{}, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(started)).
		Str("filename", image.Filename).
		Msg("model call finished")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Detection{}, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, snippet(raw))
	}

	return decodePrediction(raw)
}

func encodeImage(fieldName string, image models.ImageUpload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(fieldName), escapeQuotes(image.Filename)))
	contentType := image.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image.Data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// decodePrediction turns {"label": ..., "confidence": 0..1} into a Detection
// with a percentage confidence.
func decodePrediction(raw []byte) (models.Detection, error) {
	var p prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.Detection{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	label := models.UnknownLabel
	if p.Label != nil && strings.TrimSpace(*p.Label) != "" {
		label = *p.Label
	}

	score, err := parseScore(p.Confidence)
	if err != nil {
		return models.Detection{}, fmt.Errorf("%w: confidence: %w", ErrMalformedResponse, err)
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return models.Detection{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, score)
	}

	return models.Detection{
		Label:      label,
		Confidence: score * 100,
	}, nil
}

// parseScore accepts a JSON number or a numeric string; absent or null is 0.
func parseScore(raw json.RawMessage) (float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, nil
	}

	var number float64
	if err := json.Unmarshal(trimmed, &number); err == nil {
		return number, nil
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return 0, fmt.Errorf("not a number: %s", snippet(trimmed))
	}
	return strconv.ParseFloat(strings.TrimSpace(text), 64)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func snippet(raw []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
