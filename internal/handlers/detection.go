package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"animaldetect/internal/media/sniffer"
	"animaldetect/internal/models"
	"animaldetect/internal/service"
)

type predictResponse struct {
	Status     string  `json:"status"`
	Animal     string  `json:"animal"`
	Confidence float64 `json:"confidence"`
}

type saveDetectionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// saveHistoryRequest takes confidence and user_id raw: clients send both
// as JSON numbers or as strings.
type saveHistoryRequest struct {
	ImageURL   string          `json:"image_url"`
	Animal     string          `json:"animal"`
	Confidence json.RawMessage `json:"confidence"`
	UserID     json.RawMessage `json:"user_id"`
}

// Predict classifies the uploaded image and, when auto-persist is on, stores
// it in the background after responding.
func (h HandlerSet) Predict(c *gin.Context) {
	if !h.autoPersist {
		h.PredictOnly(c)
		return
	}

	image, err := readImage(c)
	if err != nil {
		h.respondError(c, err, "prediction")
		return
	}

	detection, err := h.detections.PredictAndStore(c.Request.Context(), *image, c.PostForm("user_id"))
	if err != nil {
		h.respondError(c, err, "prediction")
		return
	}

	c.JSON(http.StatusOK, newPredictResponse(detection))
}

func (h HandlerSet) PredictOnly(c *gin.Context) {
	image, err := readImage(c)
	if err != nil {
		h.respondError(c, err, "prediction")
		return
	}

	detection, err := h.detections.Predict(c.Request.Context(), *image)
	if err != nil {
		h.respondError(c, err, "prediction")
		return
	}

	c.JSON(http.StatusOK, newPredictResponse(detection))
}

func (h HandlerSet) SaveDetection(c *gin.Context) {
	image, err := readImage(c)
	if err != nil {
		h.respondError(c, err, "save")
		return
	}

	_, err = h.detections.SaveDetection(c.Request.Context(), service.SaveDetectionInput{
		Image:      image,
		Animal:     c.PostForm("animal"),
		Confidence: c.PostForm("confidence"),
		UserID:     c.PostForm("user_id"),
	})
	if err != nil {
		h.respondError(c, err, "save")
		return
	}

	c.JSON(http.StatusOK, saveDetectionResponse{
		Status:  "success",
		Message: "Detection saved",
	})
}

func (h HandlerSet) SaveHistory(c *gin.Context) {
	var req saveHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, err, "save")
			return
		}
		h.respondError(c, &service.InputError{Reason: "invalid JSON body"}, "save")
		return
	}

	confidence, err := decodeConfidence(req.Confidence)
	if err != nil {
		h.respondError(c, err, "save")
		return
	}
	userID, err := decodeUserID(req.UserID)
	if err != nil {
		h.respondError(c, err, "save")
		return
	}

	_, err = h.detections.SaveHistory(c.Request.Context(), service.SaveHistoryInput{
		ImageURL:   req.ImageURL,
		Animal:     req.Animal,
		Confidence: confidence,
		UserID:     userID,
	})
	if err != nil {
		h.respondError(c, err, "save")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// decodeConfidence accepts 0.91 or "0.91". Absent or null yields nil so the
// service reports the field as missing.
func decodeConfidence(raw json.RawMessage) (*float64, error) {
	if isAbsent(raw) {
		return nil, nil
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err == nil {
		return &value, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, &service.InputError{Field: "confidence", Reason: "must be a number"}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, &service.InputError{Field: "confidence", Reason: "must be a number"}
	}
	return &value, nil
}

// decodeUserID accepts "u1" or a numeric id such as 42, kept digit for digit.
func decodeUserID(raw json.RawMessage) (string, error) {
	if isAbsent(raw) {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return "", &service.InputError{Field: "user_id", Reason: "must be a string or number"}
	}
	return number.String(), nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func newPredictResponse(detection models.Detection) predictResponse {
	return predictResponse{
		Status:     "success",
		Animal:     detection.Label,
		Confidence: detection.Confidence,
	}
}

// readImage loads the "image" part fully into memory; the bytes may outlive
// the request in a background task.
func readImage(c *gin.Context) (*models.ImageUpload, error) {
	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, &service.InputError{Field: "image", Reason: "is required"}
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	return &models.ImageUpload{
		Filename:    header.Filename,
		ContentType: sniffer.ResolveMIME(header.Header, data),
		Data:        data,
	}, nil
}

// respondError maps the service error taxonomy onto status codes. Only input
// errors expose their text; everything else gets a fixed message.
func (h HandlerSet) respondError(c *gin.Context, err error, action string) {
	var (
		inputErr *service.InputError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
	case errors.As(err, &inputErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": inputErr.Error()})
	default:
		_ = c.Error(err)
		h.requestLog(c).Error().Err(err).Str("action", action).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": action + " failed"})
	}
}

func (h HandlerSet) requestLog(c *gin.Context) *zerolog.Logger {
	if l := zerolog.Ctx(c.Request.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.log
}
