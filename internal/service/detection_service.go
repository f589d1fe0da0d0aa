package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"animaldetect/internal/ids"
	"animaldetect/internal/models"
	"animaldetect/internal/queue"
)

type Classifier interface {
	Classify(ctx context.Context, image models.ImageUpload) (models.Detection, error)
}

type ImageStore interface {
	Store(ctx context.Context, bucket, filename string, data []byte, contentType string) (string, error)
}

type RecordStore interface {
	Insert(ctx context.Context, record models.StoredRecord) error
}

type Dispatcher interface {
	Enqueue(task queue.Task) bool
}

type Buckets struct {
	Labeled  string
	Captured string
}

type SaveDetectionInput struct {
	Image      *models.ImageUpload
	Animal     string
	Confidence string
	UserID     string
}

type SaveHistoryInput struct {
	ImageURL   string
	Animal     string
	Confidence *float64
	UserID     string
}

type DetectionService struct {
	classifier Classifier
	images     ImageStore
	records    RecordStore
	dispatcher Dispatcher
	buckets    Buckets
	log        zerolog.Logger
	now        func() time.Time
}

func NewDetectionService(classifier Classifier, images ImageStore, records RecordStore, dispatcher Dispatcher, buckets Buckets, log zerolog.Logger) *DetectionService {
	return &DetectionService{
		classifier: classifier,
		images:     images,
		records:    records,
		dispatcher: dispatcher,
		buckets:    buckets,
		log:        log,
		now:        time.Now,
	}
}

// Predict classifies the image and has no side effects.
func (s *DetectionService) Predict(ctx context.Context, image models.ImageUpload) (models.Detection, error) {
	if len(image.Data) == 0 {
		return models.Detection{}, missing("image")
	}

	detection, err := s.classifier.Classify(ctx, image)
	if err != nil {
		return models.Detection{}, fmt.Errorf("%w: %w", ErrModel, err)
	}
	return detection, nil
}

// PredictAndStore returns the classification as soon as it is known and
// hands the upload and insert to the background dispatcher. The caller never
// learns whether that write succeeded.
func (s *DetectionService) PredictAndStore(ctx context.Context, image models.ImageUpload, userID string) (models.Detection, error) {
	detection, err := s.Predict(ctx, image)
	if err != nil {
		return models.Detection{}, err
	}

	task := queue.Task{
		ID:         ids.New(),
		Bucket:     s.buckets.Labeled,
		Image:      image,
		Detection:  detection,
		UserID:     optional(userID),
		EnqueuedAt: s.now(),
	}
	if !s.dispatcher.Enqueue(task) {
		s.log.Warn().Str("task_id", task.ID).Msg("background persistence rejected")
	}

	return detection, nil
}

// SaveDetection uploads a confirmed capture and records it synchronously.
func (s *DetectionService) SaveDetection(ctx context.Context, input SaveDetectionInput) (models.StoredRecord, error) {
	if input.Image == nil || len(input.Image.Data) == 0 {
		return models.StoredRecord{}, missing("image")
	}
	animal := strings.TrimSpace(input.Animal)
	if animal == "" {
		return models.StoredRecord{}, missing("animal")
	}
	rawConfidence := strings.TrimSpace(input.Confidence)
	if rawConfidence == "" {
		return models.StoredRecord{}, missing("confidence")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return models.StoredRecord{}, missing("user_id")
	}
	confidence, err := strconv.ParseFloat(rawConfidence, 64)
	if err != nil || math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return models.StoredRecord{}, &InputError{Field: "confidence", Reason: "must be a number"}
	}

	url, err := s.images.Store(ctx, s.buckets.Captured, input.Image.Filename, input.Image.Data, input.Image.ContentType)
	if err != nil {
		return models.StoredRecord{}, fmt.Errorf("%w: upload capture: %w", ErrStorage, err)
	}

	return s.insert(ctx, models.StoredRecord{
		ImageURL:        url,
		AnimalDetected:  animal,
		ConfidenceScore: confidence,
		UserID:          &userID,
		Source:          models.RecordSourceCapture,
	})
}

// SaveHistory records a detection for an image that is already hosted.
func (s *DetectionService) SaveHistory(ctx context.Context, input SaveHistoryInput) (models.StoredRecord, error) {
	imageURL := strings.TrimSpace(input.ImageURL)
	if imageURL == "" {
		return models.StoredRecord{}, missing("image_url")
	}
	animal := strings.TrimSpace(input.Animal)
	if animal == "" {
		return models.StoredRecord{}, missing("animal")
	}
	if input.Confidence == nil {
		return models.StoredRecord{}, missing("confidence")
	}
	if math.IsNaN(*input.Confidence) || math.IsInf(*input.Confidence, 0) {
		return models.StoredRecord{}, &InputError{Field: "confidence", Reason: "must be a number"}
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return models.StoredRecord{}, missing("user_id")
	}

	return s.insert(ctx, models.StoredRecord{
		ImageURL:        imageURL,
		AnimalDetected:  animal,
		ConfidenceScore: *input.Confidence,
		UserID:          &userID,
		Source:          models.RecordSourceHistory,
	})
}

func (s *DetectionService) insert(ctx context.Context, record models.StoredRecord) (models.StoredRecord, error) {
	record.ID = ids.New()
	record.CreatedAt = s.now().UTC()

	if err := s.records.Insert(ctx, record); err != nil {
		return models.StoredRecord{}, fmt.Errorf("%w: insert record: %w", ErrStorage, err)
	}

	s.log.Info().
		Str("record_id", record.ID).
		Str("source", string(record.Source)).
		Str("animal", record.AnimalDetected).
		Msg("detection saved")
	return record, nil
}

// PersistHandler is the background job behind PredictAndStore: upload the
// image, then insert the record that points at it.
func PersistHandler(images ImageStore, records RecordStore) queue.HandlerFunc {
	return func(ctx context.Context, task queue.Task) error {
		url, err := images.Store(ctx, task.Bucket, task.Image.Filename, task.Image.Data, task.Image.ContentType)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}

		record := models.StoredRecord{
			ID:              task.ID,
			ImageURL:        url,
			AnimalDetected:  task.Detection.Label,
			ConfidenceScore: task.Detection.Confidence,
			UserID:          task.UserID,
			Source:          models.RecordSourceAuto,
			CreatedAt:       time.Now().UTC(),
		}
		if err := records.Insert(ctx, record); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return nil
	}
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
