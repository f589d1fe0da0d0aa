package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"animaldetect/internal/service"
)

// Pinger is satisfied by *pgxpool.Pool and by the redis adapter in main.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerSet struct {
	log         zerolog.Logger
	detections  *service.DetectionService
	autoPersist bool
	database    Pinger
	cache       Pinger
}

func NewHandlerSet(log zerolog.Logger, detections *service.DetectionService, autoPersist bool, database, cache Pinger) HandlerSet {
	return HandlerSet{
		log:         log,
		detections:  detections,
		autoPersist: autoPersist,
		database:    database,
		cache:       cache,
	}
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/readyz", h.Ready)

	router.POST("/predict", h.Predict)
	router.POST("/predict-only", h.PredictOnly)
	router.POST("/save-detection", h.SaveDetection)
	router.POST("/save-history", h.SaveHistory)
}
