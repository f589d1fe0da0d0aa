package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler keeps the dead-letter stream bounded between writes.
type Scheduler struct {
	cron     *cron.Cron
	client   *redis.Client
	stream   string
	maxLen   int64
	schedule string
	log      zerolog.Logger
}

func NewScheduler(client *redis.Client, stream string, maxLen int64, schedule string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		client:   client,
		stream:   stream,
		maxLen:   maxLen,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.client == nil || s.maxLen <= 0 {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.trimDeadLetters); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits up to five seconds for a running job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) trimDeadLetters() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.client.XTrimMaxLen(ctx, s.stream, s.maxLen).Result()
	if err != nil {
		s.log.Error().Err(err).Str("stream", s.stream).Msg("dead letter trim failed")
		return
	}

	pending, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("stream", s.stream).Msg("dead letter length failed")
	}
	s.log.Info().
		Str("stream", s.stream).
		Int64("removed", removed).
		Int64("remaining", pending).
		Msg("dead letters trimmed")
}
