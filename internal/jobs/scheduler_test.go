package jobs

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestScheduler_DisabledWithoutRedis(t *testing.T) {
	s := NewScheduler(nil, "detections:deadletter", 100, "not a schedule", zerolog.Nop())

	if err := s.Start(); err != nil {
		t.Fatalf("Expected disabled scheduler to start cleanly, got %v", err)
	}
	if entries := s.cron.Entries(); len(entries) != 0 {
		t.Errorf("Expected no cron entries, got %d", len(entries))
	}
	s.Stop()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	s := NewScheduler(client, "detections:deadletter", 100, "every day", zerolog.Nop())
	if err := s.Start(); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
}

func TestScheduler_RegistersTrimJob(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	s := NewScheduler(client, "detections:deadletter", 100, "0 0 3 * * *", zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if entries := s.cron.Entries(); len(entries) != 1 {
		t.Errorf("Expected 1 cron entry, got %d", len(entries))
	}
}
