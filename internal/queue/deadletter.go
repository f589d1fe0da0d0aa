package queue

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDeadLetters appends failed tasks to a Redis stream for operators.
// Image bytes are not copied into the stream.
type RedisDeadLetters struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisDeadLetters(client *redis.Client, stream string, maxLen int64) *RedisDeadLetters {
	return &RedisDeadLetters{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

func (d *RedisDeadLetters) Record(ctx context.Context, task Task, reason error) error {
	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: deadLetterValues(task, reason),
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}
	return d.client.XAdd(ctx, args).Err()
}

// LogDeadLetters is the sink used when Redis is not configured.
type LogDeadLetters struct {
	log zerolog.Logger
}

func NewLogDeadLetters(log zerolog.Logger) *LogDeadLetters {
	return &LogDeadLetters{log: log}
}

func (d *LogDeadLetters) Record(_ context.Context, task Task, reason error) error {
	event := d.log.Error()
	for key, value := range deadLetterValues(task, reason) {
		event = event.Str(key, value)
	}
	event.Msg("dead letter")
	return nil
}

func deadLetterValues(task Task, reason error) map[string]string {
	values := map[string]string{
		"task_id":      task.ID,
		"bucket":       task.Bucket,
		"filename":     task.Image.Filename,
		"content_type": task.Image.ContentType,
		"size_bytes":   strconv.Itoa(len(task.Image.Data)),
		"animal":       task.Detection.Label,
		"confidence":   strconv.FormatFloat(task.Detection.Confidence, 'f', -1, 64),
		"user_id":      "",
		"enqueued_at":  task.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		"error":        "",
	}
	if task.UserID != nil {
		values["user_id"] = *task.UserID
	}
	if reason != nil {
		values["error"] = reason.Error()
	}
	return values
}
