package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"animaldetect/internal/config"
	"animaldetect/internal/models"
)

var (
	ErrQueueFull = errors.New("persist queue full")
	ErrStopped   = errors.New("persister stopped")
)

// Task carries everything a background write needs; it owns its image bytes.
type Task struct {
	ID         string
	Bucket     string
	Image      models.ImageUpload
	Detection  models.Detection
	UserID     *string
	EnqueuedAt time.Time
}

type HandlerFunc func(ctx context.Context, task Task) error

// DeadLetterSink receives tasks that were dropped or failed.
type DeadLetterSink interface {
	Record(ctx context.Context, task Task, reason error) error
}

// Persister runs background writes on a fixed number of workers. Enqueue
// never blocks; whatever cannot be queued or fails goes to the dead letters.
type Persister struct {
	tasks       chan Task
	workers     int
	timeout     time.Duration
	handle      HandlerFunc
	deadLetters DeadLetterSink
	log         zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	started bool
	wg      sync.WaitGroup
}

func NewPersister(cfg config.PersistConfig, handle HandlerFunc, deadLetters DeadLetterSink, log zerolog.Logger) *Persister {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	return &Persister{
		tasks:       make(chan Task, queueSize),
		workers:     workers,
		timeout:     cfg.Timeout,
		handle:      handle,
		deadLetters: deadLetters,
		log:         log,
	}
}

func (p *Persister) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.log.Info().Int("workers", p.workers).Int("queue_size", cap(p.tasks)).Msg("persister started")
}

// Enqueue reports whether the task was accepted for processing.
func (p *Persister) Enqueue(task Task) bool {
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		p.deadLetter(task, ErrStopped)
		return false
	}

	select {
	case p.tasks <- task:
		p.mu.RUnlock()
		p.log.Debug().Str("task_id", task.ID).Msg("persist task queued")
		return true
	default:
		p.mu.RUnlock()
		p.deadLetter(task, ErrQueueFull)
		return false
	}
}

// Stop refuses new tasks and waits for queued ones until ctx is done.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		for task := range p.tasks {
			p.deadLetter(task, ErrStopped)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("persister drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain persister: %w", ctx.Err())
	}
}

func (p *Persister) run(worker int) {
	defer p.wg.Done()

	for task := range p.tasks {
		if err := p.process(task); err != nil {
			p.log.Error().
				Err(err).
				Int("worker", worker).
				Str("task_id", task.ID).
				Str("animal", task.Detection.Label).
				Msg("background persistence failed")
			p.deadLetter(task, err)
			continue
		}
		p.log.Info().
			Str("task_id", task.ID).
			Str("animal", task.Detection.Label).
			Dur("queued_for", time.Since(task.EnqueuedAt)).
			Msg("stored detection")
	}
}

func (p *Persister) process(task Task) (err error) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in persist task: %v", r)
		}
	}()

	return p.handle(ctx, task)
}

func (p *Persister) deadLetter(task Task, reason error) {
	if p.deadLetters == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.deadLetters.Record(ctx, task, reason); err != nil {
		p.log.Error().Err(err).Str("task_id", task.ID).Msg("dead letter write failed")
	}
}
