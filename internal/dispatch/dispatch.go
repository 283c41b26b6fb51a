// Package dispatch runs dream processing jobs on a bounded pool of background
// workers and owns the temporary audio file of every submitted job.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/dream-bridge/internal/logging"
	"github.com/jonathan/dream-bridge/internal/pipeline"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatcher closed")

// Defaults used when Options leaves a field zero.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// Processor runs one dream to a terminal state.
type Processor interface {
	Process(ctx context.Context, dreamID uuid.UUID, audioPath string) pipeline.Result
}

// Options configures a Dispatcher.
type Options struct {
	Workers   int
	QueueSize int
	Logger    *slog.Logger
	// OnDone, if set, is called after each job with the processing result.
	OnDone func(pipeline.Result)
}

type job struct {
	dreamID   uuid.UUID
	audioPath string
}

// Dispatcher queues jobs and runs them on Workers goroutines. Every job's
// audio file is removed once processing returns, whatever the outcome.
type Dispatcher struct {
	processor Processor
	workers   int
	logger    *slog.Logger
	onDone    func(pipeline.Result)

	jobs chan job

	mu      sync.RWMutex
	closed  bool
	started bool
	group   *errgroup.Group
}

// New creates a Dispatcher. Call Start to begin processing.
func New(processor Processor, opts Options) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		processor: processor,
		workers:   workers,
		logger:    logging.Component(logging.OrNop(opts.Logger), "dispatch"),
		onDone:    opts.OnDone,
		jobs:      make(chan job, size),
	}
}

// Start launches the workers. Jobs run detached from ctx cancellation: once
// accepted, a dream is processed to the end and bounded only by the
// per-call adapter timeouts.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.started {
		return errors.New("dispatcher already started")
	}
	d.started = true

	runCtx := context.WithoutCancel(ctx)
	d.group = &errgroup.Group{}
	for i := 0; i < d.workers; i++ {
		worker := i
		d.group.Go(func() error {
			d.work(runCtx, worker)
			return nil
		})
	}
	d.logger.Info("dispatcher started", slog.Int("workers", d.workers), slog.Int("queue_size", cap(d.jobs)))
	return nil
}

// Submit enqueues a dream. It waits only while the queue is full. If the
// dispatcher is closed or ctx ends first, the audio file is released and
// the error is returned.
func (d *Dispatcher) Submit(ctx context.Context, dreamID uuid.UUID, audioPath string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.release(dreamID, audioPath)
		return ErrClosed
	}
	select {
	case d.jobs <- job{dreamID: dreamID, audioPath: audioPath}:
		d.logger.Debug("dream queued", logging.DreamID(dreamID))
		return nil
	case <-ctx.Done():
		d.release(dreamID, audioPath)
		return fmt.Errorf("failed to queue dream %s: %w", dreamID, ctx.Err())
	}
}

// Close stops intake and waits for queued and in-flight jobs to finish.
// Jobs queued on a dispatcher that was never started are released unprocessed.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	group := d.group
	d.mu.Unlock()

	if group == nil {
		for j := range d.jobs {
			d.release(j.dreamID, j.audioPath)
		}
		return nil
	}
	err := group.Wait()
	d.logger.Info("dispatcher stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for j := range d.jobs {
		d.run(ctx, worker, j)
	}
}

func (d *Dispatcher) run(ctx context.Context, worker int, j job) {
	logger := d.logger.With(logging.DreamID(j.dreamID), slog.Int("worker", worker))
	defer d.release(j.dreamID, j.audioPath)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", slog.Any("panic", r))
		}
	}()

	res := d.processor.Process(ctx, j.dreamID, j.audioPath)
	logger.Info("job finished", slog.String("status", string(res.Status)))
	if d.onDone != nil {
		d.onDone(res)
	}
}

func (d *Dispatcher) release(dreamID uuid.UUID, audioPath string) {
	if audioPath == "" {
		return
	}
	if err := os.Remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove audio file", logging.DreamID(dreamID), logging.String("path", audioPath), logging.Error(err))
	}
}
