package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-reel-backend/internal/queue"
)

// Pool manages a fixed set of workers sharing one queue.
type Pool struct {
	workers      []*Worker
	queue        queue.TaskQueue
	runner       Runner
	cfg          Config
	log          zerolog.Logger
	wg           sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
	shutdownWait time.Duration
}

// Config contains worker pool configuration.
type Config struct {
	WorkerCount  int
	PollInterval time.Duration
	TaskTimeout  time.Duration
	// StaleAfter requeues processing jobs older than this on Start.
	// Zero disables the sweep.
	StaleAfter time.Duration
	// DrainTimeout is how long in-flight jobs may run after shutdown starts
	// before they are interrupted and requeued. Zero uses DefaultDrainTimeout.
	DrainTimeout time.Duration
}

// NewPool creates a worker pool.
func NewPool(q queue.TaskQueue, r Runner, cfg Config, log zerolog.Logger) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	return &Pool{
		queue:        q,
		runner:       r,
		cfg:          cfg,
		log:          log.With().Str("component", "worker-pool").Logger(),
		stopChan:     make(chan struct{}),
		shutdownWait: cfg.DrainTimeout + 10*time.Second,
	}
}

// Start requeues stale jobs, then launches the workers and the depth gauge.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info().Int("worker_count", p.cfg.WorkerCount).Msg("starting worker pool")

	if p.cfg.StaleAfter > 0 {
		if _, err := p.queue.RequeueStale(ctx, time.Now().UTC().Add(-p.cfg.StaleAfter)); err != nil {
			return err
		}
	}

	p.workers = make([]*Worker, p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		w := NewWorker(i+1, p.queue, p.runner, p.cfg.PollInterval, p.cfg.TaskTimeout, p.log)
		w.drainTimeout = p.cfg.DrainTimeout
		p.workers[i] = w

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Start(ctx)
		}(w)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportDepth(ctx)
	}()

	p.log.Info().Msg("worker pool started")
	return nil
}

// Stop signals every worker and waits for in-flight jobs. Jobs still running
// after DrainTimeout are interrupted and requeued.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.log.Info().Msg("stopping worker pool")
		close(p.stopChan)
		for _, w := range p.workers {
			w.Stop()
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.log.Info().Msg("all workers stopped gracefully")
		case <-time.After(p.shutdownWait):
			p.log.Warn().Msg("worker pool shutdown timed out")
		}
	})
}

// QueueDepth returns the number of queued jobs.
func (p *Pool) QueueDepth(ctx context.Context) (int64, error) {
	return p.queue.Depth(ctx)
}

func (p *Pool) reportDepth(ctx context.Context) {
	interval := p.cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if n, err := p.QueueDepth(ctx); err == nil {
				queueDepth.Set(float64(n))
			}
		}
	}
}
