package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"concierge-server/internal/domain/dialog"
	"concierge-server/internal/infrastructure/channels"
	"concierge-server/internal/infrastructure/metrics"
	"concierge-server/internal/infrastructure/queue"
)

// Config tunes the pool.
type Config struct {
	Workers         int
	PollInterval    time.Duration
	TaskTimeout     time.Duration
	TaskMaxAttempts int
}

// Pool runs a fixed set of workers against the task queue.
type Pool struct {
	cfg       Config
	tasks     queue.TaskQueue
	dialog    *dialog.Service
	registry  *channels.Registry
	alerter   Alerter
	publisher dialog.Publisher
	log       zerolog.Logger
}

// NewPool wires a worker pool.
func NewPool(
	cfg Config,
	tasks queue.TaskQueue,
	dialogSvc *dialog.Service,
	registry *channels.Registry,
	alerter Alerter,
	publisher dialog.Publisher,
	log zerolog.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 90 * time.Second
	}
	if cfg.TaskMaxAttempts <= 0 {
		cfg.TaskMaxAttempts = 5
	}
	return &Pool{
		cfg:       cfg,
		tasks:     tasks,
		dialog:    dialogSvc,
		registry:  registry,
		alerter:   alerter,
		publisher: publisher,
		log:       log.With().Str("component", "worker-pool").Logger(),
	}
}

// Run blocks until ctx is cancelled and all workers have drained.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info().Int("workers", p.cfg.Workers).Msg("worker pool starting")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		w := newWorker(i, p)
		g.Go(func() error {
			w.run(ctx, p.cfg.PollInterval)
			return nil
		})
	}
	g.Go(func() error {
		p.reportDepth(ctx)
		return nil
	})

	err := g.Wait()
	p.log.Info().Msg("worker pool stopped")
	return err
}

// reportDepth keeps the queue depth gauge fresh.
func (p *Pool) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := p.tasks.Depth(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn().Err(err).Msg("queue depth probe failed")
				}
				continue
			}
			metrics.QueueDepth.Set(float64(depth))
		}
	}
}
