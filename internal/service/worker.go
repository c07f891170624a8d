package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/meemoee/market-movers-hub-sub000/internal/logger"
)

// WorkerPool claims queued research jobs from the database and executes
// them. The queue is the research_jobs table itself, so multiple
// processes can share it.
type WorkerPool struct {
	service      *ResearchService
	logger       *logger.Logger
	workers      int
	pollInterval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// WorkerConfig holds configuration for the worker pool.
type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
}

// NewWorkerPool creates a worker pool over the research service.
func NewWorkerPool(service *ResearchService, log *logger.Logger, cfg *WorkerConfig) *WorkerPool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &WorkerPool{
		service:      service,
		logger:       log,
		workers:      workers,
		pollInterval: interval,
	}
}

// Start launches the workers. They run until Stop is called or the
// parent context is canceled.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.loop(ctx, workerID)
		}(i)
	}

	p.logger.WithField(logger.FieldCount, p.workers).Info("Research workers started")
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Research workers stopped")
}

func (p *WorkerPool) loop(ctx context.Context, workerID int) {
	log := p.logger.WithField("worker_id", workerID)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		job, err := p.service.jobs.ClaimNextQueued(ctx)
		switch {
		case err == nil:
			// Execute marks the job terminal itself; the error is
			// already recorded on the job.
			if execErr := p.service.Execute(ctx, job); execErr != nil && ctx.Err() != nil {
				return
			}
			continue // drain the queue before sleeping
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Queue is empty, wait for the next poll.
		case ctx.Err() != nil:
			return
		default:
			log.WithError(err).Error("Failed to claim job")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
