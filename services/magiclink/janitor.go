package magiclink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tech-arch1tect/payslip-auth/services/logging"
	"go.uber.org/zap"
)

type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type Cleaners []Cleaner

func (cs Cleaners) CleanupExpired(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)
	for _, cleaner := range cs {
		removed, err := cleaner.CleanupExpired(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += removed
	}
	return total, errors.Join(errs...)
}

type Janitor struct {
	cleaner  Cleaner
	interval time.Duration
	logger   *logging.Service

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewJanitor(cleaner Cleaner, interval time.Duration, logger *logging.Service) *Janitor {
	return &Janitor{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger,
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.done != nil {
		return nil
	}

	j.runOnce(ctx)

	if j.interval <= 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.loop(runCtx, j.done)

	if j.logger != nil {
		j.logger.Info("started cleanup worker", zap.Duration("interval", j.interval))
	}
	return nil
}

func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Janitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Janitor) runOnce(ctx context.Context) {
	if _, err := j.cleaner.CleanupExpired(ctx); err != nil && j.logger != nil {
		j.logger.Error("cleanup worker failed", zap.Error(err))
	}
}
