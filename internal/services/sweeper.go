package services

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sweeper periodically runs the expiration sweep. Expiration itself stays a
// pure function of stored timestamps versus the clock; the sweeper only
// decides when to look. A tick is skipped when the previous sweep is still
// in flight, so sweeps never overlap.
type Sweeper struct {
	queue    QueueServiceInterface
	interval time.Duration
	logger   *slog.Logger
	running  atomic.Bool
	wg       sync.WaitGroup
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper creates an expiration sweeper with the given tick interval.
func NewSweeper(queue QueueServiceInterface, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		queue:    queue,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Expiration sweeper started", "interval", s.interval)
	for {
		select {
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.sweep(ctx)
			}()
		case <-s.stop:
			s.logger.Info("Expiration sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Expiration sweeper stopped", "reason", ctx.Err())
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Skipping sweep, previous run still in flight")
		return
	}
	defer s.running.Store(false)

	count, err := s.queue.ProcessExpiredReservations(ctx)
	if err != nil {
		s.logger.Error("Expiration sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Expiration sweep expired reservations", "count", count)
	}
}
