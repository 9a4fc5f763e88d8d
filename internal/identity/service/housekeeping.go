package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/marketa/identity/internal/identity/store"
)

// DefaultHousekeepingInterval is how often expired refresh records are swept.
const DefaultHousekeepingInterval = time.Hour

// HousekeepingService periodically clears expired refresh records so dead
// sessions don't accumulate.
type HousekeepingService struct {
	store    store.Store
	logger   *slog.Logger
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	return &HousekeepingService{store: st, logger: logger, interval: interval}
}

// Start launches the background sweep loop. One pass runs immediately.
func (s *HousekeepingService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.Run(ctx)
	}()
}

// Stop halts the sweep loop and waits for an in-flight pass to finish.
func (s *HousekeepingService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *HousekeepingService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *HousekeepingService) sweep(ctx context.Context) {
	cleared, err := s.store.Identities().ClearExpiredRefreshRecords(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "refresh record sweep failed", slog.Any("error", err))
		return
	}
	if cleared > 0 {
		s.logger.InfoContext(ctx, "cleared expired refresh records", slog.Int64("count", cleared))
	}
}
