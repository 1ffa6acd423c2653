package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backfiller retries currency conversions that are missing or failed
type Backfiller interface {
	// Backfill processes up to limit expenses and returns how many converted
	Backfill(ctx context.Context, limit int) (int, error)
}

// ConversionBackfillConfig holds backfill worker settings
type ConversionBackfillConfig struct {
	Interval  time.Duration
	BatchSize int
	// RunTimeout bounds a single pass
	RunTimeout time.Duration
}

// ConversionBackfillWorker periodically retries conversions the submit-time handler
// could not complete
type ConversionBackfillWorker struct {
	backfiller Backfiller
	cfg        ConversionBackfillConfig
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewConversionBackfillWorker creates a new backfill worker
func NewConversionBackfillWorker(b Backfiller, cfg ConversionBackfillConfig, logger *zap.Logger) *ConversionBackfillWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	return &ConversionBackfillWorker{backfiller: b, cfg: cfg, logger: logger}
}

// Name returns the worker name for identification
func (w *ConversionBackfillWorker) Name() string {
	return "ConversionBackfill"
}

// Start launches the polling loop
func (w *ConversionBackfillWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("conversion backfill is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	w.logger.Info("ConversionBackfill started",
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("batch_size", w.cfg.BatchSize))

	go w.loop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current pass to finish
func (w *ConversionBackfillWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		w.logger.Info("ConversionBackfill stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *ConversionBackfillWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ConversionBackfillWorker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	defer cancel()

	n, err := w.backfiller.Backfill(runCtx, w.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Conversion backfill failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		w.logger.Info("Conversion backfill completed", zap.Int("converted", n))
	}
}
