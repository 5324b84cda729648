package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/voyagecover/claims-intake/internal/ocr"
	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// OCRPoller drives the OCR worker on an interval. When a full batch comes
// back it immediately runs another pass to drain the backlog.
type OCRPoller struct {
	worker   *ocr.Worker
	interval time.Duration
	running  atomic.Bool
}

// NewOCRPoller creates the OCR polling loop.
func NewOCRPoller(worker *ocr.Worker, interval time.Duration) *OCRPoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &OCRPoller{worker: worker, interval: interval}
}

// Start runs the loop until ctx is cancelled.
func (p *OCRPoller) Start(ctx context.Context) {
	logger.Info("OCR poller started", "interval", p.interval.String())

	p.runOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("OCR poller stopped")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *OCRPoller) runOnce(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	defer p.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("OCR pass panicked", "panic", r)
		}
	}()

	for {
		n, err := p.worker.ProcessBatch(ctx)
		if err != nil {
			logger.Error("OCR pass failed", "error", err.Error())
			return
		}
		if n == 0 || ctx.Err() != nil {
			return
		}
	}
}
