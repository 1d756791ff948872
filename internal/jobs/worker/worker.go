package worker

import (
	"context"
	"time"

	"github.com/himanstore/dmsales-backend/internal/platform/logger"
	"github.com/himanstore/dmsales-backend/internal/services"
	"github.com/himanstore/dmsales-backend/internal/utils"
)

// Worker runs the order detector on a fixed cadence. Each tick scans the
// window since the previous tick, padded by an overlap so a message that
// landed mid-scan is picked up again on the next pass (re-scans are
// idempotent thanks to the guarded upsert).
type Worker struct {
	log      *logger.Logger
	detector services.OrderDetector

	interval time.Duration
	overlap  time.Duration
}

func NewWorker(baseLog *logger.Logger, detector services.OrderDetector) *Worker {
	log := baseLog.With("component", "DetectorWorker")
	intervalSec := utils.GetEnvAsInt("DETECTOR_INTERVAL_SECONDS", 300, log)
	overlapSec := utils.GetEnvAsInt("DETECTOR_OVERLAP_SECONDS", 60, log)
	return &Worker{
		log:      log,
		detector: detector,
		interval: time.Duration(intervalSec) * time.Second,
		overlap:  time.Duration(overlapSec) * time.Second,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting detector worker", "interval", w.interval.String())
	go w.runLoop(ctx)
}

func (w *Worker) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	lastScan := time.Now().UTC().Add(-w.interval)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Detector worker stopped")
			return
		case <-ticker.C:
			now := time.Now().UTC()
			from := lastScan.Add(-w.overlap)

			scanned, err := w.detector.Detect(ctx, from, now)
			if err != nil {
				w.log.Warn("Detector pass failed", "error", err.Error())
				continue
			}
			if len(scanned) > 0 {
				w.log.Info("Detector pass done",
					"conversations", len(scanned),
					"from", from.Format(time.RFC3339),
					"to", now.Format(time.RFC3339),
				)
			}
			lastScan = now
		}
	}
}
