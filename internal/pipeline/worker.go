package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/config"
	"github.com/clubgallery/photoflow/internal/observability"
	"github.com/clubgallery/photoflow/internal/queue"
	"github.com/clubgallery/photoflow/internal/store"
)

// Worker drains the processing queue. Several goroutines claim photos
// concurrently; the database lease keeps two workers off the same photo.
type Worker struct {
	logger    *zap.Logger
	queue     *queue.Queue
	processor *Processor
	photos    *store.PhotoRepository
	cfg       *config.WorkerConfig
	id        string
}

func NewWorker(logger *zap.Logger, q *queue.Queue, processor *Processor, photos *store.PhotoRepository, cfg *config.WorkerConfig) *Worker {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return &Worker{
		logger:    logger,
		queue:     q,
		processor: processor,
		photos:    photos,
		cfg:       cfg,
		id:        fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
	}
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker starting",
		zap.String("worker_id", w.id),
		zap.Int("concurrency", w.cfg.Concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, fmt.Sprintf("%s-%d", w.id, slot))
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.reportStats(ctx)
	}()

	wg.Wait()
	w.logger.Info("worker stopped", zap.String("worker_id", w.id))
}

func (w *Worker) loop(ctx context.Context, workerID string) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, err := w.queue.Claim(ctx, workerID)
		if errors.Is(err, queue.ErrEmpty) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}
		if err != nil {
			w.logger.Error("queue claim failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}

		if w.handle(ctx, workerID, item) {
			// Queue-wide stall, pause claiming instead of cycling
			// through photos that will all fail the same way.
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}

// handle processes one claimed photo and settles its queue entry. It
// reports whether the failure stalls the whole queue and claiming
// should pause.
func (w *Worker) handle(ctx context.Context, workerID string, item *queue.Item) bool {
	logger := w.logger.With(
		zap.String("photo_id", item.PhotoID),
		zap.String("worker_id", workerID),
		zap.Int("attempt", item.Attempts))

	// Keep the lease alive while the processor runs; face detection and
	// captioning can outlast a short lease on a loaded service.
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(heartbeatCtx, item.PhotoID, workerID)

	err := w.processor.Process(ctx, item.PhotoID)
	stopHeartbeat()

	if err == nil {
		if err := w.queue.Complete(ctx, item.PhotoID, workerID); err != nil {
			logger.Error("queue complete failed", zap.Error(err))
		}
		return false
	}

	if errors.Is(err, queue.ErrLeaseLost) {
		// Another worker owns the photo now, nothing to settle.
		logger.Warn("lease lost during processing")
		return false
	}

	if DeferProcessing(err) {
		// Not this photo's fault: hand it back with its attempt
		// refunded and wait for the snapshot to load.
		logger.Warn("reference snapshot unavailable, deferring", zap.Error(err))
		if qErr := w.queue.Defer(ctx, item.PhotoID, workerID, w.cfg.PollInterval); qErr != nil && !errors.Is(qErr, queue.ErrLeaseLost) {
			logger.Error("queue defer failed", zap.Error(qErr))
		}
		w.requeue(ctx, logger, item.PhotoID)
		return true
	}

	switch Classify(err) {
	case FailurePermanent:
		logger.Error("processing failed permanently", zap.Error(err))
		observability.PhotosProcessed.WithLabelValues("failed").Inc()
		if qErr := w.queue.Fail(ctx, item.PhotoID, workerID, err); qErr != nil {
			logger.Error("queue fail failed", zap.Error(qErr))
			return false
		}
		w.park(ctx, logger, item.PhotoID)
	default:
		retrying, qErr := w.queue.Release(ctx, item.PhotoID, workerID, err)
		if qErr != nil {
			logger.Error("queue release failed", zap.Error(qErr))
			return false
		}
		if retrying {
			logger.Warn("processing failed, will retry", zap.Error(err))
			w.requeue(ctx, logger, item.PhotoID)
			return false
		}
		logger.Error("processing failed, attempts exhausted", zap.Error(err))
		observability.PhotosProcessed.WithLabelValues("failed").Inc()
		w.park(ctx, logger, item.PhotoID)
	}
	return false
}

// park moves a failed photo to manual review.
func (w *Worker) park(ctx context.Context, logger *zap.Logger, photoID string) {
	photo, err := w.photos.GetByID(ctx, photoID)
	if err != nil {
		logger.Error("load photo for parking failed", zap.Error(err))
		return
	}
	if !Status(photo.Status).CanTransitionTo(StatusNeedsManualReview) {
		return
	}
	if err := w.photos.SetStatus(ctx, photoID, string(StatusNeedsManualReview)); err != nil {
		logger.Error("set manual review status failed", zap.Error(err))
	}
}

// requeue returns a photo's review status to queued ahead of the retry.
func (w *Worker) requeue(ctx context.Context, logger *zap.Logger, photoID string) {
	photo, err := w.photos.GetByID(ctx, photoID)
	if err != nil {
		logger.Error("load photo for requeue failed", zap.Error(err))
		return
	}
	if Status(photo.Status) != StatusProcessing {
		return
	}
	if err := w.photos.SetStatus(ctx, photoID, string(StatusQueued)); err != nil {
		logger.Error("set queued status failed", zap.Error(err))
	}
}

func (w *Worker) heartbeat(ctx context.Context, photoID, workerID string) {
	ticker := time.NewTicker(w.cfg.LeaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.ExtendLease(ctx, photoID, workerID); err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logger.Warn("lease extension failed",
						zap.String("photo_id", photoID), zap.Error(err))
				}
				return
			}
		}
	}
}

func (w *Worker) reportStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := w.queue.Stats(ctx)
			if err != nil {
				continue
			}
			observability.QueueDepth.WithLabelValues("queued").Set(float64(stats.Queued))
			observability.QueueDepth.WithLabelValues("leased").Set(float64(stats.Leased))
			observability.QueueDepth.WithLabelValues("done").Set(float64(stats.Done))
			observability.QueueDepth.WithLabelValues("failed").Set(float64(stats.Failed))
		}
	}
}
