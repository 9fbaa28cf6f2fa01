package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/observability"
	"github.com/clubgallery/photoflow/internal/reference"
	"github.com/clubgallery/photoflow/internal/store"
)

// Refresher rebuilds the in-memory reference snapshot on a fixed
// interval. When a membership replica is configured it first pulls
// members, events and registrations from it; matching always runs
// against the last good snapshot, a failed refresh never degrades it.
type Refresher struct {
	logger       *zap.Logger
	snapshots    *reference.Store
	refs         *store.ReferenceRepository
	membership   *store.MembershipPool // nil: local reference tables only
	interval     time.Duration
	maxExemplars int
}

func NewRefresher(logger *zap.Logger, snapshots *reference.Store, refs *store.ReferenceRepository, membership *store.MembershipPool, interval time.Duration, maxExemplars int) *Refresher {
	return &Refresher{
		logger:       logger,
		snapshots:    snapshots,
		refs:         refs,
		membership:   membership,
		interval:     interval,
		maxExemplars: maxExemplars,
	}
}

// Refresh builds and swaps in one snapshot.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := time.Now()

	if r.membership != nil {
		if err := r.refs.SyncFromMembership(ctx, r.membership, nil); err != nil {
			return err
		}
	}

	members, events, regs, encodings, err := r.refs.LoadAll(ctx)
	if err != nil {
		return err
	}

	snap := reference.Build(r.snapshots.NextGeneration(), members, events, regs, encodings, r.maxExemplars)
	r.snapshots.Swap(snap)

	observability.SnapshotGeneration.Set(float64(snap.Generation))
	observability.SnapshotEncodings.Set(float64(snap.EncodingCount()))
	r.logger.Info("reference snapshot swapped",
		zap.Int64("generation", snap.Generation),
		zap.Int("members", snap.MemberCount()),
		zap.Int("events", len(snap.Events())),
		zap.Int("encodings", snap.EncodingCount()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Run refreshes immediately and then on every tick until the context is
// cancelled.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Error("initial snapshot refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Error("snapshot refresh failed", zap.Error(err))
			}
		}
	}
}
