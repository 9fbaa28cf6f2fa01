package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/caption"
	"github.com/clubgallery/photoflow/internal/config"
	"github.com/clubgallery/photoflow/internal/derivative"
	"github.com/clubgallery/photoflow/internal/eventmatch"
	"github.com/clubgallery/photoflow/internal/facematch"
	"github.com/clubgallery/photoflow/internal/observability"
	"github.com/clubgallery/photoflow/internal/pipeline"
	"github.com/clubgallery/photoflow/internal/queue"
	"github.com/clubgallery/photoflow/internal/reference"
	"github.com/clubgallery/photoflow/internal/store"
)

// app bundles everything the serve and worker commands share.
type app struct {
	logger      *zap.Logger
	cfg         *config.Config
	pool        *store.Pool
	photos      *store.PhotoRepository
	faces       *store.FaceRepository
	tags        *store.TagRepository
	refs        *store.ReferenceRepository
	queue       *queue.Queue
	snapshots   *reference.Store
	derivatives *derivative.Generator
	refresher   *pipeline.Refresher
	membership  *store.MembershipPool
}

// newApp connects to the database and wires the shared components.
func newApp() (*app, error) {
	logger, err := observability.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := store.Initialize(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	tiers := make([]derivative.Tier, 0, len(cfg.Derivatives.Tiers))
	for _, t := range cfg.Derivatives.Tiers {
		tiers = append(tiers, derivative.Tier{Name: t.Name, Width: t.Width, Quality: t.Quality})
	}

	a := &app{
		logger:      logger,
		cfg:         cfg,
		pool:        pool,
		photos:      store.NewPhotoRepository(pool),
		faces:       store.NewFaceRepository(pool),
		tags:        store.NewTagRepository(pool),
		refs:        store.NewReferenceRepository(pool),
		queue:       queue.New(pool, &cfg.Worker),
		snapshots:   reference.NewStore(),
		derivatives: derivative.NewGenerator(cfg.Storage.Root, tiers),
	}

	if cfg.Membership.DSN != "" {
		membership, err := store.NewMembershipPool(cfg.Membership.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to membership database: %w", err)
		}
		a.membership = membership
	}

	a.refresher = pipeline.NewRefresher(
		logger, a.snapshots, a.refs, a.membership,
		cfg.Membership.RefreshInterval, cfg.Matching.MaxExemplarsPerMember,
	)
	return a, nil
}

// newProcessor wires the full processing pipeline. Only the worker
// needs it; the API server works without a face service.
func (a *app) newProcessor(ctx context.Context) (*pipeline.Processor, error) {
	faceURL := a.cfg.FaceService.URL
	if faceURL == "" {
		faceURL = "http://localhost:8000"
	}
	detector := facematch.NewClient(faceURL, 60*time.Second, a.cfg.FaceService.Dim)

	matcher := facematch.NewMatcher(
		a.cfg.Matching.FaceHighThreshold,
		a.cfg.Matching.FaceLowThreshold,
		a.cfg.Matching.RegistrantMargin,
	)
	events := eventmatch.NewMatcher(
		a.cfg.Matching.EventWindowHours,
		a.cfg.Matching.DefaultEventRadiusMeters,
		a.cfg.Matching.DistanceEpsilonMeters,
	)

	captioner, err := caption.New(ctx, &a.cfg.Caption)
	if err != nil {
		return nil, fmt.Errorf("initializing caption provider: %w", err)
	}
	var pipelineCaptioner pipeline.Captioner
	if captioner != nil {
		a.logger.Info("caption generation enabled", zap.String("model", captioner.Name()))
		pipelineCaptioner = captioner
	}

	return pipeline.NewProcessor(
		a.logger,
		a.photos,
		a.faces,
		a.tags,
		a.snapshots,
		events,
		matcher,
		detector,
		a.derivatives,
		pipelineCaptioner,
		a.cfg.Matching.NearDuplicateHamming,
	), nil
}

func (a *app) close() {
	if a.membership != nil {
		a.membership.Close()
	}
	a.pool.Close()
	_ = a.logger.Sync()
}
