package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/clubgallery/photoflow/internal/dedup"
	"github.com/clubgallery/photoflow/internal/derivative"
	"github.com/clubgallery/photoflow/internal/eventmatch"
	"github.com/clubgallery/photoflow/internal/facematch"
	"github.com/clubgallery/photoflow/internal/metadata"
	"github.com/clubgallery/photoflow/internal/observability"
	"github.com/clubgallery/photoflow/internal/reference"
	"github.com/clubgallery/photoflow/internal/store"
	"github.com/clubgallery/photoflow/internal/tags"
)

// FaceDetector is the face service dependency of the processor.
type FaceDetector interface {
	Detect(ctx context.Context, imageData []byte) ([]facematch.Detection, error)
}

// Captioner generates a short gallery caption for a photo. Optional;
// caption failures never block processing.
type Captioner interface {
	Caption(ctx context.Context, imageData []byte) (string, error)
}

// Processor runs the full pipeline for one photo.
type Processor struct {
	logger      *zap.Logger
	photos      *store.PhotoRepository
	faces       *store.FaceRepository
	tagRepo     *store.TagRepository
	snapshots   *reference.Store
	events      *eventmatch.Matcher
	matcher     *facematch.Matcher
	detector    FaceDetector
	derivatives *derivative.Generator
	captioner   Captioner // nil disables captions
	hamming     int
}

// NewProcessor wires a processor.
func NewProcessor(
	logger *zap.Logger,
	photos *store.PhotoRepository,
	faces *store.FaceRepository,
	tagRepo *store.TagRepository,
	snapshots *reference.Store,
	events *eventmatch.Matcher,
	matcher *facematch.Matcher,
	detector FaceDetector,
	derivatives *derivative.Generator,
	captioner Captioner,
	nearDuplicateHamming int,
) *Processor {
	return &Processor{
		logger:      logger,
		photos:      photos,
		faces:       faces,
		tagRepo:     tagRepo,
		snapshots:   snapshots,
		events:      events,
		matcher:     matcher,
		detector:    detector,
		derivatives: derivatives,
		captioner:   captioner,
		hamming:     nearDuplicateHamming,
	}
}

// selfExcludingIndex hides the photo being processed from the dedup
// index, so a reprocessed photo never reads as a duplicate of itself.
type selfExcludingIndex struct {
	inner  dedup.Index
	selfID string
}

func (s selfExcludingIndex) PhotoByContentHash(ctx context.Context, contentHash string) (string, error) {
	id, err := s.inner.PhotoByContentHash(ctx, contentHash)
	if err != nil || id == s.selfID {
		return "", err
	}
	return id, nil
}

func (s selfExcludingIndex) PerceptualHashes(ctx context.Context) ([]dedup.KnownHashes, error) {
	all, err := s.inner.PerceptualHashes(ctx)
	if err != nil {
		return nil, err
	}
	kept := all[:0]
	for _, h := range all {
		if h.PhotoID != s.selfID {
			kept = append(kept, h)
		}
	}
	return kept, nil
}

// Process runs the pipeline for one photo and leaves it in its final
// review status. Photos already in a final status are skipped: a forced
// reprocess of an approved or rejected photo is a no-op.
func (p *Processor) Process(ctx context.Context, photoID string) error {
	photo, err := p.photos.GetByID(ctx, photoID)
	if err != nil {
		return err
	}

	status := Status(photo.Status)
	if status.Final() {
		p.logger.Info("skipping photo in final status",
			zap.String("photo_id", photoID), zap.String("status", photo.Status))
		return nil
	}

	// A photo can already be in processing when its previous worker
	// lost the lease mid-run.
	if status != StatusProcessing {
		if err := p.transition(ctx, photo, StatusProcessing); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(photo.OriginalPath)
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}
	modTime := time.Now()
	if fi, err := os.Stat(photo.OriginalPath); err == nil {
		modTime = fi.ModTime()
	}

	meta, err := timedStep("metadata", func() (*metadata.Metadata, error) {
		return metadata.Extract(data, modTime)
	})
	if err != nil {
		return err
	}

	checker := dedup.NewChecker(selfExcludingIndex{inner: p.photos, selfID: photoID}, p.hamming)
	dup, err := timedStep("dedup", func() (*dedup.Result, error) {
		return checker.Check(ctx, data)
	})
	if err != nil {
		return err
	}

	photo.PHash = dup.Fingerprint.PHash
	photo.DHash = dup.Fingerprint.DHash
	photo.CapturedAt = &meta.CapturedAt
	photo.CapturedFromMtime = meta.FromFileTime
	photo.Latitude = meta.Lat
	photo.Longitude = meta.Lon
	photo.CameraMake = meta.CameraMake
	photo.CameraModel = meta.CameraModel
	photo.Width = meta.Width
	photo.Height = meta.Height

	if dup.Verdict == dedup.ExactDuplicate {
		photo.DuplicateOf = &dup.DuplicateOf
		if err := p.photos.UpdateExtracted(ctx, photo); err != nil {
			return err
		}
		observability.DuplicatesDetected.WithLabelValues("exact").Inc()
		p.logger.Info("exact duplicate",
			zap.String("photo_id", photoID), zap.String("duplicate_of", dup.DuplicateOf))
		return p.transition(ctx, photo, StatusDuplicate)
	}
	if dup.Verdict == dedup.NearDuplicate {
		photo.NearDuplicate = true
		photo.DuplicateOf = &dup.DuplicateOf
		observability.DuplicatesDetected.WithLabelValues("near").Inc()
	}

	if err := p.photos.UpdateExtracted(ctx, photo); err != nil {
		return err
	}

	snapshot, err := p.snapshots.Current()
	if err != nil {
		return err
	}

	match := p.events.Match(meta.CapturedAt, meta.Lat, meta.Lon, snapshot)
	var (
		eventID      *int64
		candidateIDs []int64
	)
	switch match.Outcome {
	case eventmatch.Matched:
		eventID = &match.Event.ID
	case eventmatch.Ambiguous:
		// The tied candidates go to the reviewer, who resolves the
		// ambiguity through manual event assignment.
		for _, c := range match.Candidates {
			candidateIDs = append(candidateIDs, c.Event.ID)
		}
	}
	if err := p.photos.AssignEvent(ctx, photoID, eventID, candidateIDs); err != nil {
		return err
	}

	// Derivatives are display-only: a failed tier is logged and the
	// photo continues through the pipeline.
	derivs, derr := p.derivatives.Generate(photo.ContentHash, data)
	if derr != nil {
		p.logger.Warn("derivative generation incomplete",
			zap.String("photo_id", photoID), zap.Error(derr))
	}
	if len(derivs) > 0 {
		records := make([]store.DerivativeRecord, 0, len(derivs))
		for _, d := range derivs {
			records = append(records, store.DerivativeRecord{
				Tier: d.Tier, Path: d.Path, Width: d.Width, Height: d.Height,
			})
		}
		if err := p.photos.ReplaceDerivatives(ctx, photoID, records); err != nil {
			return err
		}
	}

	dets, err := timedStep("face_detect", func() ([]facematch.Detection, error) {
		return p.detector.Detect(ctx, data)
	})
	if err != nil {
		return err
	}
	observability.FacesDetected.Add(float64(len(dets)))

	matched := p.matcher.MatchFaces(dets, snapshot, eventID)
	stored := make([]store.StoredFace, 0, len(matched))
	for i, f := range matched {
		observability.FacesMatched.WithLabelValues(string(f.Band)).Inc()
		sf := store.StoredFace{
			FaceIndex: i,
			Embedding: f.Embedding,
			// Relative coordinates keep the box valid on any derivative
			// tier, not just the original.
			BBox:      facematch.ConvertPixelBBoxToRelative(f.BBox, meta.Width, meta.Height),
			DetScore:  f.DetScore,
			MatchBand: string(f.Band),
		}
		if f.MemberID != 0 {
			id := f.MemberID
			dist := f.Distance
			sf.MatchedMemberID = &id
			sf.MatchDistance = &dist
		}
		stored = append(stored, sf)
	}
	if err := p.faces.ReplaceUnconfirmed(ctx, photoID, stored); err != nil {
		return err
	}

	if err := p.refreshTags(ctx, photo, match.Event, snapshot); err != nil {
		return err
	}

	if p.captioner != nil {
		if caption, err := p.captioner.Caption(ctx, data); err != nil {
			p.logger.Warn("caption generation failed",
				zap.String("photo_id", photoID), zap.Error(err))
		} else if caption != "" {
			if err := p.photos.SetCaption(ctx, photoID, caption); err != nil {
				return err
			}
		}
	}

	final := StatusPendingReview
	switch match.Outcome {
	case eventmatch.Unmatched:
		final = StatusUnmatched
	case eventmatch.Ambiguous:
		final = StatusAmbiguous
	}
	if err := p.transition(ctx, photo, final); err != nil {
		return err
	}

	observability.PhotosProcessed.WithLabelValues(string(final)).Inc()
	p.logger.Info("photo processed",
		zap.String("photo_id", photoID),
		zap.String("status", string(final)),
		zap.Int("faces", len(matched)),
		zap.Bool("near_duplicate", photo.NearDuplicate))
	return nil
}

// RefreshTags resynthesizes the auto tags for a photo, typically after
// a reviewer confirmed a face or assigned an event.
func (p *Processor) RefreshTags(ctx context.Context, photoID string) error {
	photo, err := p.photos.GetByID(ctx, photoID)
	if err != nil {
		return err
	}
	snapshot, err := p.snapshots.Current()
	if err != nil {
		return err
	}
	var event *reference.Event
	if photo.EventID != nil {
		if ev, ok := snapshot.Event(*photo.EventID); ok {
			event = &ev
		}
	}
	return p.refreshTags(ctx, photo, event, snapshot)
}

func (p *Processor) refreshTags(ctx context.Context, photo *store.Photo, event *reference.Event, snapshot *reference.Snapshot) error {
	faces, err := p.faces.FacesByPhoto(ctx, photo.ID)
	if err != nil {
		return err
	}

	var personNames []string
	for _, f := range faces {
		if f.IsGuest {
			continue
		}
		memberID := f.ConfirmedMemberID
		// Only confident machine matches produce tags; suggestions wait
		// for the reviewer.
		if memberID == nil && f.MatchBand == string(facematch.BandAuto) {
			memberID = f.MatchedMemberID
		}
		if memberID == nil {
			continue
		}
		if m, ok := snapshot.Member(*memberID); ok {
			personNames = append(personNames, m.DisplayName)
		}
	}

	var submitterName string
	if photo.SubmitterMemberID != nil {
		if m, ok := snapshot.Member(*photo.SubmitterMemberID); ok {
			submitterName = m.DisplayName
		}
	}

	var takenAt time.Time
	if photo.CapturedAt != nil {
		takenAt = *photo.CapturedAt
	}

	synthesized := tags.Synthesize(tags.Input{
		TakenAt:       takenAt,
		Event:         event,
		PersonNames:   personNames,
		SubmitterName: submitterName,
	})
	records := make([]store.PhotoTag, 0, len(synthesized))
	for _, t := range synthesized {
		records = append(records, store.PhotoTag{Tag: t.Value, TagType: string(t.Type)})
	}
	return p.tagRepo.ReplaceAutoGenerated(ctx, photo.ID, records)
}

// ExportName builds the download filename for a photo.
func (p *Processor) ExportName(photo *store.Photo, submitterName string) string {
	takenAt := time.Now()
	if photo.CapturedAt != nil {
		takenAt = *photo.CapturedAt
	}
	ext := filepath.Ext(photo.OriginalFilename)
	return derivative.ExportFilename(takenAt, submitterName, photo.ContentHash, ext)
}

// transition validates and persists a status change.
func (p *Processor) transition(ctx context.Context, photo *store.Photo, next Status) error {
	current := Status(photo.Status)
	if !current.CanTransitionTo(next) {
		return &ErrIllegalTransition{From: current, To: next}
	}
	if err := p.photos.SetStatus(ctx, photo.ID, string(next)); err != nil {
		return err
	}
	photo.Status = string(next)
	return nil
}

// timedStep times one pipeline stage.
func timedStep[T any](name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	observability.StepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return out, err
}
