package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/clubgallery/photoflow/internal/dedup"
)

// ErrPhotoNotFound is returned when a photo id does not exist.
var ErrPhotoNotFound = errors.New("photo not found")

// PhotoRepository provides PostgreSQL-backed photo storage. It also
// serves as the dedup index over the processed corpus.
type PhotoRepository struct {
	pool *Pool
}

// NewPhotoRepository creates a new photo repository.
func NewPhotoRepository(pool *Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

const photoColumns = `id, content_hash, phash, dhash, original_path, original_filename,
	submitter_member_id, captured_at, captured_from_mtime, latitude, longitude,
	camera_make, camera_model, width, height, status, event_id, candidate_event_ids,
	duplicate_of, near_duplicate, caption, created_at, updated_at`

// Create inserts a new photo record.
func (r *PhotoRepository) Create(ctx context.Context, p *Photo) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO photos (id, content_hash, phash, dhash, original_path, original_filename,
			submitter_member_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.ContentHash, p.PHash, p.DHash, p.OriginalPath, p.OriginalFilename,
		p.SubmitterMemberID, p.Status)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

// GetByID fetches a photo by id.
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*Photo, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+photoColumns+" FROM photos WHERE id = $1", id)
	return scanPhoto(row)
}

func scanPhoto(row *sql.Row) (*Photo, error) {
	var p Photo
	err := row.Scan(
		&p.ID, &p.ContentHash, &p.PHash, &p.DHash, &p.OriginalPath, &p.OriginalFilename,
		&p.SubmitterMemberID, &p.CapturedAt, &p.CapturedFromMtime, &p.Latitude, &p.Longitude,
		&p.CameraMake, &p.CameraModel, &p.Width, &p.Height, &p.Status, &p.EventID,
		pq.Array(&p.CandidateEventIDs),
		&p.DuplicateOf, &p.NearDuplicate, &p.Caption, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan photo: %w", err)
	}
	return &p, nil
}

// UpdateExtracted persists the metadata, hashes and dimensions computed
// during processing.
func (r *PhotoRepository) UpdateExtracted(ctx context.Context, p *Photo) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE photos
		SET phash = $2, dhash = $3, captured_at = $4, captured_from_mtime = $5,
			latitude = $6, longitude = $7, camera_make = $8, camera_model = $9,
			width = $10, height = $11, near_duplicate = $12, duplicate_of = $13,
			updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.PHash, p.DHash, p.CapturedAt, p.CapturedFromMtime,
		p.Latitude, p.Longitude, p.CameraMake, p.CameraModel,
		p.Width, p.Height, p.NearDuplicate, p.DuplicateOf)
	if err != nil {
		return fmt.Errorf("update photo metadata: %w", err)
	}
	return nil
}

// SetStatus updates the processing status.
func (r *PhotoRepository) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.pool.Exec(ctx,
		"UPDATE photos SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("update photo status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPhotoNotFound
	}
	return nil
}

// AssignEvent sets (or clears, with nil) the matched event along with
// any tied candidates left for the reviewer. Resolving the match, by
// machine or by hand, passes nil candidates and clears the stored ones.
func (r *PhotoRepository) AssignEvent(ctx context.Context, id string, eventID *int64, candidateIDs []int64) error {
	var candidates any
	if len(candidateIDs) > 0 {
		candidates = pq.Array(candidateIDs)
	}
	_, err := r.pool.Exec(ctx,
		"UPDATE photos SET event_id = $2, candidate_event_ids = $3, updated_at = NOW() WHERE id = $1",
		id, eventID, candidates)
	if err != nil {
		return fmt.Errorf("assign event: %w", err)
	}
	return nil
}

// SetCaption stores a generated caption.
func (r *PhotoRepository) SetCaption(ctx context.Context, id, caption string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE photos SET caption = $2, updated_at = NOW() WHERE id = $1", id, caption)
	if err != nil {
		return fmt.Errorf("set caption: %w", err)
	}
	return nil
}

// ReplaceDerivatives records the rendered tiers for a photo.
func (r *PhotoRepository) ReplaceDerivatives(ctx context.Context, photoID string, derivs []DerivativeRecord) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM photo_derivatives WHERE photo_id = $1", photoID); err != nil {
		return fmt.Errorf("delete derivatives: %w", err)
	}
	for _, d := range derivs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO photo_derivatives (photo_id, tier, path, width, height)
			VALUES ($1, $2, $3, $4, $5)
		`, photoID, d.Tier, d.Path, d.Width, d.Height)
		if err != nil {
			return fmt.Errorf("insert derivative %s: %w", d.Tier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit derivatives: %w", err)
	}
	return nil
}

// Derivatives returns the rendered tiers for a photo.
func (r *PhotoRepository) Derivatives(ctx context.Context, photoID string) ([]DerivativeRecord, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT tier, path, width, height FROM photo_derivatives WHERE photo_id = $1 ORDER BY tier", photoID)
	if err != nil {
		return nil, fmt.Errorf("query derivatives: %w", err)
	}
	defer rows.Close()

	var out []DerivativeRecord
	for rows.Next() {
		var d DerivativeRecord
		if err := rows.Scan(&d.Tier, &d.Path, &d.Width, &d.Height); err != nil {
			return nil, fmt.Errorf("scan derivative: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// List returns photos matching the filter, newest first.
func (r *PhotoRepository) List(ctx context.Context, f PhotoFilter) ([]Photo, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if f.Status != "" {
		add("p.status = ?", f.Status)
	}
	if f.EventID != nil {
		add("p.event_id = ?", *f.EventID)
	}
	if f.Year != 0 {
		add("EXTRACT(YEAR FROM p.captured_at) = ?", f.Year)
	}
	if f.Tag != "" {
		add("EXISTS (SELECT 1 FROM photo_tags t WHERE t.photo_id = p.id AND t.tag = ?)", f.Tag)
	}
	if f.MemberID != nil {
		add(`EXISTS (SELECT 1 FROM photo_faces fc WHERE fc.photo_id = p.id
			AND COALESCE(fc.confirmed_member_id, fc.matched_member_id) = ?)`, *f.MemberID)
	}

	query := "SELECT " + photoColumns + " FROM photos p"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var out []Photo
	for rows.Next() {
		var p Photo
		err := rows.Scan(
			&p.ID, &p.ContentHash, &p.PHash, &p.DHash, &p.OriginalPath, &p.OriginalFilename,
			&p.SubmitterMemberID, &p.CapturedAt, &p.CapturedFromMtime, &p.Latitude, &p.Longitude,
			&p.CameraMake, &p.CameraModel, &p.Width, &p.Height, &p.Status, &p.EventID,
			pq.Array(&p.CandidateEventIDs),
			&p.DuplicateOf, &p.NearDuplicate, &p.Caption, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PhotoByContentHash returns the id of the photo with this exact content
// hash, or "" when none exists. Part of the dedup index.
func (r *PhotoRepository) PhotoByContentHash(ctx context.Context, contentHash string) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx,
		"SELECT id FROM photos WHERE content_hash = $1", contentHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query photo by content hash: %w", err)
	}
	return id, nil
}

// PerceptualHashes returns the hash records of all processed photos.
// Part of the dedup index; photos that are themselves duplicates are
// excluded so chains always point at the canonical photo.
func (r *PhotoRepository) PerceptualHashes(ctx context.Context) ([]dedup.KnownHashes, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, phash, dhash FROM photos WHERE phash <> '' AND duplicate_of IS NULL")
	if err != nil {
		return nil, fmt.Errorf("query perceptual hashes: %w", err)
	}
	defer rows.Close()

	var out []dedup.KnownHashes
	for rows.Next() {
		var (
			rec          dedup.KnownHashes
			phash, dhash string
		)
		if err := rows.Scan(&rec.PhotoID, &phash, &dhash); err != nil {
			return nil, fmt.Errorf("scan perceptual hashes: %w", err)
		}
		p, err := strconv.ParseUint(phash, 16, 64)
		if err != nil {
			continue
		}
		d, err := strconv.ParseUint(dhash, 16, 64)
		if err != nil {
			continue
		}
		rec.PHashBits = p
		rec.DHashBits = d
		out = append(out, rec)
	}
	return out, rows.Err()
}
