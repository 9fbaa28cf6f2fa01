package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrFaceNotFound is returned when a face id does not exist.
	ErrFaceNotFound = errors.New("face not found")
	// ErrFaceAlreadyConfirmed is returned when a reviewer tries to
	// change a confirmed identification. Confirmations are final.
	ErrFaceAlreadyConfirmed = errors.New("face identification already confirmed")
)

// FaceRepository provides PostgreSQL-backed storage of detected faces.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

const faceColumns = `id, photo_id, face_index, embedding, bbox, det_score,
	matched_member_id, match_distance, match_band, confirmed_member_id,
	confirmed_at, is_guest, created_at`

// ReplaceUnconfirmed swaps out a photo's machine matches for fresh ones.
// Reviewer-confirmed rows are untouched: reprocessing must never undo a
// human decision, so a new detection colliding with a confirmed index is
// dropped.
func (r *FaceRepository) ReplaceUnconfirmed(ctx context.Context, photoID string, faces []StoredFace) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM photo_faces WHERE photo_id = $1 AND confirmed_member_id IS NULL", photoID)
	if err != nil {
		return fmt.Errorf("delete unconfirmed faces: %w", err)
	}

	for _, f := range faces {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO photo_faces (photo_id, face_index, embedding, bbox, det_score,
				matched_member_id, match_distance, match_band)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (photo_id, face_index) DO NOTHING
		`, photoID, f.FaceIndex, pgvector.NewVector(f.Embedding), pq.Array(f.BBox),
			f.DetScore, f.MatchedMemberID, f.MatchDistance, f.MatchBand)
		if err != nil {
			return fmt.Errorf("insert face %d: %w", f.FaceIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit faces: %w", err)
	}
	return nil
}

// FacesByPhoto retrieves all faces for a photo.
func (r *FaceRepository) FacesByPhoto(ctx context.Context, photoID string) ([]StoredFace, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+faceColumns+" FROM photo_faces WHERE photo_id = $1 ORDER BY face_index", photoID)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// GetByID fetches a single face.
func (r *FaceRepository) GetByID(ctx context.Context, id int64) (*StoredFace, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+faceColumns+" FROM photo_faces WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("query face: %w", err)
	}
	defer rows.Close()

	faces, err := scanFaces(rows)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrFaceNotFound
	}
	return &faces[0], nil
}

// Confirm finalizes a face identification and feeds the embedding back
// into the reference set as a confirmed exemplar for the member. A face
// can only be confirmed once.
func (r *FaceRepository) Confirm(ctx context.Context, faceID, memberID int64) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		confirmed sql.NullInt64
		embedding pgvector.Vector
	)
	err = tx.QueryRowContext(ctx,
		"SELECT confirmed_member_id, embedding FROM photo_faces WHERE id = $1 FOR UPDATE", faceID).
		Scan(&confirmed, &embedding)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrFaceNotFound
	}
	if err != nil {
		return fmt.Errorf("lock face: %w", err)
	}
	if confirmed.Valid {
		return ErrFaceAlreadyConfirmed
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE photo_faces
		SET confirmed_member_id = $2, matched_member_id = $2, confirmed_at = NOW(), is_guest = FALSE
		WHERE id = $1
	`, faceID, memberID)
	if err != nil {
		return fmt.Errorf("confirm face: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO member_encodings (member_id, embedding, source)
		VALUES ($1, $2, 'confirmed')
	`, memberID, embedding)
	if err != nil {
		return fmt.Errorf("insert confirmed exemplar: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit confirmation: %w", err)
	}
	return nil
}

// MarkGuest flags a face as a non-member guest so it never produces a
// person tag. Confirmed faces cannot be reflagged.
func (r *FaceRepository) MarkGuest(ctx context.Context, faceID int64) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE photo_faces
		SET is_guest = TRUE, matched_member_id = NULL, match_band = 'unidentified'
		WHERE id = $1 AND confirmed_member_id IS NULL
	`, faceID)
	if err != nil {
		return fmt.Errorf("mark guest: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		face, err := r.GetByID(ctx, faceID)
		if err != nil {
			return err
		}
		if face.ConfirmedMemberID != nil {
			return ErrFaceAlreadyConfirmed
		}
		return ErrFaceNotFound
	}
	return nil
}

func scanFaces(rows *sql.Rows) ([]StoredFace, error) {
	var out []StoredFace
	for rows.Next() {
		var (
			f         StoredFace
			embedding pgvector.Vector
			bbox      []float64
		)
		err := rows.Scan(
			&f.ID, &f.PhotoID, &f.FaceIndex, &embedding, pq.Array(&bbox), &f.DetScore,
			&f.MatchedMemberID, &f.MatchDistance, &f.MatchBand, &f.ConfirmedMemberID,
			&f.ConfirmedAt, &f.IsGuest, &f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		f.Embedding = embedding.Slice()
		f.BBox = bbox
		out = append(out, f)
	}
	return out, rows.Err()
}
