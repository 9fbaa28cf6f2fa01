package store

import (
	"context"
	"fmt"
)

// TagRepository provides PostgreSQL-backed tag storage.
type TagRepository struct {
	pool *Pool
}

// NewTagRepository creates a new tag repository.
func NewTagRepository(pool *Pool) *TagRepository {
	return &TagRepository{pool: pool}
}

// ReplaceAutoGenerated swaps out a photo's synthesized tags for a fresh
// set. Manually added tags survive reprocessing.
func (r *TagRepository) ReplaceAutoGenerated(ctx context.Context, photoID string, tags []PhotoTag) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM photo_tags WHERE photo_id = $1 AND auto_generated", photoID)
	if err != nil {
		return fmt.Errorf("delete auto tags: %w", err)
	}

	for _, t := range tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO photo_tags (photo_id, tag, tag_type, auto_generated)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT DO NOTHING
		`, photoID, t.Tag, t.TagType)
		if err != nil {
			return fmt.Errorf("insert tag %q: %w", t.Tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tags: %w", err)
	}
	return nil
}

// Add attaches a manual tag to a photo.
func (r *TagRepository) Add(ctx context.Context, photoID string, tag PhotoTag) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO photo_tags (photo_id, tag, tag_type, auto_generated)
		VALUES ($1, $2, $3, FALSE)
		ON CONFLICT DO NOTHING
	`, photoID, tag.Tag, tag.TagType)
	if err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	return nil
}

// TagsByPhoto returns all tags for a photo, ordered for stable output.
func (r *TagRepository) TagsByPhoto(ctx context.Context, photoID string) ([]PhotoTag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tag, tag_type, auto_generated
		FROM photo_tags
		WHERE photo_id = $1
		ORDER BY tag_type, tag
	`, photoID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var out []PhotoTag
	for rows.Next() {
		var t PhotoTag
		if err := rows.Scan(&t.Tag, &t.TagType, &t.AutoGenerated); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
