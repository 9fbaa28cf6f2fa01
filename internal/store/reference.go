package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/clubgallery/photoflow/internal/reference"
)

// ReferenceRepository stores the local copy of the reference data the
// snapshot is built from. Members, events and registrations mirror the
// membership system; encodings accumulate locally.
type ReferenceRepository struct {
	pool *Pool
}

// NewReferenceRepository creates a new reference repository.
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// LoadAll reads everything a snapshot build needs.
func (r *ReferenceRepository) LoadAll(ctx context.Context) ([]reference.Member, []reference.Event, []reference.Registration, []reference.Encoding, error) {
	members, err := r.loadMembers(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	events, err := r.loadEvents(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	regs, err := r.loadRegistrations(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	encodings, err := r.loadEncodings(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return members, events, regs, encodings, nil
}

func (r *ReferenceRepository) loadMembers(ctx context.Context) ([]reference.Member, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, display_name, opt_out FROM members")
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []reference.Member
	for rows.Next() {
		var m reference.Member
		if err := rows.Scan(&m.ID, &m.DisplayName, &m.OptOut); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *ReferenceRepository) loadEvents(ctx context.Context) ([]reference.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, starts_at, ends_at, latitude, longitude, radius_meters,
			COALESCE(activity_group, ''), COALESCE(location_name, ''), is_public
		FROM events
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []reference.Event
	for rows.Next() {
		var (
			e        reference.Event
			lat, lon *float64
		)
		err := rows.Scan(&e.ID, &e.Name, &e.Starts, &e.Ends, &lat, &lon,
			&e.RadiusMeters, &e.ActivityGroup, &e.LocationName, &e.IsPublic)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if lat != nil && lon != nil {
			e.HasLocation = true
			e.Lat, e.Lon = *lat, *lon
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *ReferenceRepository) loadRegistrations(ctx context.Context) ([]reference.Registration, error) {
	rows, err := r.pool.Query(ctx, "SELECT event_id, member_id FROM event_registrations")
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []reference.Registration
	for rows.Next() {
		var reg reference.Registration
		if err := rows.Scan(&reg.EventID, &reg.MemberID); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r *ReferenceRepository) loadEncodings(ctx context.Context) ([]reference.Encoding, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, member_id, embedding, source, created_at FROM member_encodings")
	if err != nil {
		return nil, fmt.Errorf("query encodings: %w", err)
	}
	defer rows.Close()

	var out []reference.Encoding
	for rows.Next() {
		var (
			e   reference.Encoding
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.ID, &e.MemberID, &vec, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan encoding: %w", err)
		}
		e.Vector = vec.Slice()
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertMember mirrors one member row from the membership system.
func (r *ReferenceRepository) UpsertMember(ctx context.Context, m reference.Member, email string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO members (id, display_name, email, opt_out, synced_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name, email = EXCLUDED.email,
			opt_out = EXCLUDED.opt_out, synced_at = NOW()
	`, m.ID, m.DisplayName, email, m.OptOut)
	if err != nil {
		return fmt.Errorf("upsert member %d: %w", m.ID, err)
	}
	return nil
}

// UpsertEvent mirrors one event row from the membership system.
func (r *ReferenceRepository) UpsertEvent(ctx context.Context, e reference.Event) error {
	var lat, lon *float64
	if e.HasLocation {
		lat, lon = &e.Lat, &e.Lon
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, name, starts_at, ends_at, latitude, longitude,
			radius_meters, activity_group, location_name, is_public, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at,
			latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
			radius_meters = EXCLUDED.radius_meters, activity_group = EXCLUDED.activity_group,
			location_name = EXCLUDED.location_name, is_public = EXCLUDED.is_public,
			synced_at = NOW()
	`, e.ID, e.Name, e.Starts, e.Ends, lat, lon, e.RadiusMeters,
		e.ActivityGroup, e.LocationName, e.IsPublic)
	if err != nil {
		return fmt.Errorf("upsert event %d: %w", e.ID, err)
	}
	return nil
}

// SetRegistrations replaces the RSVP list of one event.
func (r *ReferenceRepository) SetRegistrations(ctx context.Context, eventID int64, memberIDs []int64) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM event_registrations WHERE event_id = $1", eventID); err != nil {
		return fmt.Errorf("delete registrations: %w", err)
	}
	if len(memberIDs) > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO event_registrations (event_id, member_id)
			SELECT $1, m.id FROM members m WHERE m.id = ANY($2)
		`, eventID, pq.Array(memberIDs))
		if err != nil {
			return fmt.Errorf("insert registrations: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registrations: %w", err)
	}
	return nil
}

// InsertEncoding stores a new reference encoding, typically from a
// member's profile photo.
func (r *ReferenceRepository) InsertEncoding(ctx context.Context, e reference.Encoding) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO member_encodings (member_id, embedding, source)
		VALUES ($1, $2, $3)
	`, e.MemberID, pgvector.NewVector(e.Vector), string(e.Source))
	if err != nil {
		return fmt.Errorf("insert encoding: %w", err)
	}
	return nil
}
