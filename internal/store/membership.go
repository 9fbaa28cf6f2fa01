package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/clubgallery/photoflow/internal/reference"
)

// MembershipPool reads the club management system's MySQL replica.
// Access is read-only; the replica is the source of truth for members,
// events and RSVPs.
type MembershipPool struct {
	db *sql.DB
}

// NewMembershipPool creates a connection pool to the membership replica.
func NewMembershipPool(dsn string) (*MembershipPool, error) {
	if dsn == "" {
		return nil, errors.New("membership DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open membership database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping membership database: %w", err)
	}

	return &MembershipPool{db: db}, nil
}

// Close closes the connection pool.
func (p *MembershipPool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing membership connection: %w", err)
		}
	}
	return nil
}

// FetchMembers reads all active members. The returned map carries the
// email per member id for the local mirror.
func (p *MembershipPool) FetchMembers(ctx context.Context) ([]reference.Member, map[int64]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, display_name, COALESCE(email, ''), NOT photo_consent
		FROM contacts
		WHERE archived = 0
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var members []reference.Member
	emails := make(map[int64]string)
	for rows.Next() {
		var (
			m     reference.Member
			email string
		)
		if err := rows.Scan(&m.ID, &m.DisplayName, &email, &m.OptOut); err != nil {
			return nil, nil, fmt.Errorf("scan contact: %w", err)
		}
		members = append(members, m)
		emails[m.ID] = email
	}
	return members, emails, rows.Err()
}

// FetchEvents reads all events that have started in the past two years
// or are still upcoming. Older events no longer receive photos.
func (p *MembershipPool) FetchEvents(ctx context.Context) ([]reference.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, starts_at, ends_at, latitude, longitude,
			COALESCE(radius_m, 0), COALESCE(activity_group, ''),
			COALESCE(location_name, ''), is_public
		FROM events
		WHERE starts_at >= DATE_SUB(NOW(), INTERVAL 2 YEAR)
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []reference.Event
	for rows.Next() {
		var (
			e        reference.Event
			lat, lon sql.NullFloat64
		)
		err := rows.Scan(&e.ID, &e.Name, &e.Starts, &e.Ends, &lat, &lon,
			&e.RadiusMeters, &e.ActivityGroup, &e.LocationName, &e.IsPublic)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if lat.Valid && lon.Valid {
			e.HasLocation = true
			e.Lat, e.Lon = lat.Float64, lon.Float64
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// FetchRegistrations reads the RSVP list for one event.
func (p *MembershipPool) FetchRegistrations(ctx context.Context, eventID int64) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT contact_id FROM event_registrations WHERE event_id = ?", eventID)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SyncFromMembership mirrors members, events and registrations from the
// replica into the local reference tables. The progress callback, when
// non-nil, is invoked once per synced event.
func (r *ReferenceRepository) SyncFromMembership(ctx context.Context, m *MembershipPool, progress func()) error {
	members, emails, err := m.FetchMembers(ctx)
	if err != nil {
		return fmt.Errorf("fetch members: %w", err)
	}
	for _, member := range members {
		if err := r.UpsertMember(ctx, member, emails[member.ID]); err != nil {
			return err
		}
	}

	events, err := m.FetchEvents(ctx)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	for _, event := range events {
		if err := r.UpsertEvent(ctx, event); err != nil {
			return err
		}
		regs, err := m.FetchRegistrations(ctx, event.ID)
		if err != nil {
			return err
		}
		if err := r.SetRegistrations(ctx, event.ID, regs); err != nil {
			return err
		}
		if progress != nil {
			progress()
		}
	}

	return nil
}
