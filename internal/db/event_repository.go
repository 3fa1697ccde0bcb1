package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unklstewy/traffic-overlay/pkg/overlay"
)

// EventRecord is a stored overlay event.
type EventRecord struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	ContactID      string    `json:"contact_id,omitempty"`
	Callsign       string    `json:"callsign,omitempty"`
	Classification string    `json:"classification,omitempty"`
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lon"`
	AltitudeFt     float64   `json:"alt_ft"`
	Heading        float64   `json:"heading"`
	GroundSpeedKt  float64   `json:"gs_kt"`
	Text           string    `json:"text,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEventRecord flattens an overlay event into a row. Announcements carry
// no contact.
func NewEventRecord(e overlay.Event) EventRecord {
	r := EventRecord{
		Kind:       string(e.Kind),
		Text:       e.Text,
		OccurredAt: e.At.UTC(),
	}
	if e.Kind != overlay.EventAnnounced {
		c := e.Contact
		r.ContactID = c.ID
		r.Callsign = c.Callsign
		r.Classification = c.Classification.String()
		r.Latitude = c.Latitude
		r.Longitude = c.Longitude
		r.AltitudeFt = c.AltitudeFt
		r.Heading = c.Heading
		r.GroundSpeedKt = c.GroundSpeedKt
	}
	return r
}

// EventRepository handles database operations for the event log.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// InsertEvent stores one overlay event.
func (r *EventRepository) InsertEvent(ctx context.Context, e overlay.Event) error {
	rec := NewEventRecord(e)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO traffic_events (
			kind, contact_id, callsign, classification,
			latitude, longitude, altitude_ft, heading_deg, ground_speed_kts,
			text, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.Kind, nullString(rec.ContactID), nullString(rec.Callsign), nullString(rec.Classification),
		rec.Latitude, rec.Longitude, rec.AltitudeFt, rec.Heading, rec.GroundSpeedKt,
		nullString(rec.Text), rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (r *EventRepository) RecentEvents(ctx context.Context, limit int) ([]EventRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, contact_id, callsign, classification,
		        latitude, longitude, altitude_ft, heading_deg, ground_speed_kts,
		        text, occurred_at
		 FROM traffic_events
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var rec EventRecord
		var contactID, callsign, classification, text sql.NullString
		var lat, lon, alt, hdg, gs sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Kind, &contactID, &callsign, &classification,
			&lat, &lon, &alt, &hdg, &gs, &text, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.ContactID = contactID.String
		rec.Callsign = callsign.String
		rec.Classification = classification.String
		rec.Text = text.String
		rec.Latitude = lat.Float64
		rec.Longitude = lon.Float64
		rec.AltitudeFt = alt.Float64
		rec.Heading = hdg.Float64
		rec.GroundSpeedKt = gs.Float64
		events = append(events, rec)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
