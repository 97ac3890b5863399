package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"roblox-lms-backend/internal/models"
)

type RoomEventRepo struct {
	pool *pgxpool.Pool
}

func NewRoomEventRepo(pool *pgxpool.Pool) *RoomEventRepo {
	return &RoomEventRepo{pool: pool}
}

// Append inserts e and fills in its sequence number. Rows are never updated.
func (r *RoomEventRepo) Append(ctx context.Context, e *models.RoomEvent) error {
	query := `INSERT INTO room_events (session_id, event_type, room_id, player_name, timestamp_ms, timestamp_source)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq, created_at`

	return r.pool.QueryRow(ctx, query,
		e.SessionID, string(e.EventType), e.RoomID, e.PlayerName, e.Timestamp, string(e.TimestampSource),
	).Scan(&e.Seq, &e.CreatedAt)
}

// ListBySession returns a session's events in insertion order.
func (r *RoomEventRepo) ListBySession(ctx context.Context, sessionID string) ([]models.RoomEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, session_id, event_type, room_id, player_name, timestamp_ms, timestamp_source, created_at
		FROM room_events
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.RoomEvent
	for rows.Next() {
		var e models.RoomEvent
		var eventType, source string
		if err := rows.Scan(&e.Seq, &e.SessionID, &eventType, &e.RoomID, &e.PlayerName,
			&e.Timestamp, &source, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EventType = models.RoomEventType(eventType)
		e.TimestampSource = models.TimestampSource(source)
		events = append(events, e)
	}
	return events, rows.Err()
}
