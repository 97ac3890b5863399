package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roblox-lms-backend/internal/models"
)

const sessionColumns = `id, lesson_id, obs_t0, ready_epoch, master_video_path, status, stopped_at, created_at, updated_at`

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	s := &models.Session{}
	var status string
	err := row.Scan(
		&s.ID, &s.LessonID, &s.ObsT0, &s.ReadyEpoch, &s.MasterVideoPath,
		&status, &s.StoppedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	return s, nil
}

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// Latest returns the recording session with the newest obs_t0, or pgx.ErrNoRows.
func (r *SessionRepo) Latest(ctx context.Context) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE status = $1 AND obs_t0 IS NOT NULL
		ORDER BY obs_t0 DESC
		LIMIT 1
	`, string(models.SessionStatusRecording)))
}

// EnsureExists creates a pending stub for a session that events arrive for before it is anchored.
func (r *SessionRepo) EnsureExists(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
	return err
}

// Anchor sets obs_t0 under a row lock so concurrent starts cannot both write an origin.
// Returns models.ErrSessionFinalized for ready sessions.
func (r *SessionRepo) Anchor(ctx context.Context, id, lessonID string, nowMs int64) (*models.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin anchor transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", id, err)
	}

	s, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to lock session %s: %w", id, err)
	}

	if err := s.Anchor(lessonID, nowMs); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE sessions
		SET obs_t0 = $2, lesson_id = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, s.ID, s.ObsT0, s.LessonID, string(s.Status)).Scan(&s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to anchor session %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit anchor for session %s: %w", id, err)
	}
	return s, nil
}

func (r *SessionRepo) SetStopped(ctx context.Context, id string, masterVideoPath *string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, master_video_path, stopped_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET master_video_path = COALESCE(EXCLUDED.master_video_path, sessions.master_video_path),
			stopped_at = NOW(),
			updated_at = NOW()
	`, id, masterVideoPath)
	return err
}

func (r *SessionRepo) SetReadyEpoch(ctx context.Context, id string, epochMs int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, ready_epoch)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET ready_epoch = EXCLUDED.ready_epoch, updated_at = NOW()
	`, id, epochMs)
	return err
}

func (r *SessionRepo) SetUploading(ctx context.Context, id, masterVideoPath string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET status = $2, master_video_path = $3, updated_at = NOW()
		WHERE id = $1
	`, id, string(models.SessionStatusUploading), masterVideoPath)
	return err
}

func (r *SessionRepo) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	_, err := r.pool.Exec(ctx, "UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2", string(status), id)
	return err
}
