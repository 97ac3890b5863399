package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roblox-lms-backend/internal/models"
)

const progressColumns = `session_id, student_id, student_name, exercise_id, lesson_id, game_id,
	start_time, end_time, duration, score, exercise_type, additional_data, updated_at`

type ProgressRepo struct {
	pool *pgxpool.Pool
}

func NewProgressRepo(pool *pgxpool.Pool) *ProgressRepo {
	return &ProgressRepo{pool: pool}
}

func scanProgress(row pgx.Row) (*models.ProgressEvent, error) {
	p := &models.ProgressEvent{}
	err := row.Scan(
		&p.SessionID, &p.StudentID, &p.StudentName, &p.ExerciseID, &p.LessonID, &p.GameID,
		&p.StartTime, &p.EndTime, &p.Duration, &p.Score, &p.ExerciseType, &p.AdditionalData, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert creates the record for p's key or merges p into the stored one. The merge runs
// under a row lock, so the exercise-type rule is a compare-and-swap even for concurrent
// submissions of the same key.
func (r *ProgressRepo) Upsert(ctx context.Context, p *models.ProgressEvent) (*models.ProgressEvent, error) {
	p.ExerciseType = models.NormalizeExerciseType(p.ExerciseType)
	p.Duration = p.EndTime - p.StartTime
	additional := p.AdditionalData
	if len(additional) == 0 {
		additional = json.RawMessage("{}")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin progress transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	key := p.Key()
	tag, err := tx.Exec(ctx, `
		INSERT INTO progress_events (session_id, student_id, student_name, exercise_id, lesson_id, game_id,
			start_time, end_time, duration, score, exercise_type, additional_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id, student_id, exercise_id) DO NOTHING
	`, p.SessionID, p.StudentID, p.StudentName, p.ExerciseID, p.LessonID, p.GameID,
		p.StartTime, p.EndTime, p.Duration, p.Score, p.ExerciseType, []byte(additional))
	if err != nil {
		return nil, fmt.Errorf("failed to insert progress %s: %w", key, err)
	}

	if tag.RowsAffected() == 1 {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit progress %s: %w", key, err)
		}
		p.AdditionalData = additional
		return p, nil
	}

	stored, err := scanProgress(tx.QueryRow(ctx, `SELECT `+progressColumns+` FROM progress_events
		WHERE session_id = $1 AND student_id = $2 AND exercise_id = $3 FOR UPDATE`,
		p.SessionID, p.StudentID, p.ExerciseID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock progress %s: %w", key, err)
	}

	stored.MergeFrom(p)

	err = tx.QueryRow(ctx, `
		UPDATE progress_events
		SET student_name = $4, lesson_id = $5, game_id = $6, start_time = $7, end_time = $8,
			duration = $9, score = $10, exercise_type = $11, additional_data = $12, updated_at = NOW()
		WHERE session_id = $1 AND student_id = $2 AND exercise_id = $3
		RETURNING updated_at
	`, stored.SessionID, stored.StudentID, stored.ExerciseID, stored.StudentName, stored.LessonID, stored.GameID, stored.StartTime, stored.EndTime,
		stored.Duration, stored.Score, stored.ExerciseType, []byte(stored.AdditionalData)).Scan(&stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to merge progress %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit progress %s: %w", key, err)
	}
	return stored, nil
}

func (r *ProgressRepo) ListBySession(ctx context.Context, sessionID string) ([]*models.ProgressEvent, error) {
	return r.list(ctx, `SELECT `+progressColumns+` FROM progress_events WHERE session_id = $1 ORDER BY updated_at ASC`, sessionID)
}

// ListByLesson returns progress for a lesson across all of its sessions.
func (r *ProgressRepo) ListByLesson(ctx context.Context, lessonID string) ([]*models.ProgressEvent, error) {
	return r.list(ctx, `SELECT `+progressColumns+` FROM progress_events WHERE lesson_id = $1 ORDER BY student_id, updated_at`, lessonID)
}

func (r *ProgressRepo) list(ctx context.Context, query string, arg string) ([]*models.ProgressEvent, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ProgressEvent
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
