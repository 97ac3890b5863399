package models

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

const ExerciseTypeUnknown = "unknown"

type ProgressEvent struct {
	SessionID      string          `json:"session_id"`
	StudentID      string          `json:"student_id"`
	StudentName    *string         `json:"student_name"`
	ExerciseID     string          `json:"exercise_id"`
	LessonID       string          `json:"lesson_id"`
	GameID         string          `json:"game_id"`
	StartTime      int64           `json:"start_time"`
	EndTime        int64           `json:"end_time"`
	Duration       int64           `json:"duration"`
	Score          float64         `json:"score"`
	ExerciseType   string          `json:"exercise_type"`
	AdditionalData json.RawMessage `json:"additional_data"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ProgressKey identifies a progress record in logs and in-memory indexes. Each part is
// path-escaped so ids containing the separator cannot collide.
func ProgressKey(sessionID, studentID, exerciseID string) string {
	return url.PathEscape(sessionID) + "/" + url.PathEscape(studentID) + "/" + url.PathEscape(exerciseID)
}

func (p *ProgressEvent) Key() string {
	return ProgressKey(p.SessionID, p.StudentID, p.ExerciseID)
}

// NormalizeExerciseType lower-cases a classification; empty means unknown.
func NormalizeExerciseType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return ExerciseTypeUnknown
	}
	return t
}

// ResolveExerciseType keeps a stored classification unless it is absent or unknown.
func ResolveExerciseType(existing, incoming string) string {
	incoming = NormalizeExerciseType(incoming)
	existing = strings.TrimSpace(existing)
	if existing == "" || existing == ExerciseTypeUnknown {
		return incoming
	}
	return existing
}

// MergeFrom merge-updates p with a newer submission for the same key.
func (p *ProgressEvent) MergeFrom(in *ProgressEvent) {
	if in.StudentName != nil {
		p.StudentName = in.StudentName
	}
	if in.LessonID != "" {
		p.LessonID = in.LessonID
	}
	if in.GameID != "" {
		p.GameID = in.GameID
	}
	if len(in.AdditionalData) > 0 {
		p.AdditionalData = in.AdditionalData
	}
	p.StartTime = in.StartTime
	p.EndTime = in.EndTime
	p.Duration = in.EndTime - in.StartTime
	p.Score = in.Score
	p.ExerciseType = ResolveExerciseType(p.ExerciseType, in.ExerciseType)
}

// StudentProgress aggregates progress records of one student within a lesson.
type StudentProgress struct {
	StudentID   string  `json:"student_id"`
	StudentName *string `json:"student_name"`
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
}
