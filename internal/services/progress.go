package services

import (
	"context"
	"fmt"
	"sort"

	"roblox-lms-backend/internal/models"
)

type progressReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]*models.ProgressEvent, error)
	ListByLesson(ctx context.Context, lessonID string) ([]*models.ProgressEvent, error)
}

type ProgressService struct {
	progress progressReader
}

func NewProgressService(progress progressReader) *ProgressService {
	return &ProgressService{progress: progress}
}

func (s *ProgressService) SessionProgress(ctx context.Context, sessionID string) ([]*models.ProgressEvent, error) {
	records, err := s.progress.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress for session %s: %w", sessionID, err)
	}
	if records == nil {
		records = []*models.ProgressEvent{}
	}
	return records, nil
}

// LessonProgress aggregates every session of a lesson per student.
func (s *ProgressService) LessonProgress(ctx context.Context, lessonID string) ([]models.StudentProgress, error) {
	if lessonID == "" {
		return nil, newValidationError("lessonId", "lessonId required")
	}
	records, err := s.progress.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress for lesson %s: %w", lessonID, err)
	}
	return SummarizeProgress(records), nil
}

// SummarizeProgress counts attempts per student; an attempt with a positive score is solved.
func SummarizeProgress(records []*models.ProgressEvent) []models.StudentProgress {
	byStudent := make(map[string]*models.StudentProgress)
	for _, p := range records {
		sp, ok := byStudent[p.StudentID]
		if !ok {
			sp = &models.StudentProgress{StudentID: p.StudentID}
			byStudent[p.StudentID] = sp
		}
		if p.StudentName != nil {
			sp.StudentName = p.StudentName
		}
		sp.Total++
		if p.Score > 0 {
			sp.Completed++
		}
	}

	out := make([]models.StudentProgress, 0, len(byStudent))
	for _, sp := range byStudent {
		out = append(out, *sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}
