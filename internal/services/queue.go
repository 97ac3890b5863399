package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"roblox-lms-backend/internal/models"
)

// SliceQueue is the Redis list the worker pool consumes slice jobs from.
const SliceQueue = "queue:slice"

type jobCreator interface {
	Create(ctx context.Context, j *models.SliceJob) error
}

type JobQueue struct {
	redis *redis.Client
	jobs  jobCreator
}

func NewJobQueue(redisClient *redis.Client, jobs jobCreator) *JobQueue {
	return &JobQueue{redis: redisClient, jobs: jobs}
}

func (q *JobQueue) Enqueue(ctx context.Context, sessionID string) (*models.SliceJob, error) {
	job := &models.SliceJob{SessionID: sessionID}
	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create slice job: %w", err)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := q.redis.LPush(ctx, SliceQueue, string(jobBytes)).Err(); err != nil {
		return nil, fmt.Errorf("failed to queue slice job %s: %w", job.ID, err)
	}
	return job, nil
}

// UpdatePublisher fans session progress out to websocket subscribers via Redis pub/sub.
type UpdatePublisher struct {
	redis *redis.Client
}

func NewUpdatePublisher(redisClient *redis.Client) *UpdatePublisher {
	return &UpdatePublisher{redis: redisClient}
}

func SessionChannel(sessionID string) string {
	return "session_updates:" + sessionID
}

func (p *UpdatePublisher) PublishUpdate(ctx context.Context, sessionID string, msg models.WSMessage) {
	data, _ := json.Marshal(msg)
	p.redis.Publish(ctx, SessionChannel(sessionID), string(data))
}
