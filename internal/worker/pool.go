package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"roblox-lms-backend/internal/logger"
	"roblox-lms-backend/internal/models"
	"roblox-lms-backend/internal/services"
)

type jobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type sessionStatusStore interface {
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
}

type timelineSource interface {
	Reconcile(ctx context.Context, sessionID string) (*models.Timeline, error)
}

type clipSlicer interface {
	Slice(ctx context.Context, req services.SliceRequest) (*services.SliceResponse, error)
}

type updatePublisher interface {
	PublishUpdate(ctx context.Context, sessionID string, msg models.WSMessage)
}

type Pool struct {
	redis       *redis.Client
	jobs        jobStore
	sessions    sessionStatusStore
	timelines   timelineSource
	slicer      clipSlicer
	updates     updatePublisher
	bucket      string
	log         *logger.Logger
	workerCount int
	stopChan    chan struct{}

	// requeue pushes a failed job back after its backoff.
	requeue func(job *models.SliceJob, backoff time.Duration)
	// dequeue blocks for the next queued job; redis.Nil means the wait timed out.
	dequeue func(ctx context.Context) ([]string, error)
	// pollBackoff is the pause after a failed dequeue so an unreachable Redis is not hammered.
	pollBackoff time.Duration
}

func NewPool(
	redisClient *redis.Client,
	jobs jobStore,
	sessions sessionStatusStore,
	timelines timelineSource,
	slicer clipSlicer,
	updates updatePublisher,
	bucket string,
	workerCount int,
	log *logger.Logger,
) *Pool {
	p := &Pool{
		redis:       redisClient,
		jobs:        jobs,
		sessions:    sessions,
		timelines:   timelines,
		slicer:      slicer,
		updates:     updates,
		bucket:      bucket,
		log:         log.With("component", "worker"),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
		pollBackoff: time.Second,
	}
	p.requeue = p.requeueAfter
	p.dequeue = p.blockingPop
	return p
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	p.log.Info("started worker goroutines", "count", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			p.log.Info("worker shutting down", "worker", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.dequeue(ctx)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				p.log.Error("failed to poll slice queue", "worker", id, "error", err)
				if !p.pause(p.pollBackoff) {
					p.log.Info("worker shutting down", "worker", id)
					return
				}
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.SliceJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			p.log.Error("failed to parse job", "worker", id, "error", err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		p.log.Info("processing slice job", "worker", id, "job_id", job.ID, "session_id", job.SessionID)
		p.handle(ctx, &job)

		p.redis.Del(ctx, lockKey)
	}
}

// blockingPop waits up to 30s on the slice queue.
func (p *Pool) blockingPop(ctx context.Context) ([]string, error) {
	return p.redis.BLPop(ctx, 30*time.Second, services.SliceQueue).Result()
}

// pause waits for d and reports false if the pool was stopped meanwhile.
func (p *Pool) pause(d time.Duration) bool {
	select {
	case <-p.stopChan:
		return false
	case <-time.After(d):
		return true
	}
}

func (p *Pool) handle(ctx context.Context, job *models.SliceJob) {
	p.setJobStatus(ctx, job, models.JobStatusProcessing)

	clips, err := p.process(ctx, job)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	p.handleSuccess(ctx, job, clips)
}

func (p *Pool) process(ctx context.Context, job *models.SliceJob) (int, error) {
	p.setSessionStatus(ctx, job.SessionID, models.SessionStatusProcessing)
	p.publishStatus(ctx, job, models.SessionStatusProcessing, "Reconciling room events")

	tl, err := p.timelines.Reconcile(ctx, job.SessionID)
	if err != nil {
		return 0, err
	}

	clips := services.PlanClips(tl.Events)
	if len(clips) == 0 {
		p.log.Warn("no complete room visits to slice", "session_id", job.SessionID)
		return 0, nil
	}

	p.publishStatus(ctx, job, models.SessionStatusProcessing, "Slicing master video")
	resp, err := p.slicer.Slice(ctx, services.SliceRequest{
		SessionID: job.SessionID,
		Bucket:    p.bucket,
		ObjectKey: models.MasterObjectKey(job.SessionID),
		ObsT0:     tl.ObsT0,
		Clips:     clips,
	})
	if err != nil {
		return 0, err
	}
	return len(resp.Clips), nil
}

func (p *Pool) publishStatus(ctx context.Context, job *models.SliceJob, status models.SessionStatus, step string) {
	p.updates.PublishUpdate(ctx, job.SessionID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:     job.ID,
			SessionID: job.SessionID,
			Status:    status,
			StepName:  step,
		},
	})
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.SliceJob, clips int) {
	p.setJobStatus(ctx, job, models.JobStatusCompleted)
	p.setSessionStatus(ctx, job.SessionID, models.SessionStatusReady)

	p.updates.PublishUpdate(ctx, job.SessionID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:     job.ID,
			SessionID: job.SessionID,
			Clips:     clips,
		},
	})
	p.log.Info("slice job completed", "job_id", job.ID, "session_id", job.SessionID, "clips", clips)
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	var missing *services.MissingOriginError
	var noEvents *services.NoEventsError
	var notFound *services.NotFoundError
	return errors.As(err, &missing) || errors.As(err, &noEvents) || errors.As(err, &notFound)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.SliceJob, err error) {
	job.RetryCount++
	errMsg := err.Error()

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if !permanent(err) && job.RetryCount < maxRetries {
		p.log.Warn("slice job failed, retrying", "job_id", job.ID, "attempt", job.RetryCount, "error", errMsg)
		p.setJobStatus(ctx, job, models.JobStatusPending)
		p.recordJobError(ctx, job, errMsg)

		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		p.requeue(job, backoff)
		return
	}

	p.log.Error("slice job failed permanently", "job_id", job.ID, "session_id", job.SessionID, "error", errMsg)
	p.setJobStatus(ctx, job, models.JobStatusFailed)
	p.recordJobError(ctx, job, errMsg)
	p.setSessionStatus(ctx, job.SessionID, models.SessionStatusFailed)

	p.updates.PublishUpdate(ctx, job.SessionID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			SessionID:    job.SessionID,
			ErrorCode:    errorCode(err),
			ErrorMessage: errMsg,
		},
	})
}

func (p *Pool) requeueAfter(job *models.SliceJob, backoff time.Duration) {
	jobBytes, _ := json.Marshal(job)
	time.AfterFunc(backoff, func() {
		if err := p.redis.LPush(context.Background(), services.SliceQueue, string(jobBytes)).Err(); err != nil {
			p.log.Error("failed to requeue slice job", "job_id", job.ID, "error", err)
		}
	})
}

// Store failures are logged and the job carries on; the websocket update still reaches staff.

func (p *Pool) setJobStatus(ctx context.Context, job *models.SliceJob, status models.JobStatus) {
	if err := p.jobs.UpdateStatus(ctx, job.ID, status); err != nil {
		p.log.Error("failed to update job status", "job_id", job.ID, "status", status, "error", err)
	}
}

func (p *Pool) recordJobError(ctx context.Context, job *models.SliceJob, errMsg string) {
	if err := p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount); err != nil {
		p.log.Error("failed to record job error", "job_id", job.ID, "error", err)
	}
}

func (p *Pool) setSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus) {
	if err := p.sessions.UpdateStatus(ctx, sessionID, status); err != nil {
		p.log.Error("failed to update session status", "session_id", sessionID, "status", status, "error", err)
	}
}

func errorCode(err error) string {
	var missing *services.MissingOriginError
	var noEvents *services.NoEventsError
	switch {
	case errors.As(err, &missing):
		return "MISSING_ORIGIN"
	case errors.As(err, &noEvents):
		return "NO_EVENTS"
	}
	return "JOB_FAILED"
}
