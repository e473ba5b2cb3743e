package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultConcurrencyCap = 5

// SubmitResult reports how a request was admitted. It carries values
// copied while the admission lock was held, never the live job: the
// pipeline goroutine owns the job once Submit returns. Position is the
// 1-based queue position and only meaningful when Admitted is false.
type SubmitResult struct {
	JobID    string
	State    JobState
	Admitted bool
	Position int
}

type QueuedJob struct {
	JobID       string    `json:"job_id"`
	UserID      int64     `json:"user_id"`
	ArchiveName string    `json:"archive_name"`
	Position    int       `json:"position"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Snapshot is a read-only, eventually consistent view of the admission
// state. Positions may already be stale by the time the caller sees them.
type Snapshot struct {
	ActiveUsers []int64     `json:"active_users"`
	Queue       []QueuedJob `json:"queue"`
}

// AdmissionController decides whether a bundle request runs now or
// waits. It owns the set of active users and the FIFO wait queue, and
// is the only component that mutates them. All bookkeeping happens in
// one critical section per call; the pipeline itself runs outside the
// lock so long transfers never block other users' submissions.
type AdmissionController struct {
	mu       sync.Mutex
	cap      int
	active   map[int64]*Job
	waiting  []*Job
	pipeline Pipeline
}

func NewAdmissionController(concurrencyCap int, pipeline Pipeline) *AdmissionController {
	if concurrencyCap < 1 {
		concurrencyCap = DefaultConcurrencyCap
	}
	return &AdmissionController{
		cap:      concurrencyCap,
		active:   make(map[int64]*Job),
		pipeline: pipeline,
	}
}

func (c *AdmissionController) ConcurrencyCap() int {
	return c.cap
}

// Submit admits the request immediately if a slot is free, otherwise
// appends it to the wait queue. A user may have at most one request
// running or waiting; a second submission fails with ErrDuplicateRequest.
// ErrNoFilesAvailable, ErrQuotaExceeded and ErrInvalidArchiveName are
// decided here, before any job is created.
func (c *AdmissionController) Submit(ctx context.Context, userID int64, archiveName string) (*SubmitResult, error) {
	if err := ValidateArchiveName(archiveName); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.inFlightLocked(userID) {
		c.mu.Unlock()
		return nil, ErrDuplicateRequest
	}
	c.mu.Unlock()

	// Preflight hits the record store, so it runs outside the lock.
	if err := c.pipeline.Preflight(ctx, userID); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          uuid.NewString(),
		UserID:      userID,
		ArchiveName: archiveName,
		EnqueuedAt:  time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: a concurrent Submit for the same user may have won the
	// slot while we were preflighting.
	if c.inFlightLocked(userID) {
		return nil, ErrDuplicateRequest
	}

	if len(c.active) < c.cap {
		job.State = JobStateRunning
		c.active[userID] = job
		go c.pipeline.Run(job)
		logrus.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"user_id": userID,
			"archive": archiveName,
		}).Info("bundle job admitted")
		return &SubmitResult{JobID: job.ID, State: job.State, Admitted: true}, nil
	}

	job.State = JobStateQueued
	c.waiting = append(c.waiting, job)
	position := len(c.waiting)
	logrus.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"user_id":  userID,
		"position": position,
	}).Info("bundle job queued")
	return &SubmitResult{JobID: job.ID, State: job.State, Position: position}, nil
}

// Complete frees the job's slot and promotes queued jobs in FIFO order
// until the queue is empty or the cap is reached. This is the only path
// by which a queued job starts running. Called exactly once per admitted
// job by the pipeline.
func (c *AdmissionController) Complete(job *Job, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch outcome {
	case OutcomeDelivered:
		job.State = JobStateDelivered
	default:
		job.State = JobStateFailed
	}
	delete(c.active, job.UserID)

	logrus.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"user_id": job.UserID,
		"outcome": string(outcome),
	}).Info("bundle job finished")

	for len(c.active) < c.cap && len(c.waiting) > 0 {
		next := c.waiting[0]
		c.waiting = c.waiting[1:]
		next.State = JobStateRunning
		c.active[next.UserID] = next
		go c.pipeline.Run(next)
		logrus.WithFields(logrus.Fields{
			"job_id":  next.ID,
			"user_id": next.UserID,
		}).Info("bundle job promoted from queue")
	}
}

// Cancel removes the user's queued request. It is idempotent: a user
// with no queued request, or whose job is already running, is a no-op.
// Running jobs are never preempted.
func (c *AdmissionController) Cancel(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, job := range c.waiting {
		if job.UserID == userID {
			c.waiting = append(c.waiting[:i], c.waiting[i+1:]...)
			job.State = JobStateFailed
			job.Error = "cancelled while queued"
			logrus.WithFields(logrus.Fields{
				"job_id":  job.ID,
				"user_id": userID,
			}).Info("queued bundle job cancelled")
			return true
		}
	}
	return false
}

func (c *AdmissionController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ActiveUsers: make([]int64, 0, len(c.active)),
		Queue:       make([]QueuedJob, 0, len(c.waiting)),
	}
	for userID := range c.active {
		snap.ActiveUsers = append(snap.ActiveUsers, userID)
	}
	sort.Slice(snap.ActiveUsers, func(i, j int) bool {
		return snap.ActiveUsers[i] < snap.ActiveUsers[j]
	})
	for i, job := range c.waiting {
		snap.Queue = append(snap.Queue, QueuedJob{
			JobID:       job.ID,
			UserID:      job.UserID,
			ArchiveName: job.ArchiveName,
			Position:    i + 1,
			EnqueuedAt:  job.EnqueuedAt,
		})
	}
	return snap
}

func (c *AdmissionController) inFlightLocked(userID int64) bool {
	if _, ok := c.active[userID]; ok {
		return true
	}
	for _, job := range c.waiting {
		if job.UserID == userID {
			return true
		}
	}
	return false
}
