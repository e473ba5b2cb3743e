package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPipeline admits everything by default and never completes jobs on
// its own, so tests drive Complete explicitly.
type stubPipeline struct {
	mu           sync.Mutex
	preflightErr error
	started      []*Job
}

func (p *stubPipeline) Preflight(ctx context.Context, userID int64) error {
	return p.preflightErr
}

func (p *stubPipeline) Run(job *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, job)
}

// jobFor waits for the user's job to reach the pipeline. Jobs are
// handed off on a fresh goroutine, so a just-admitted or just-promoted
// job may take a moment to arrive.
func (p *stubPipeline) jobFor(t *testing.T, userID int64) *Job {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		for _, job := range p.started {
			if job.UserID == userID {
				p.mu.Unlock()
				return job
			}
		}
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job for user %d never reached the pipeline", userID)
	return nil
}

// completingPipeline finishes every job the moment it starts, the way
// a fast production pipeline does.
type completingPipeline struct {
	completer Completer
}

func (p *completingPipeline) Preflight(ctx context.Context, userID int64) error {
	return nil
}

func (p *completingPipeline) Run(job *Job) {
	p.completer.Complete(job, OutcomeDelivered)
}

func TestValidateArchiveName(t *testing.T) {
	tests := map[string]struct {
		name    string
		wantErr bool
	}{
		"plain name":       {name: "holiday-photos", wantErr: false},
		"with spaces":      {name: "my files", wantErr: false},
		"empty":            {name: "", wantErr: true},
		"dot":              {name: ".", wantErr: true},
		"dot dot":          {name: "..", wantErr: true},
		"forward slash":    {name: "a/b", wantErr: true},
		"back slash":       {name: `a\b`, wantErr: true},
		"traversal":        {name: "../../etc/passwd", wantErr: true},
		"nul byte":         {name: "a\x00b", wantErr: true},
		"overlong":         {name: string(make([]byte, 200)), wantErr: true},
		"dots inside name": {name: "backup.2024.01", wantErr: false},
		"leading dot":      {name: ".hidden", wantErr: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := ValidateArchiveName(tc.name)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArchiveName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubmitAdmitsUpToCap(t *testing.T) {
	c := NewAdmissionController(2, &stubPipeline{})
	ctx := context.Background()

	r1, err := c.Submit(ctx, 1, "one")
	require.NoError(t, err)
	assert.True(t, r1.Admitted)
	assert.NotEmpty(t, r1.JobID)
	assert.Equal(t, JobStateRunning, r1.State)

	r2, err := c.Submit(ctx, 2, "two")
	require.NoError(t, err)
	assert.True(t, r2.Admitted)

	r3, err := c.Submit(ctx, 3, "three")
	require.NoError(t, err)
	assert.False(t, r3.Admitted)
	assert.Equal(t, 1, r3.Position)
	assert.Equal(t, JobStateQueued, r3.State)

	r4, err := c.Submit(ctx, 4, "four")
	require.NoError(t, err)
	assert.Equal(t, 2, r4.Position)

	snap := c.Snapshot()
	assert.Equal(t, []int64{1, 2}, snap.ActiveUsers)
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, int64(3), snap.Queue[0].UserID)
	assert.Equal(t, 1, snap.Queue[0].Position)
	assert.Equal(t, int64(4), snap.Queue[1].UserID)
	assert.Equal(t, 2, snap.Queue[1].Position)
}

func TestSubmitDuplicateRequest(t *testing.T) {
	c := NewAdmissionController(1, &stubPipeline{})
	ctx := context.Background()

	_, err := c.Submit(ctx, 1, "first")
	require.NoError(t, err)

	_, err = c.Submit(ctx, 1, "again")
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	// Queued users are rejected the same way.
	_, err = c.Submit(ctx, 2, "waiting")
	require.NoError(t, err)
	_, err = c.Submit(ctx, 2, "waiting-again")
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	snap := c.Snapshot()
	assert.Len(t, snap.ActiveUsers, 1)
	assert.Len(t, snap.Queue, 1)
}

func TestSubmitPreflightRejection(t *testing.T) {
	tests := map[string]struct {
		preflightErr error
	}{
		"no files": {preflightErr: ErrNoFilesAvailable},
		"quota":    {preflightErr: ErrQuotaExceeded},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := NewAdmissionController(2, &stubPipeline{preflightErr: tc.preflightErr})

			_, err := c.Submit(context.Background(), 1, "bundle")
			assert.ErrorIs(t, err, tc.preflightErr)

			// No job was created anywhere.
			snap := c.Snapshot()
			assert.Empty(t, snap.ActiveUsers)
			assert.Empty(t, snap.Queue)
		})
	}
}

func TestCompletePromotesInFIFOOrder(t *testing.T) {
	p := &stubPipeline{}
	c := NewAdmissionController(1, p)
	ctx := context.Background()

	rA, err := c.Submit(ctx, 10, "a")
	require.NoError(t, err)
	require.True(t, rA.Admitted)

	rB, err := c.Submit(ctx, 20, "b")
	require.NoError(t, err)
	rC, err := c.Submit(ctx, 30, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, rB.Position)
	assert.Equal(t, 2, rC.Position)

	jobA := p.jobFor(t, 10)
	c.Complete(jobA, OutcomeDelivered)
	assert.Equal(t, JobStateDelivered, jobA.State)

	snap := c.Snapshot()
	assert.Equal(t, []int64{20}, snap.ActiveUsers)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, int64(30), snap.Queue[0].UserID)
	assert.Equal(t, 1, snap.Queue[0].Position)

	// Failure frees the slot just like success.
	jobB := p.jobFor(t, 20)
	assert.Equal(t, JobStateRunning, jobB.State)
	c.Complete(jobB, OutcomeFailed)
	assert.Equal(t, JobStateFailed, jobB.State)

	snap = c.Snapshot()
	assert.Equal(t, []int64{30}, snap.ActiveUsers)
	assert.Empty(t, snap.Queue)

	c.Complete(p.jobFor(t, 30), OutcomeDelivered)
	snap = c.Snapshot()
	assert.Empty(t, snap.ActiveUsers)
	assert.Empty(t, snap.Queue)
}

func TestCapTwoScenario(t *testing.T) {
	p := &stubPipeline{}
	c := NewAdmissionController(2, p)
	ctx := context.Background()

	x, err := c.Submit(ctx, 1, "x")
	require.NoError(t, err)
	assert.True(t, x.Admitted)

	y, err := c.Submit(ctx, 2, "y")
	require.NoError(t, err)
	assert.True(t, y.Admitted)

	z, err := c.Submit(ctx, 3, "z")
	require.NoError(t, err)
	assert.False(t, z.Admitted)
	assert.Equal(t, 1, z.Position)

	c.Complete(p.jobFor(t, 1), OutcomeDelivered)

	snap := c.Snapshot()
	assert.Equal(t, []int64{2, 3}, snap.ActiveUsers)
	assert.Empty(t, snap.Queue)
	assert.Equal(t, JobStateRunning, p.jobFor(t, 3).State)
}

func TestCancel(t *testing.T) {
	c := NewAdmissionController(1, &stubPipeline{})
	ctx := context.Background()

	running, err := c.Submit(ctx, 1, "running")
	require.NoError(t, err)
	require.True(t, running.Admitted)
	queued, err := c.Submit(ctx, 2, "queued")
	require.NoError(t, err)
	require.False(t, queued.Admitted)

	// Running jobs are never preempted.
	assert.False(t, c.Cancel(1))

	assert.True(t, c.Cancel(2))

	// Idempotent.
	assert.False(t, c.Cancel(2))
	assert.False(t, c.Cancel(99))

	snap := c.Snapshot()
	assert.Equal(t, []int64{1}, snap.ActiveUsers)
	assert.Empty(t, snap.Queue)

	// A cancelled user may submit again immediately.
	again, err := c.Submit(ctx, 2, "queued-again")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Position)
}

func TestConcurrentSubmitsNeverExceedCap(t *testing.T) {
	const maxActive = 5
	const users = 50

	c := NewAdmissionController(maxActive, &stubPipeline{})

	var wg sync.WaitGroup
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := c.Submit(context.Background(), userID, "bundle")
			assert.NoError(t, err)
		}(int64(i))
	}
	wg.Wait()

	snap := c.Snapshot()
	assert.Len(t, snap.ActiveUsers, maxActive)
	assert.Len(t, snap.Queue, users-maxActive)

	// No user appears twice across active and queue.
	seen := make(map[int64]bool)
	for _, u := range snap.ActiveUsers {
		assert.False(t, seen[u])
		seen[u] = true
	}
	for _, q := range snap.Queue {
		assert.False(t, seen[q.UserID])
		seen[q.UserID] = true
	}
	assert.Len(t, seen, users)
}

func TestCompleteDrainsQueueThroughPromotions(t *testing.T) {
	p := &stubPipeline{}
	c := NewAdmissionController(3, p)
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		_, err := c.Submit(ctx, i, "bundle")
		require.NoError(t, err)
	}

	// Complete everything in admission order; the queue must drain in
	// FIFO order and the cap must hold at every step.
	order := []int64{}
	for completed := 0; completed < 10; {
		snap := c.Snapshot()
		assert.LessOrEqual(t, len(snap.ActiveUsers), 3)
		require.NotEmpty(t, snap.ActiveUsers)

		u := snap.ActiveUsers[0]
		for _, seenBefore := range order {
			require.NotEqual(t, seenBefore, u)
		}
		order = append(order, u)
		c.Complete(p.jobFor(t, u), OutcomeDelivered)
		completed++
	}

	snap := c.Snapshot()
	assert.Empty(t, snap.ActiveUsers)
	assert.Empty(t, snap.Queue)
}

func TestSubmitResultStableUnderImmediateCompletion(t *testing.T) {
	p := &completingPipeline{}
	c := NewAdmissionController(2, p)
	p.completer = c

	// Jobs finish as fast as they start, so submissions constantly race
	// against completions and promotions. The returned result must hold
	// the values from the moment of admission regardless.
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			r, err := c.Submit(context.Background(), userID, "bundle")
			if !assert.NoError(t, err) {
				return
			}
			assert.NotEmpty(t, r.JobID)
			if r.Admitted {
				assert.Equal(t, JobStateRunning, r.State)
			} else {
				assert.Equal(t, JobStateQueued, r.State)
				assert.Positive(t, r.Position)
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		snap := c.Snapshot()
		return len(snap.ActiveUsers) == 0 && len(snap.Queue) == 0
	}, time.Second, 5*time.Millisecond)
}
