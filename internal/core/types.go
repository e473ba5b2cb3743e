package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateDelivered JobState = "delivered"
	JobStateFailed    JobState = "failed"
)

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

// Job is one user's request to bundle their registered files into an
// archive. Jobs live in memory for the duration of the request; the
// record store is the system of record for files, not jobs.
type Job struct {
	ID          string
	UserID      int64
	ArchiveName string
	State       JobState
	EnqueuedAt  time.Time
	Error       string
}

type FileEntry struct {
	ID        int64
	UserID    int64
	Name      string
	SizeBytes int64
}

var (
	ErrDuplicateRequest   = errors.New("a bundle request for this user is already running or queued")
	ErrNoFilesAvailable   = errors.New("no files registered for bundling")
	ErrQuotaExceeded      = errors.New("storage quota exceeded")
	ErrInvalidArchiveName = errors.New("invalid archive name")
	ErrDeliveryFailed     = errors.New("archive delivery failed")
)

// RequestStore is the record store holding per-user file metadata.
type RequestStore interface {
	ListFiles(ctx context.Context, userID int64) ([]*FileEntry, error)
	DeleteFiles(ctx context.Context, userID int64) error
}

// QuotaStore answers how many bytes a user's registered files occupy.
type QuotaStore interface {
	SumFileSizes(ctx context.Context, userID int64) (int64, error)
}

// DeliveryChannel transports a finished archive to the requesting client.
type DeliveryChannel interface {
	Send(ctx context.Context, userID int64, archiveName string, archive io.Reader, size int64) error
}

type PackResult struct {
	ArchivePath string
	Packed      int
	Skipped     int
	SizeBytes   int64
}

// ArchivePacker writes the selected entries into a single archive under
// stagingDir. Entries whose content is missing are skipped, not fatal.
type ArchivePacker interface {
	Pack(ctx context.Context, stagingDir, archiveName string, entries []*FileEntry) (PackResult, error)
}

// Pipeline executes an admitted job and reports back through Completer.
type Pipeline interface {
	Preflight(ctx context.Context, userID int64) error
	Run(job *Job)
}

// Completer frees the job's admission slot and promotes queued work.
type Completer interface {
	Complete(job *Job, outcome Outcome)
}

// ValidateArchiveName rejects labels that are not a single safe path
// component. The archive is written to disk under this name, so anything
// that could escape the staging directory is refused.
func ValidateArchiveName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidArchiveName
	}
	if len(name) > 128 {
		return ErrInvalidArchiveName
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidArchiveName
	}
	return nil
}
