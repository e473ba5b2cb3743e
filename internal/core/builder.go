package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ArchiveBuilder executes the pipeline for one admitted job: select the
// user's registered files, verify quota, pack them into one archive,
// hand it to the delivery channel, then clean up every local artifact
// and clear the user's records. It reports back exactly once through
// the bound Completer.
type ArchiveBuilder struct {
	store       RequestStore
	quota       *QuotaLedger
	packer      ArchivePacker
	delivery    DeliveryChannel
	filesRoot   string
	stagingRoot string
	completer   Completer
}

func NewArchiveBuilder(store RequestStore, quota *QuotaLedger, packer ArchivePacker, delivery DeliveryChannel, filesRoot, stagingRoot string) *ArchiveBuilder {
	return &ArchiveBuilder{
		store:       store,
		quota:       quota,
		packer:      packer,
		delivery:    delivery,
		filesRoot:   filesRoot,
		stagingRoot: stagingRoot,
	}
}

// Bind wires the admission controller back-reference. The controller
// needs the builder at construction time and vice versa, so this is a
// second wiring step rather than a constructor argument.
func (b *ArchiveBuilder) Bind(c Completer) {
	b.completer = c
}

// Preflight runs the no-files and quota checks without side effects.
// The admission controller calls it at submission time so those
// rejections reach the caller before a job is ever created.
func (b *ArchiveBuilder) Preflight(ctx context.Context, userID int64) error {
	_, _, err := b.selectEntries(ctx, userID)
	return err
}

// Run executes the pipeline for an admitted job and always finishes by
// calling Complete, whatever the outcome.
func (b *ArchiveBuilder) Run(job *Job) {
	ctx := context.Background()

	err := b.run(ctx, job)
	outcome := OutcomeDelivered
	if err != nil {
		outcome = OutcomeFailed
		job.Error = err.Error()
		logrus.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"user_id": job.UserID,
		}).WithError(err).Warn("bundle pipeline failed")
	}
	b.completer.Complete(job, outcome)
}

func (b *ArchiveBuilder) run(ctx context.Context, job *Job) error {
	entries, _, err := b.selectEntries(ctx, job.UserID)
	if err != nil {
		return err
	}

	staging, err := os.MkdirTemp(b.stagingRoot, "bundle-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			logrus.WithField("staging", staging).WithError(err).Error("failed to remove staging dir")
		}
	}()

	result, err := b.packer.Pack(ctx, staging, job.ArchiveName, entries)
	if err != nil {
		return fmt.Errorf("pack archive: %w", err)
	}
	if result.Skipped > 0 {
		logrus.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"user_id": job.UserID,
			"skipped": result.Skipped,
		}).Warn("entries skipped during packing")
	}
	if result.Packed == 0 {
		// Every row pointed at missing content. The rows are useless,
		// so the attempt still clears them.
		if clearErr := b.clearRecords(ctx, job, entries); clearErr != nil {
			logrus.WithField("job_id", job.ID).WithError(clearErr).Error("failed to clear records")
		}
		return ErrNoFilesAvailable
	}

	deliverErr := b.deliver(ctx, job, result)

	// Records are cleared after every attempt, delivered or not, so a
	// failed delivery never leaves the user unable to resubmit.
	clearErr := b.clearRecords(ctx, job, entries)

	if deliverErr != nil {
		return deliverErr
	}
	if clearErr != nil {
		return fmt.Errorf("clear records: %w", clearErr)
	}
	return nil
}

// selectEntries lists the user's files and runs the quota check. Both
// failures here are decided before any file is read or packed.
func (b *ArchiveBuilder) selectEntries(ctx context.Context, userID int64) ([]*FileEntry, int64, error) {
	entries, err := b.store.ListFiles(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	if len(entries) == 0 {
		return nil, 0, ErrNoFilesAvailable
	}

	var total int64
	for _, entry := range entries {
		total += entry.SizeBytes
	}

	exceeded, err := b.quota.WouldExceed(ctx, userID, total)
	if err != nil {
		return nil, 0, fmt.Errorf("quota check: %w", err)
	}
	if exceeded {
		return nil, 0, ErrQuotaExceeded
	}

	return entries, total, nil
}

func (b *ArchiveBuilder) deliver(ctx context.Context, job *Job, result PackResult) error {
	f, err := os.Open(result.ArchivePath)
	if err != nil {
		return fmt.Errorf("open packed archive: %w", err)
	}
	defer f.Close()

	if err := b.delivery.Send(ctx, job.UserID, filepath.Base(result.ArchivePath), f, result.SizeBytes); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// clearRecords removes the processed rows and their stored content so a
// repeated identical request does not reprocess them.
func (b *ArchiveBuilder) clearRecords(ctx context.Context, job *Job, entries []*FileEntry) error {
	if err := b.store.DeleteFiles(ctx, job.UserID); err != nil {
		return err
	}
	for _, entry := range entries {
		path := filepath.Join(b.filesRoot, entry.Name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logrus.WithField("path", path).WithError(err).Warn("failed to remove stored file")
		}
	}
	return nil
}
