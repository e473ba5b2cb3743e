package db

import (
	"context"

	"github.com/orrn/bundler/internal/core"
)

// RequestStore adapts the uploaded_files operations to the narrow
// interfaces the admission/pipeline core consumes.
type RequestStore struct{}

func NewRequestStore() *RequestStore {
	return &RequestStore{}
}

func (s *RequestStore) ListFiles(ctx context.Context, userID int64) ([]*core.FileEntry, error) {
	files, err := Files.ListFiles(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]*core.FileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, &core.FileEntry{
			ID:        f.ID,
			UserID:    f.UserID,
			Name:      f.FileName,
			SizeBytes: f.FileSize,
		})
	}
	return entries, nil
}

func (s *RequestStore) DeleteFiles(ctx context.Context, userID int64) error {
	return Files.DeleteFiles(ctx, userID)
}

func (s *RequestStore) SumFileSizes(ctx context.Context, userID int64) (int64, error) {
	return Files.SumFileSizes(ctx, userID)
}
