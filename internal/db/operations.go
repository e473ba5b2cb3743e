package db

import (
	"context"
	"database/sql"
	"fmt"
)

type FileOperations struct{}

func (o *FileOperations) InsertFile(ctx context.Context, f *UploadedFile) error {
	result, err := GetDB().ExecContext(ctx, InsertUploadedFile, f.UserID, f.FileName, f.FileSize)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get file id: %w", err)
	}
	f.ID = id
	return nil
}

func (o *FileOperations) ListFiles(ctx context.Context, userID int64) ([]*UploadedFile, error) {
	rows, err := GetDB().QueryContext(ctx, ListUploadedFilesByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*UploadedFile
	for rows.Next() {
		f := &UploadedFile{}
		if err := rows.Scan(&f.ID, &f.UserID, &f.FileName, &f.FileSize, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetFileByIndex resolves a 1-based position in the user's listing,
// which is how files are addressed from the list view. Returns
// sql.ErrNoRows when the position is out of range.
func (o *FileOperations) GetFileByIndex(ctx context.Context, userID int64, index int) (*UploadedFile, error) {
	if index < 1 {
		return nil, sql.ErrNoRows
	}
	f := &UploadedFile{}
	err := GetDB().QueryRowContext(ctx, GetUploadedFileByIndex, userID, index-1).
		Scan(&f.ID, &f.UserID, &f.FileName, &f.FileSize, &f.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get file by index: %w", err)
	}
	return f, nil
}

func (o *FileOperations) SumFileSizes(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := GetDB().QueryRowContext(ctx, SumUploadedFileSizesByUser, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum file sizes: %w", err)
	}
	return total, nil
}

func (o *FileOperations) DeleteFile(ctx context.Context, id, userID int64) error {
	result, err := GetDB().ExecContext(ctx, DeleteUploadedFileByID, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (o *FileOperations) DeleteFiles(ctx context.Context, userID int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteUploadedFilesByUser, userID)
	if err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return nil
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{}
	err := GetDB().QueryRowContext(ctx, GetSettingByKey, key).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string) error {
	_, err := GetDB().ExecContext(ctx, UpsertSetting, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

var (
	Files    = &FileOperations{}
	Settings = &SettingsOperations{}
)
