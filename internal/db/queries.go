package db

const (
	InsertUploadedFile = `
		INSERT INTO uploaded_files (user_id, file_name, file_size)
		VALUES (?, ?, ?)
	`

	ListUploadedFilesByUser = `
		SELECT id, user_id, file_name, file_size, created_at
		FROM uploaded_files WHERE user_id = ? ORDER BY id ASC
	`

	GetUploadedFileByIndex = `
		SELECT id, user_id, file_name, file_size, created_at
		FROM uploaded_files WHERE user_id = ? ORDER BY id ASC
		LIMIT 1 OFFSET ?
	`

	SumUploadedFileSizesByUser = `
		SELECT COALESCE(SUM(file_size), 0) FROM uploaded_files WHERE user_id = ?
	`

	DeleteUploadedFileByID = `
		DELETE FROM uploaded_files WHERE id = ? AND user_id = ?
	`

	DeleteUploadedFilesByUser = `DELETE FROM uploaded_files WHERE user_id = ?`
)

const (
	GetSettingByKey = `SELECT key, value, updated_at FROM settings WHERE key = ?`

	UpsertSetting = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
)
