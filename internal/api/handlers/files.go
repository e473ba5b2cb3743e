package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/orrn/bundler/internal/core"
	"github.com/orrn/bundler/internal/db"
)

// FileHandler manages the per-user file registry: upload, list, delete
// by list position, clear. Uploaded content lives under filesRoot, one
// directory per user; the record store keeps the relative path and size.
type FileHandler struct {
	filesRoot string
	quota     *core.QuotaLedger
}

func NewFileHandler(filesRoot string, quota *core.QuotaLedger) *FileHandler {
	return &FileHandler{
		filesRoot: filesRoot,
		quota:     quota,
	}
}

type FileResponse struct {
	Index     int       `json:"index"`
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	Size      string    `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type FileListResponse struct {
	Files      []FileResponse `json:"files"`
	Count      int            `json:"count"`
	TotalBytes int64          `json:"total_bytes"`
	Total      string         `json:"total"`
}

type QuotaResponse struct {
	UserID    int64  `json:"user_id"`
	UsedBytes int64  `json:"used_bytes"`
	Used      string `json:"used"`
	CapBytes  int64  `json:"cap_bytes"`
	Cap       string `json:"cap"`
}

func userIDParam(c *gin.Context) (int64, bool) {
	raw := c.Query("user_id")
	if raw == "" {
		raw = c.PostForm("user_id")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid user_id is required"})
		return 0, false
	}
	return userID, true
}

func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}

	userDir := filepath.Join(h.filesRoot, strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(userDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare storage"})
		return
	}

	if err := c.SaveUploadedFile(header, filepath.Join(userDir, name)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	file := &db.UploadedFile{
		UserID:   userID,
		FileName: filepath.Join(strconv.FormatInt(userID, 10), name),
		FileSize: header.Size,
	}
	if err := db.Files.InsertFile(c.Request.Context(), file); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      file.ID,
		"name":    name,
		"size":    humanize.Bytes(uint64(header.Size)),
		"message": fmt.Sprintf("File %s registered (%s)", name, humanize.Bytes(uint64(header.Size))),
	})
}

func (h *FileHandler) List(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	files, err := db.Files.ListFiles(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}

	resp := FileListResponse{Files: make([]FileResponse, 0, len(files))}
	for i, f := range files {
		resp.Files = append(resp.Files, FileResponse{
			Index:     i + 1,
			Name:      filepath.Base(f.FileName),
			SizeBytes: f.FileSize,
			Size:      humanize.Bytes(uint64(f.FileSize)),
			CreatedAt: f.CreatedAt,
		})
		resp.TotalBytes += f.FileSize
	}
	resp.Count = len(resp.Files)
	resp.Total = humanize.Bytes(uint64(resp.TotalBytes))

	c.JSON(http.StatusOK, resp)
}

// Delete removes a single file by its 1-based position in the current
// listing, matching how users refer to files from the list view.
func (h *FileHandler) Delete(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid file number is required"})
		return
	}

	file, err := db.Files.GetFileByIndex(c.Request.Context(), userID, index)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid file number"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up file"})
		return
	}

	if err := db.Files.DeleteFile(c.Request.Context(), file.ID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete file"})
		return
	}

	h.removeContent(file.FileName)

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("File %d has been deleted", index),
	})
}

func (h *FileHandler) Clear(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	files, err := db.Files.ListFiles(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}

	if err := db.Files.DeleteFiles(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear files"})
		return
	}

	for _, f := range files {
		h.removeContent(f.FileName)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("All %d registered files have been cleared", len(files)),
	})
}

func (h *FileHandler) Quota(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	used, err := h.quota.UsedBytes(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read quota"})
		return
	}

	c.JSON(http.StatusOK, QuotaResponse{
		UserID:    userID,
		UsedBytes: used,
		Used:      humanize.Bytes(uint64(used)),
		CapBytes:  h.quota.CapBytes(),
		Cap:       humanize.Bytes(uint64(h.quota.CapBytes())),
	})
}

func (h *FileHandler) removeContent(relPath string) {
	path := filepath.Join(h.filesRoot, relPath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logrus.WithField("path", path).WithError(err).Warn("failed to remove stored file")
	}
}
