package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/bundler/internal/core"
)

// BundleHandler exposes the admission-facing API: submit a bundle
// request, cancel a queued one, and view the admission state.
type BundleHandler struct {
	admission *core.AdmissionController
}

func NewBundleHandler(admission *core.AdmissionController) *BundleHandler {
	return &BundleHandler{admission: admission}
}

type SubmitBundleRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

type SubmitBundleResponse struct {
	JobID    string `json:"job_id"`
	State    string `json:"state"`
	Position int    `json:"position,omitempty"`
	Message  string `json:"message"`
}

type StatusResponse struct {
	ConcurrencyCap int           `json:"concurrency_cap"`
	Snapshot       core.Snapshot `json:"snapshot"`
}

func (h *BundleHandler) Submit(c *gin.Context) {
	var req SubmitBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and name are required"})
		return
	}
	if req.UserID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "valid user_id is required"})
		return
	}

	result, err := h.admission.Submit(c.Request.Context(), req.UserID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidArchiveName):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Archive name must be a plain name without path separators"})
		case errors.Is(err, core.ErrDuplicateRequest):
			c.JSON(http.StatusConflict, gin.H{"error": "You already have a bundle request running or queued"})
		case errors.Is(err, core.ErrNoFilesAvailable):
			c.JSON(http.StatusNotFound, gin.H{"error": "No files found for bundling"})
		case errors.Is(err, core.ErrQuotaExceeded):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Insufficient storage space. Please delete some files first"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit bundle request"})
		}
		return
	}

	if result.Admitted {
		c.JSON(http.StatusAccepted, SubmitBundleResponse{
			JobID:   result.JobID,
			State:   string(result.State),
			Message: fmt.Sprintf("Bundling %s.zip now", req.Name),
		})
		return
	}

	c.JSON(http.StatusAccepted, SubmitBundleResponse{
		JobID:    result.JobID,
		State:    string(result.State),
		Position: result.Position,
		Message:  fmt.Sprintf("All slots are busy, you are number %d in the queue", result.Position),
	})
}

func (h *BundleHandler) Cancel(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	if h.admission.Cancel(userID) {
		c.JSON(http.StatusOK, gin.H{"message": "Queued bundle request cancelled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "No queued bundle request to cancel"})
}

func (h *BundleHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		ConcurrencyCap: h.admission.ConcurrencyCap(),
		Snapshot:       h.admission.Snapshot(),
	})
}
