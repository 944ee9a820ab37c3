package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
	"github.com/opswatch/opswatch-backend-go/pkg/utils"
)

// GetRemediationTasks lists remediation tasks, optionally by status.
func (h *Handlers) GetRemediationTasks(c *gin.Context) {
	status := models.RemediationStatus(c.Query("status"))
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			utils.SendError(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	tasks, err := h.repos.Remediation.List(c.Request.Context(), status, limit, 0)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list remediation tasks")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list remediation tasks")
		return
	}
	utils.SendSuccessWithMeta(c, tasks, gin.H{"count": len(tasks)})
}

// GetRemediationTask returns one task with its command executions.
func (h *Handlers) GetRemediationTask(c *gin.Context) {
	task, err := h.repos.Remediation.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusNotFound, "Remediation task not found")
		return
	}
	utils.SendSuccess(c, task)
}

// ApproveRemediationTask approves a pending task for execution.
func (h *Handlers) ApproveRemediationTask(c *gin.Context) {
	var body struct {
		User string `json:"user" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Approving user is required")
		return
	}

	if err := h.orchestrator.Approve(c.Request.Context(), c.Param("id"), body.User); err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"approved": c.Param("id")})
}

// RejectRemediationTask rejects a pending task. Terminal.
func (h *Handlers) RejectRemediationTask(c *gin.Context) {
	var body struct {
		User string `json:"user" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Rejecting user is required")
		return
	}

	if err := h.orchestrator.Reject(c.Request.Context(), c.Param("id"), body.User); err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"rejected": c.Param("id")})
}

// RetryRemediationTask re-runs a failed task once, from the start.
func (h *Handlers) RetryRemediationTask(c *gin.Context) {
	if err := h.orchestrator.Retry(c.Request.Context(), c.Param("id")); err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"queued": c.Param("id")})
}

// CancelRemediationTask stops an executing task. Already-applied
// commands are not rolled back.
func (h *Handlers) CancelRemediationTask(c *gin.Context) {
	if err := h.orchestrator.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"cancelled": c.Param("id")})
}

// ScanRemediationTasks queues every approved, non-executing task.
func (h *Handlers) ScanRemediationTasks(c *gin.Context) {
	queued, err := h.orchestrator.Scan(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Remediation scan failed")
		utils.SendError(c, http.StatusInternalServerError, "Remediation scan failed")
		return
	}
	utils.SendSuccess(c, gin.H{"queued": queued})
}

// GetRunbooks lists the runbook catalog.
func (h *Handlers) GetRunbooks(c *gin.Context) {
	utils.SendSuccess(c, h.catalog.All())
}
