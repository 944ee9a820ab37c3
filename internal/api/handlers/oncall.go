package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/pkg/utils"
)

// GetOnCallSchedules lists schedules, optionally for one group.
func (h *Handlers) GetOnCallSchedules(c *gin.Context) {
	ctx := c.Request.Context()

	if groupID := c.Query("group_id"); groupID != "" {
		schedules, err := h.repos.OnCall.ListByGroup(ctx, groupID)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list on-call schedules")
			utils.SendError(c, http.StatusInternalServerError, "Failed to list on-call schedules")
			return
		}
		utils.SendSuccess(c, schedules)
		return
	}

	schedules, err := h.repos.OnCall.GetAll(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list on-call schedules")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list on-call schedules")
		return
	}
	utils.SendSuccess(c, schedules)
}

// CreateOnCallSchedule adds a rotation entry. Overlaps within the
// group are reported in the response, not rejected.
func (h *Handlers) CreateOnCallSchedule(c *gin.Context) {
	var schedule models.OnCallSchedule
	if err := c.ShouldBindJSON(&schedule); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid schedule payload: "+err.Error())
		return
	}
	if schedule.GroupID == "" || schedule.UserID == "" {
		utils.SendError(c, http.StatusBadRequest, "group_id and user_id are required")
		return
	}
	if !schedule.EndDate.After(schedule.StartDate) {
		utils.SendError(c, http.StatusBadRequest, "end_date must be after start_date")
		return
	}

	if err := h.repos.OnCall.Create(c.Request.Context(), &schedule); err != nil {
		h.logger.WithError(err).Error("Failed to create on-call schedule")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create on-call schedule")
		return
	}

	conflicts, err := h.oncall.Conflicts(c.Request.Context(), schedule.GroupID)
	if err != nil {
		h.logger.WithError(err).Warn("Conflict check failed after schedule create")
		utils.SendSuccess(c, schedule)
		return
	}
	utils.SendSuccessWithMeta(c, schedule, gin.H{"conflicts": conflicts})
}

// DeleteOnCallSchedule removes a rotation entry.
func (h *Handlers) DeleteOnCallSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid schedule ID")
		return
	}

	if err := h.repos.OnCall.Delete(c.Request.Context(), id); err != nil {
		utils.SendError(c, http.StatusNotFound, "Schedule not found")
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}

// GetCurrentOnCall resolves who is on call for a group right now, or
// at an explicit ?at= RFC3339 time.
func (h *Handlers) GetCurrentOnCall(c *gin.Context) {
	groupID := c.Param("group")

	at := time.Now()
	if v := c.Query("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid at timestamp, want RFC3339")
			return
		}
		at = parsed
	}

	userID, err := h.oncall.Current(c.Request.Context(), groupID, at)
	if err != nil {
		h.logger.WithError(err).Error("On-call resolution failed")
		utils.SendError(c, http.StatusInternalServerError, "On-call resolution failed")
		return
	}
	utils.SendSuccess(c, gin.H{"group_id": groupID, "user_id": userID, "at": at})
}

// GetOnCallConflicts reports overlapping active schedules in a group.
func (h *Handlers) GetOnCallConflicts(c *gin.Context) {
	conflicts, err := h.oncall.Conflicts(c.Request.Context(), c.Param("group"))
	if err != nil {
		h.logger.WithError(err).Error("Conflict detection failed")
		utils.SendError(c, http.StatusInternalServerError, "Conflict detection failed")
		return
	}
	utils.SendSuccess(c, conflicts)
}
