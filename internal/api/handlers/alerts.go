package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
	"github.com/opswatch/opswatch-backend-go/pkg/utils"
)

// GetAlerts lists alerts, filterable by status, severity and rule.
func (h *Handlers) GetAlerts(c *gin.Context) {
	filter := repositories.AlertFilter{
		Status:   models.AlertStatus(c.Query("status")),
		Severity: models.Severity(c.Query("severity")),
		Limit:    50,
	}
	if ruleID := c.Query("rule_id"); ruleID != "" {
		id, err := strconv.ParseInt(ruleID, 10, 64)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid rule_id filter")
			return
		}
		filter.RuleID = id
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			utils.SendError(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = n
	}
	if offset := c.Query("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			utils.SendError(c, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = n
	}

	list, err := h.repos.Alert.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list alerts")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list alerts")
		return
	}
	utils.SendSuccessWithMeta(c, list, gin.H{"count": len(list)})
}

// GetAlert returns one alert.
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, err := h.repos.Alert.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendError(c, http.StatusNotFound, "Alert not found")
		return
	}
	utils.SendSuccess(c, alert)
}

// AcknowledgeAlert marks an alert acknowledged, halting escalation.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	var body struct {
		User string `json:"user" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Acknowledging user is required")
		return
	}

	alert, err := h.alerts.Acknowledge(c.Request.Context(), c.Param("id"), body.User)
	if err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, alert)
}

// ResolveAlert closes an alert by operator action.
func (h *Handlers) ResolveAlert(c *gin.Context) {
	alert, err := h.alerts.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, alert)
}

// EscalateAlert advances an alert one escalation level manually.
func (h *Handlers) EscalateAlert(c *gin.Context) {
	var body struct {
		User string `json:"user" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Escalating user is required")
		return
	}

	alert, err := h.escalation.EscalateManual(c.Request.Context(), c.Param("id"), body.User)
	if err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, alert)
}

// GetEscalationHistory lists an alert's escalation transitions.
func (h *Handlers) GetEscalationHistory(c *gin.Context) {
	history, err := h.repos.EscalationHistory.ListByAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list escalation history")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list escalation history")
		return
	}
	utils.SendSuccess(c, history)
}

// GetAlertRemediations lists remediation tasks for an alert.
func (h *Handlers) GetAlertRemediations(c *gin.Context) {
	tasks, err := h.repos.Remediation.ListByAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list alert remediations")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list alert remediations")
		return
	}
	utils.SendSuccess(c, tasks)
}
