package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	"github.com/opswatch/opswatch-backend-go/pkg/utils"
)

// Health reports process and database liveness.
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	dbStatus := "connected"
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		status = "degraded"
		dbStatus = "error: " + err.Error()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats summarizes the engine's current workload for dashboards.
func (h *Handlers) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	firing, err := h.repos.Alert.List(ctx, repositories.AlertFilter{Status: models.AlertFiring})
	if err != nil {
		h.logger.WithError(err).Error("Failed to gather stats")
		utils.SendError(c, http.StatusInternalServerError, "Failed to gather stats")
		return
	}
	acked, err := h.repos.Alert.List(ctx, repositories.AlertFilter{Status: models.AlertAcknowledged})
	if err != nil {
		h.logger.WithError(err).Error("Failed to gather stats")
		utils.SendError(c, http.StatusInternalServerError, "Failed to gather stats")
		return
	}
	pendingTasks, err := h.repos.Remediation.List(ctx, models.RemediationPending, 0, 0)
	if err != nil {
		h.logger.WithError(err).Error("Failed to gather stats")
		utils.SendError(c, http.StatusInternalServerError, "Failed to gather stats")
		return
	}

	bySeverity := map[models.Severity]int{}
	for _, alert := range firing {
		bySeverity[alert.Severity]++
	}

	utils.SendSuccess(c, gin.H{
		"alerts": gin.H{
			"firing":       len(firing),
			"acknowledged": len(acked),
			"by_severity":  bySeverity,
		},
		"remediation": gin.H{
			"pending_approval": len(pendingTasks),
		},
		"degraded_rules": h.evaluator.Degraded(),
		"websocket":      h.hub.Stats(),
	})
}

// TriggerEvaluation runs one evaluation pass outside the schedule.
func (h *Handlers) TriggerEvaluation(c *gin.Context) {
	go h.evaluator.Tick()
	utils.SendSuccess(c, gin.H{"triggered": true})
}
