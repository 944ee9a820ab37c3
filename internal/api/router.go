package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/api/handlers"
	"github.com/opswatch/opswatch-backend-go/internal/api/middleware"
	"github.com/opswatch/opswatch-backend-go/internal/core/metrics"
	"github.com/opswatch/opswatch-backend-go/internal/websocket"
)

// NewRouter assembles the query surface exposed to the presentation
// layer.
func NewRouter(h *handlers.Handlers, hub *websocket.Hub, allowedOrigins []string, logger *logrus.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RecoveryMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.ErrorResponseMiddleware(logger))
	r.Use(middleware.CORSMiddleware(allowedOrigins))
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", websocket.Handler(hub))

	v1 := r.Group("/api/v1")
	{
		rules := v1.Group("/rules")
		{
			rules.GET("", h.GetRules)
			rules.POST("", h.CreateRule)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
		}

		escalations := v1.Group("/escalation-rules")
		{
			escalations.GET("", h.GetEscalationRules)
			escalations.POST("", h.CreateEscalationRule)
			escalations.PUT("/:id", h.UpdateEscalationRule)
			escalations.DELETE("/:id", h.DeleteEscalationRule)
		}

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.GetAlerts)
			alerts.GET("/:id", h.GetAlert)
			alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
			alerts.POST("/:id/resolve", h.ResolveAlert)
			alerts.POST("/:id/escalate", h.EscalateAlert)
			alerts.GET("/:id/history", h.GetEscalationHistory)
			alerts.GET("/:id/remediations", h.GetAlertRemediations)
		}

		channels := v1.Group("/channels")
		{
			channels.GET("", h.GetChannels)
			channels.POST("", h.CreateChannel)
			channels.PUT("/:id", h.UpdateChannel)
			channels.DELETE("/:id", h.DeleteChannel)
			channels.POST("/:id/test", h.TestChannel)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.GetNotificationLogs)
			notifications.POST("/:id/retry", h.RetryNotification)
		}

		silences := v1.Group("/silence-windows")
		{
			silences.GET("", h.GetSilenceWindows)
			silences.POST("", h.CreateSilenceWindow)
			silences.PUT("/:id", h.UpdateSilenceWindow)
			silences.DELETE("/:id", h.DeleteSilenceWindow)
		}

		remediation := v1.Group("/remediation")
		{
			remediation.GET("/tasks", h.GetRemediationTasks)
			remediation.GET("/tasks/:id", h.GetRemediationTask)
			remediation.POST("/tasks/:id/approve", h.ApproveRemediationTask)
			remediation.POST("/tasks/:id/reject", h.RejectRemediationTask)
			remediation.POST("/tasks/:id/retry", h.RetryRemediationTask)
			remediation.POST("/tasks/:id/cancel", h.CancelRemediationTask)
			remediation.POST("/scan", h.ScanRemediationTasks)
			remediation.GET("/runbooks", h.GetRunbooks)
		}

		oncall := v1.Group("/oncall")
		{
			oncall.GET("/schedules", h.GetOnCallSchedules)
			oncall.POST("/schedules", h.CreateOnCallSchedule)
			oncall.DELETE("/schedules/:id", h.DeleteOnCallSchedule)
			oncall.GET("/groups/:group/current", h.GetCurrentOnCall)
			oncall.GET("/groups/:group/conflicts", h.GetOnCallConflicts)
		}

		v1.GET("/stats", h.Stats)
		v1.POST("/evaluate", h.TriggerEvaluation)
	}

	return r
}
