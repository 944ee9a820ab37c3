package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
	apperrors "github.com/opswatch/opswatch-backend-go/pkg/errors"
	"github.com/opswatch/opswatch-backend-go/pkg/utils"
)

var validChannelTypes = map[models.ChannelType]bool{
	models.ChannelWebhook:  true,
	models.ChannelEmail:    true,
	models.ChannelDingTalk: true,
	models.ChannelWeCom:    true,
	models.ChannelSlack:    true,
}

func validateChannel(channel *models.NotificationChannel) error {
	if channel.Name == "" {
		return fmt.Errorf("channel name is required")
	}
	if !validChannelTypes[channel.Type] {
		return fmt.Errorf("unknown channel type %q", channel.Type)
	}
	if channel.Type == models.ChannelEmail {
		for _, key := range []string{"host", "from", "to"} {
			if v, _ := channel.Config[key].(string); v == "" {
				return fmt.Errorf("email channel config needs %q", key)
			}
		}
		return nil
	}
	if v, _ := channel.Config["url"].(string); v == "" {
		return fmt.Errorf("%s channel config needs \"url\"", channel.Type)
	}
	return nil
}

// GetChannels lists notification channels.
func (h *Handlers) GetChannels(c *gin.Context) {
	channels, err := h.repos.Channel.GetAll(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list channels")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list channels")
		return
	}
	utils.SendSuccess(c, channels)
}

// CreateChannel creates a notification channel.
func (h *Handlers) CreateChannel(c *gin.Context) {
	var channel models.NotificationChannel
	if err := c.ShouldBindJSON(&channel); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid channel payload: "+err.Error())
		return
	}
	if err := validateChannel(&channel); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.Channel.Create(c.Request.Context(), &channel); err != nil {
		h.logger.WithError(err).Error("Failed to create channel")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create channel")
		return
	}
	utils.SendSuccess(c, channel)
}

// UpdateChannel updates a notification channel.
func (h *Handlers) UpdateChannel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid channel ID")
		return
	}

	var channel models.NotificationChannel
	if err := c.ShouldBindJSON(&channel); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid channel payload: "+err.Error())
		return
	}
	channel.ID = id
	if err := validateChannel(&channel); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.Channel.Update(c.Request.Context(), &channel); err != nil {
		utils.SendError(c, http.StatusNotFound, "Channel not found")
		return
	}
	utils.SendSuccess(c, channel)
}

// DeleteChannel removes a notification channel.
func (h *Handlers) DeleteChannel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid channel ID")
		return
	}

	if err := h.repos.Channel.Delete(c.Request.Context(), id); err != nil {
		utils.SendError(c, http.StatusNotFound, "Channel not found")
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}

// TestChannel sends a sample message through a channel. The delivery
// is logged with no alert attached.
func (h *Handlers) TestChannel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid channel ID")
		return
	}

	logEntry, err := h.dispatcher.TestSend(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, logEntry)
}

// GetNotificationLogs lists the delivery audit trail.
func (h *Handlers) GetNotificationLogs(c *gin.Context) {
	filter := repositories.NotificationLogFilter{
		AlertID: c.Query("alert_id"),
		Status:  models.NotificationStatus(c.Query("status")),
		Limit:   50,
	}
	if channelID := c.Query("channel_id"); channelID != "" {
		id, err := strconv.ParseInt(channelID, 10, 64)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid channel_id filter")
			return
		}
		filter.ChannelID = id
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			utils.SendError(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = n
	}

	logs, err := h.repos.NotificationLog.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list notification logs")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list notification logs")
		return
	}
	utils.SendSuccessWithMeta(c, logs, gin.H{"count": len(logs)})
}

// RetryNotification re-attempts a failed delivery from the audit view.
func (h *Handlers) RetryNotification(c *gin.Context) {
	if err := h.dispatcher.Retry(c.Request.Context(), c.Param("id")); err != nil {
		utils.SendError(c, apperrors.GetStatusCode(err), err.Error())
		return
	}
	utils.SendSuccess(c, gin.H{"queued": c.Param("id")})
}

// GetSilenceWindows lists silence windows.
func (h *Handlers) GetSilenceWindows(c *gin.Context) {
	windows, err := h.repos.SilenceWindow.GetAll(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list silence windows")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list silence windows")
		return
	}
	utils.SendSuccess(c, windows)
}

// CreateSilenceWindow creates a recurring daily silence window.
func (h *Handlers) CreateSilenceWindow(c *gin.Context) {
	var window models.SilenceWindow
	if err := c.ShouldBindJSON(&window); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid silence window payload: "+err.Error())
		return
	}
	if err := validateClockRange(window.StartTime, window.EndTime); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.SilenceWindow.Create(c.Request.Context(), &window); err != nil {
		h.logger.WithError(err).Error("Failed to create silence window")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create silence window")
		return
	}
	utils.SendSuccess(c, window)
}

// UpdateSilenceWindow updates a silence window.
func (h *Handlers) UpdateSilenceWindow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid silence window ID")
		return
	}

	var window models.SilenceWindow
	if err := c.ShouldBindJSON(&window); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid silence window payload: "+err.Error())
		return
	}
	window.ID = id
	if err := validateClockRange(window.StartTime, window.EndTime); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.SilenceWindow.Update(c.Request.Context(), &window); err != nil {
		utils.SendError(c, http.StatusNotFound, "Silence window not found")
		return
	}
	utils.SendSuccess(c, window)
}

// DeleteSilenceWindow removes a silence window.
func (h *Handlers) DeleteSilenceWindow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid silence window ID")
		return
	}

	if err := h.repos.SilenceWindow.Delete(c.Request.Context(), id); err != nil {
		utils.SendError(c, http.StatusNotFound, "Silence window not found")
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}

func validateClockRange(start, end string) error {
	for _, v := range []string{start, end} {
		if len(v) != 5 || v[2] != ':' {
			return fmt.Errorf("times must be in HH:MM form, got %q", v)
		}
		hh, err1 := strconv.Atoi(v[:2])
		mm, err2 := strconv.Atoi(v[3:])
		if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
			return fmt.Errorf("times must be in HH:MM form, got %q", v)
		}
	}
	if start == end {
		return fmt.Errorf("silence window must have a non-zero duration")
	}
	return nil
}
