package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opswatch/opswatch-backend-go/internal/core/escalation"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/pkg/utils"
)

var validOperators = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "==": true, "!=": true,
}

var validConditionTypes = map[models.ConditionType]bool{
	models.ConditionMetric:      true,
	models.ConditionLogKeyword:  true,
	models.ConditionDBThreshold: true,
}

func validateRule(rule *models.AlertRule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.Target == "" {
		return fmt.Errorf("rule target is required")
	}
	if !validConditionTypes[rule.ConditionType] {
		return fmt.Errorf("unknown condition type %q", rule.ConditionType)
	}
	if rule.ConditionExpr == "" {
		return fmt.Errorf("condition expression is required")
	}
	if !validOperators[rule.Operator] {
		return fmt.Errorf("unknown comparison operator %q", rule.Operator)
	}
	if rule.WindowSeconds <= 0 {
		return fmt.Errorf("evaluation window must be positive")
	}
	if !rule.Severity.Valid() {
		return fmt.Errorf("unknown severity %q", rule.Severity)
	}
	return nil
}

// GetRules returns all alert rules.
func (h *Handlers) GetRules(c *gin.Context) {
	rules, err := h.repos.AlertRule.GetAll(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list alert rules")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list alert rules")
		return
	}
	utils.SendSuccess(c, rules)
}

// GetRule returns one alert rule.
func (h *Handlers) GetRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	rule, err := h.repos.AlertRule.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, http.StatusNotFound, "Alert rule not found")
		return
	}
	utils.SendSuccess(c, rule)
}

// CreateRule creates an alert rule.
func (h *Handlers) CreateRule(c *gin.Context) {
	var rule models.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid rule payload: "+err.Error())
		return
	}
	if err := validateRule(&rule); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.AlertRule.Create(c.Request.Context(), &rule); err != nil {
		h.logger.WithError(err).Error("Failed to create alert rule")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create alert rule")
		return
	}

	// The rule cache must drop before the write is acknowledged so
	// the next tick never sees a stale rule set.
	h.evaluator.InvalidateRule(rule.ID)
	utils.SendSuccess(c, rule)
}

// UpdateRule updates an alert rule.
func (h *Handlers) UpdateRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	var rule models.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid rule payload: "+err.Error())
		return
	}
	rule.ID = id
	if err := validateRule(&rule); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.AlertRule.Update(c.Request.Context(), &rule); err != nil {
		utils.SendError(c, http.StatusNotFound, "Alert rule not found")
		return
	}

	h.evaluator.InvalidateRule(id)
	utils.SendSuccess(c, rule)
}

// DeleteRule removes an alert rule.
func (h *Handlers) DeleteRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	if err := h.repos.AlertRule.Delete(c.Request.Context(), id); err != nil {
		utils.SendError(c, http.StatusNotFound, "Alert rule not found")
		return
	}

	h.evaluator.InvalidateRule(id)
	utils.SendSuccess(c, gin.H{"deleted": id})
}

// GetEscalationRules returns all escalation ladders.
func (h *Handlers) GetEscalationRules(c *gin.Context) {
	rules, err := h.repos.EscalationRule.GetAll(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list escalation rules")
		utils.SendError(c, http.StatusInternalServerError, "Failed to list escalation rules")
		return
	}
	utils.SendSuccess(c, rules)
}

// CreateEscalationRule creates an escalation ladder. Level ordering is
// validated at write time: strictly increasing level and delay.
func (h *Handlers) CreateEscalationRule(c *gin.Context) {
	var rule models.EscalationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid escalation rule payload: "+err.Error())
		return
	}
	if err := escalation.ValidateLevels(rule.Levels); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.EscalationRule.Create(c.Request.Context(), &rule); err != nil {
		h.logger.WithError(err).Error("Failed to create escalation rule")
		utils.SendError(c, http.StatusInternalServerError, "Failed to create escalation rule")
		return
	}
	utils.SendSuccess(c, rule)
}

// UpdateEscalationRule replaces an escalation ladder.
func (h *Handlers) UpdateEscalationRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid escalation rule ID")
		return
	}

	var rule models.EscalationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid escalation rule payload: "+err.Error())
		return
	}
	rule.ID = id
	if err := escalation.ValidateLevels(rule.Levels); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repos.EscalationRule.Update(c.Request.Context(), &rule); err != nil {
		utils.SendError(c, http.StatusNotFound, "Escalation rule not found")
		return
	}
	utils.SendSuccess(c, rule)
}

// DeleteEscalationRule removes an escalation ladder.
func (h *Handlers) DeleteEscalationRule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid escalation rule ID")
		return
	}

	if err := h.repos.EscalationRule.Delete(c.Request.Context(), id); err != nil {
		utils.SendError(c, http.StatusNotFound, "Escalation rule not found")
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": id})
}
