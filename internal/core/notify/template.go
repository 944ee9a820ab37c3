package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// Recognized template variables. Anything else in braces is left
// untouched so operators can spot typos in the rendered output.
const defaultTemplate = "[{severity}] {title}\n{message}\ntarget: {host_id}\nvalue: {metric_value} (threshold {threshold})\nfired at: {fired_at}"

// Vars builds the substitution set for an alert and its rule.
func Vars(alert *models.Alert, rule *models.AlertRule) map[string]string {
	vars := map[string]string{
		"title":        alert.Title,
		"severity":     string(alert.Severity),
		"message":      alert.Message,
		"metric_value": fmt.Sprintf("%g", alert.ObservedValue),
		"host_id":      alert.Target,
		"fired_at":     alert.FirstFiredAt.Format(time.RFC3339),
		"resolved_at":  "",
	}
	if rule != nil {
		vars["threshold"] = fmt.Sprintf("%g", rule.Threshold)
	} else {
		vars["threshold"] = ""
	}
	if alert.ResolvedAt != nil {
		vars["resolved_at"] = alert.ResolvedAt.Format(time.RFC3339)
	}
	return vars
}

// Render substitutes {name} placeholders in the template. A rule-level
// override takes precedence over the built-in default.
func Render(template string, vars map[string]string) string {
	if template == "" {
		template = defaultTemplate
	}
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
