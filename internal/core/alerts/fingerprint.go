package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// Fingerprint derives the dedup key identifying "the same problem":
// the rule, the target it watches, and the condition's signature. Two
// violations with equal fingerprints collapse into one alert.
func Fingerprint(rule *models.AlertRule) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%s\x00%s\x00%s\x00%s\x00%g",
		rule.ID, rule.Target, rule.ConditionType, rule.ConditionExpr, rule.Operator, rule.Threshold)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
