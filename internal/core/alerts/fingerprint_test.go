package alerts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

func TestFingerprintStable(t *testing.T) {
	a := testRule()
	b := testRule()
	// Fields outside the condition signature must not change identity.
	b.Severity = models.SeverityCritical
	b.WindowSeconds = 60
	b.Name = "renamed"

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 32)
}

func TestFingerprintDiverges(t *testing.T) {
	base := testRule()

	cases := []struct {
		name   string
		mutate func(r *models.AlertRule)
	}{
		{"target", func(r *models.AlertRule) { r.Target = "host-2" }},
		{"threshold", func(r *models.AlertRule) { r.Threshold = 80 }},
		{"operator", func(r *models.AlertRule) { r.Operator = ">=" }},
		{"condition_expr", func(r *models.AlertRule) { r.ConditionExpr = "mem_percent" }},
		{"condition_type", func(r *models.AlertRule) { r.ConditionType = models.ConditionLogKeyword }},
		{"rule_id", func(r *models.AlertRule) { r.ID = 2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			changed := testRule()
			tc.mutate(changed)
			assert.NotEqual(t, Fingerprint(base), Fingerprint(changed))
		})
	}
}
