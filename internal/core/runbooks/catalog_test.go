package runbooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbooks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runbooks:
  - name: restart-nginx
    description: Restart nginx
    risk_level: low
    commands:
      - systemctl restart nginx
      - systemctl is-active nginx
  - name: clear-tmp-space
    risk_level: medium
    commands:
      - find /tmp -type f -atime +7 -delete
denylist:
  - "drop\\s+table"
`), 0o644))

	catalog, err := Load(path)
	require.NoError(t, err)

	rb, ok := catalog.Get("restart-nginx")
	require.True(t, ok)
	assert.Equal(t, models.RiskLow, rb.RiskLevel)
	assert.Len(t, rb.Commands, 2)

	_, ok = catalog.Get("missing")
	assert.False(t, ok)

	assert.Len(t, catalog.All(), 2)

	// Operator-supplied denylist patterns apply on top of the built-ins.
	denied := catalog.CheckDenied(Runbook{Commands: []string{"mysql -e 'drop table users'"}})
	assert.Equal(t, "mysql -e 'drop table users'", denied)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestBuildValidation(t *testing.T) {
	cases := []struct {
		name  string
		books []Runbook
	}{
		{"empty name", []Runbook{{RiskLevel: models.RiskLow, Commands: []string{"true"}}}},
		{"no commands", []Runbook{{Name: "x", RiskLevel: models.RiskLow}}},
		{"bad risk", []Runbook{{Name: "x", RiskLevel: "extreme", Commands: []string{"true"}}}},
		{"duplicate name", []Runbook{
			{Name: "x", RiskLevel: models.RiskLow, Commands: []string{"true"}},
			{Name: "x", RiskLevel: models.RiskHigh, Commands: []string{"false"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCatalog(tc.books, nil)
			assert.Error(t, err)
		})
	}
}

func TestInvalidDenylistPattern(t *testing.T) {
	_, err := NewCatalog(nil, []string{"("})
	require.Error(t, err)
}

func TestDefaultDenylist(t *testing.T) {
	catalog, err := NewCatalog(nil, nil)
	require.NoError(t, err)

	blocked := []string{
		"rm -rf /",
		"rm -rf /*",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown -h now",
		"reboot",
	}
	for _, cmd := range blocked {
		assert.NotEmpty(t, catalog.CheckDenied(Runbook{Commands: []string{cmd}}), "expected %q to be denied", cmd)
	}

	allowed := []string{
		"systemctl restart nginx",
		"rm -f /tmp/stale.lock",
		"find /tmp -type f -delete",
	}
	for _, cmd := range allowed {
		assert.Empty(t, catalog.CheckDenied(Runbook{Commands: []string{cmd}}), "expected %q to pass", cmd)
	}
}
