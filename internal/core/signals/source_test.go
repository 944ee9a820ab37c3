package signals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

type recordingSource struct {
	name   string
	target string
	value  float64
}

func (s *recordingSource) Name() string { return s.name }

func (s *recordingSource) Fetch(ctx context.Context, target string, query Query) (float64, error) {
	s.target = target
	return s.value, nil
}

func TestRegistryRoutesByScheme(t *testing.T) {
	r := NewRegistry()
	local := &recordingSource{name: "local", value: 1}
	probe := &recordingSource{name: "probe", value: 2}
	r.SetDefault(local)
	r.Register("http", probe)
	r.Register("https", probe)

	q := Query{Type: models.ConditionMetric, Expr: "cpu_percent"}

	v, err := r.Fetch(context.Background(), "host-1", q)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, "host-1", local.target)

	v, err = r.Fetch(context.Background(), "http://svc:8080/health", q)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, "svc:8080/health", probe.target, "scheme prefix is stripped")
}

func TestRegistryUnknownSchemeFallsToDefault(t *testing.T) {
	r := NewRegistry()
	local := &recordingSource{name: "local", value: 3}
	r.SetDefault(local)

	// "local:host-1" has a scheme but no source for it; the whole
	// target falls through to the default untouched.
	v, err := r.Fetch(context.Background(), "weird:host-1", Query{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
	assert.Equal(t, "weird:host-1", local.target)
}

func TestRegistryNoSource(t *testing.T) {
	r := NewRegistry()
	_, err := r.Fetch(context.Background(), "host-1", Query{})
	require.Error(t, err)
}
