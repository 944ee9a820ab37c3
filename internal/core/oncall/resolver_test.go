package oncall

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

type fakeScheduleRepo struct {
	schedules []*models.OnCallSchedule
}

func (r *fakeScheduleRepo) Create(ctx context.Context, schedule *models.OnCallSchedule) error {
	r.schedules = append(r.schedules, schedule)
	return nil
}

func (r *fakeScheduleRepo) GetAll(ctx context.Context) ([]*models.OnCallSchedule, error) {
	return r.schedules, nil
}

func (r *fakeScheduleRepo) ListByGroup(ctx context.Context, groupID string) ([]*models.OnCallSchedule, error) {
	var out []*models.OnCallSchedule
	for _, s := range r.schedules {
		if s.GroupID == groupID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *fakeScheduleRepo) ListActiveAt(ctx context.Context, groupID string, at time.Time) ([]*models.OnCallSchedule, error) {
	var out []*models.OnCallSchedule
	for _, s := range r.schedules {
		if s.GroupID == groupID && s.Active && !at.Before(s.StartDate) && !at.After(s.EndDate) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *fakeScheduleRepo) Delete(ctx context.Context, id int64) error { return nil }

func day(d int) time.Time {
	return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC)
}

func schedule(id int64, group, user string, start, end time.Time, active bool) *models.OnCallSchedule {
	return &models.OnCallSchedule{
		ID: id, GroupID: group, UserID: user,
		StartDate: start, EndDate: end, Active: active,
	}
}

func TestCurrentReturnsScheduledUser(t *testing.T) {
	repo := &fakeScheduleRepo{schedules: []*models.OnCallSchedule{
		schedule(1, "sre", "alice", day(1), day(7), true),
		schedule(2, "sre", "bob", day(8), day(14), true),
	}}
	r := NewResolver(repo)
	ctx := context.Background()

	user, err := r.Current(ctx, "sre", day(3))
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	user, err = r.Current(ctx, "sre", day(10))
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
}

func TestCurrentNobodyScheduled(t *testing.T) {
	repo := &fakeScheduleRepo{schedules: []*models.OnCallSchedule{
		schedule(1, "sre", "alice", day(1), day(7), true),
	}}
	r := NewResolver(repo)

	user, err := r.Current(context.Background(), "sre", day(20))
	require.NoError(t, err)
	assert.Equal(t, "", user)

	user, err = r.Current(context.Background(), "dba", day(3))
	require.NoError(t, err)
	assert.Equal(t, "", user)
}

func TestCurrentEarliestStartWinsOnOverlap(t *testing.T) {
	repo := &fakeScheduleRepo{schedules: []*models.OnCallSchedule{
		schedule(2, "sre", "bob", day(5), day(12), true),
		schedule(1, "sre", "alice", day(1), day(7), true),
	}}
	r := NewResolver(repo)

	user, err := r.Current(context.Background(), "sre", day(6))
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
}

func TestCurrentIgnoresInactive(t *testing.T) {
	repo := &fakeScheduleRepo{schedules: []*models.OnCallSchedule{
		schedule(1, "sre", "alice", day(1), day(7), false),
	}}
	r := NewResolver(repo)

	user, err := r.Current(context.Background(), "sre", day(3))
	require.NoError(t, err)
	assert.Equal(t, "", user)
}

func TestConflictsFlagsOverlaps(t *testing.T) {
	repo := &fakeScheduleRepo{schedules: []*models.OnCallSchedule{
		schedule(1, "sre", "alice", day(1), day(7), true),
		schedule(2, "sre", "bob", day(5), day(12), true),
		schedule(3, "sre", "carol", day(13), day(20), true),
	}}
	r := NewResolver(repo)

	conflicts, err := r.Conflicts(context.Background(), "sre")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "alice", conflicts[0].First.UserID)
	assert.Equal(t, "bob", conflicts[0].Second.UserID)
}

func TestConflictsIgnoresInactive(t *testing.T) {
	repo := &fakeScheduleRepo{schedules: []*models.OnCallSchedule{
		schedule(1, "sre", "alice", day(1), day(7), true),
		schedule(2, "sre", "bob", day(5), day(12), false),
	}}
	r := NewResolver(repo)

	conflicts, err := r.Conflicts(context.Background(), "sre")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestConflictsAdjacentSchedulesTouchingEndpoints(t *testing.T) {
	// Shared boundary day counts as overlap; handoffs should not share
	// a day.
	repo := &fakeScheduleRepo{schedules: []*models.OnCallSchedule{
		schedule(1, "sre", "alice", day(1), day(7), true),
		schedule(2, "sre", "bob", day(7), day(14), true),
	}}
	r := NewResolver(repo)

	conflicts, err := r.Conflicts(context.Background(), "sre")
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
}
