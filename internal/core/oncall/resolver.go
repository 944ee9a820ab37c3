package oncall

import (
	"context"
	"fmt"
	"time"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// Resolver answers "who is on call for this group right now" from
// schedule rows. It carries no cached state; every lookup reads the
// store so schedule edits take effect immediately.
type Resolver struct {
	repo repositories.OnCallRepository
}

// NewResolver creates an on-call resolver.
func NewResolver(repo repositories.OnCallRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Current returns the user on call for the group at the given time, or
// empty string when nobody is scheduled. With overlapping schedules
// the earliest-starting one wins; overlaps are surfaced separately by
// Conflicts.
func (r *Resolver) Current(ctx context.Context, groupID string, at time.Time) (string, error) {
	schedules, err := r.repo.ListActiveAt(ctx, groupID, at)
	if err != nil {
		return "", fmt.Errorf("failed to resolve on-call for group %s: %w", groupID, err)
	}
	if len(schedules) == 0 {
		return "", nil
	}
	return schedules[0].UserID, nil
}

// Conflict is a pair of overlapping active schedules within one group.
type Conflict struct {
	GroupID string                 `json:"group_id"`
	First   *models.OnCallSchedule `json:"first"`
	Second  *models.OnCallSchedule `json:"second"`
}

// Conflicts returns overlapping active schedule pairs for a group.
// Overlaps are flagged for operators, not rejected at write time.
func (r *Resolver) Conflicts(ctx context.Context, groupID string) ([]Conflict, error) {
	schedules, err := r.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules for group %s: %w", groupID, err)
	}

	var conflicts []Conflict
	for i := 0; i < len(schedules); i++ {
		if !schedules[i].Active {
			continue
		}
		for j := i + 1; j < len(schedules); j++ {
			if !schedules[j].Active {
				continue
			}
			if overlaps(schedules[i], schedules[j]) {
				conflicts = append(conflicts, Conflict{
					GroupID: groupID,
					First:   schedules[i],
					Second:  schedules[j],
				})
			}
		}
	}
	return conflicts, nil
}

func overlaps(a, b *models.OnCallSchedule) bool {
	return !a.EndDate.Before(b.StartDate) && !b.EndDate.Before(a.StartDate)
}
