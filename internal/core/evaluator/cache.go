package evaluator

import (
	"context"
	"sync"
	"time"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/database/repositories"
)

// ruleCache holds the enabled rule set with a short TTL. Rule edits
// invalidate synchronously so the next tick never evaluates against a
// stale threshold.
type ruleCache struct {
	repo repositories.AlertRuleRepository
	ttl  time.Duration

	mu       sync.Mutex
	rules    []*models.AlertRule
	loadedAt time.Time
}

func newRuleCache(repo repositories.AlertRuleRepository, ttl time.Duration) *ruleCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ruleCache{repo: repo, ttl: ttl}
}

// Get returns the enabled rules, reloading when the cache is stale.
func (c *ruleCache) Get(ctx context.Context) ([]*models.AlertRule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rules != nil && time.Since(c.loadedAt) < c.ttl {
		return c.rules, nil
	}

	rules, err := c.repo.GetEnabled(ctx)
	if err != nil {
		return nil, err
	}
	c.rules = rules
	c.loadedAt = time.Now()
	return rules, nil
}

// Invalidate drops the cached set. Called on every rule write before
// the write is acknowledged to the caller. The whole enabled set is
// reloaded on the next Get; per-id eviction is not worth the
// bookkeeping at this rule count.
func (c *ruleCache) Invalidate(id int64) {
	c.mu.Lock()
	c.rules = nil
	c.mu.Unlock()
}
