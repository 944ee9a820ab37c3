package signals

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// DBQuerySource evaluates db-threshold conditions by running a scalar
// SELECT against the engine's own store. Only read statements are
// allowed; rules cannot smuggle writes through a condition.
type DBQuerySource struct {
	db *sqlx.DB
}

// NewDBQuerySource creates a db-threshold signal source.
func NewDBQuerySource(db *sqlx.DB) *DBQuerySource {
	return &DBQuerySource{db: db}
}

// Name returns the source name
func (s *DBQuerySource) Name() string { return "db" }

// Fetch runs the condition's query and returns its scalar result.
func (s *DBQuerySource) Fetch(ctx context.Context, target string, query Query) (float64, error) {
	if query.Type != models.ConditionDBThreshold {
		return 0, fmt.Errorf("db source does not support %s conditions", query.Type)
	}

	stmt := strings.TrimSpace(query.Expr)
	if !strings.HasPrefix(strings.ToUpper(stmt), "SELECT") {
		return 0, fmt.Errorf("db condition must be a SELECT statement")
	}

	var value float64
	if err := s.db.GetContext(ctx, &value, stmt); err != nil {
		return 0, fmt.Errorf("db condition query failed: %w", err)
	}

	return value, nil
}
