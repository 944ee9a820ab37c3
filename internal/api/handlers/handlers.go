package handlers

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/core/alerts"
	"github.com/opswatch/opswatch-backend-go/internal/core/escalation"
	"github.com/opswatch/opswatch-backend-go/internal/core/evaluator"
	"github.com/opswatch/opswatch-backend-go/internal/core/notify"
	"github.com/opswatch/opswatch-backend-go/internal/core/oncall"
	"github.com/opswatch/opswatch-backend-go/internal/core/remediation"
	"github.com/opswatch/opswatch-backend-go/internal/core/runbooks"
	"github.com/opswatch/opswatch-backend-go/internal/database"
	"github.com/opswatch/opswatch-backend-go/internal/websocket"
)

// Handlers bundles the query surface's dependencies.
type Handlers struct {
	repos        *database.Repositories
	db           *sqlx.DB
	alerts       *alerts.Service
	escalation   *escalation.Engine
	dispatcher   *notify.Dispatcher
	orchestrator *remediation.Orchestrator
	evaluator    *evaluator.Engine
	oncall       *oncall.Resolver
	catalog      *runbooks.Catalog
	hub          *websocket.Hub
	logger       *logrus.Logger
}

// New creates the handler set.
func New(
	repos *database.Repositories,
	db *sqlx.DB,
	alertSvc *alerts.Service,
	escalationEngine *escalation.Engine,
	dispatcher *notify.Dispatcher,
	orchestrator *remediation.Orchestrator,
	evaluatorEngine *evaluator.Engine,
	oncallResolver *oncall.Resolver,
	catalog *runbooks.Catalog,
	hub *websocket.Hub,
	logger *logrus.Logger,
) *Handlers {
	return &Handlers{
		repos:        repos,
		db:           db,
		alerts:       alertSvc,
		escalation:   escalationEngine,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		evaluator:    evaluatorEngine,
		oncall:       oncallResolver,
		catalog:      catalog,
		hub:          hub,
		logger:       logger,
	}
}
