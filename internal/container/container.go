package container

import (
	"context"
	"fmt"

	"gosplit/adapters/postgres"
	"gosplit/app"
	"gosplit/internal/config"
	"gosplit/internal/observe"
	"gosplit/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	ExperimentRepo ports.ExperimentRepository
	AssignmentRepo ports.AssignmentRepository
	EventRepo      ports.EventRepository
	GuardrailRepo  ports.GuardrailRepository
	AuditRepo      ports.AuditRepository
	SnapshotRepo   ports.SnapshotRepository

	// Application services
	Lifecycle  *app.LifecycleService
	Assignment *app.AssignmentService
	Ingest     *app.IngestService
	Guardrail  *app.GuardrailService
	Snapshot   *app.SnapshotService
	Report     *app.ReportService
	Results    *app.ResultsService
	Summary    *app.SummaryService
	Export     *app.ExportService
	Brief      *app.BriefService

	// Observability
	Metrics        *observe.MetricsRegistry
	RequestMetrics *observe.InMemoryRequestMetrics
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Container{Config: cfg}, nil
}

// InitWithDatabase wires every repository and service on top of the given
// connection. The container owns the connection from here on.
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	c.DB = db

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.initRepositories()
	c.initServices()
	c.initObservability()
	return nil
}

// initRepositories initializes data access repositories
func (c *Container) initRepositories() {
	c.ExperimentRepo = postgres.NewExperimentRepository(c.DB)
	c.AssignmentRepo = postgres.NewAssignmentRepository(c.DB)
	c.EventRepo = postgres.NewEventRepository(c.DB)
	c.GuardrailRepo = postgres.NewGuardrailRepository(c.DB)
	c.AuditRepo = postgres.NewAuditRepository(c.DB)
	c.SnapshotRepo = postgres.NewSnapshotRepository(c.DB)
}

// initServices wires the application services. The report service sits in
// the middle: lifecycle and snapshots feed it, summary/export/brief build on
// top of it.
func (c *Container) initServices() {
	c.Lifecycle = app.NewLifecycleService(c.ExperimentRepo, c.AuditRepo)
	c.Assignment = app.NewAssignmentService(c.ExperimentRepo, c.AssignmentRepo, c.EventRepo)
	c.Ingest = app.NewIngestService(c.ExperimentRepo, c.EventRepo)
	c.Guardrail = app.NewGuardrailService(c.ExperimentRepo, c.GuardrailRepo)
	c.Snapshot = app.NewSnapshotService(c.ExperimentRepo, c.SnapshotRepo)
	c.Report = app.NewReportService(c.ExperimentRepo, c.EventRepo, c.GuardrailRepo, c.Lifecycle, c.Snapshot)
	c.Results = app.NewResultsService(c.ExperimentRepo, c.EventRepo)
	c.Summary = app.NewSummaryService(c.ExperimentRepo, c.Report)
	c.Export = app.NewExportService(c.ExperimentRepo, c.Report)
	c.Brief = app.NewBriefService(c.ExperimentRepo, c.Report)
}

// initObservability creates the Prometheus registry and the in-process
// request aggregate.
func (c *Container) initObservability() {
	c.Metrics = observe.NewMetricsRegistry()
	c.RequestMetrics = observe.NewInMemoryRequestMetrics()
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
