package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"

	"gosplit/app"
	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/internal/config"
	"gosplit/internal/container"
	"gosplit/internal/observe"
	"gosplit/models"
)

// App is the HTTP surface of the service: the chi router, its middleware
// chain, and the handlers binding routes to the application services.
type App struct {
	router *chi.Mux
	cfg    *config.Config
	db     *sqlx.DB

	lifecycle   *app.LifecycleService
	assignments *app.AssignmentService
	ingest      *app.IngestService
	guardrails  *app.GuardrailService
	snapshots   *app.SnapshotService
	reports     *app.ReportService
	results     *app.ResultsService
	summaries   *app.SummaryService
	exports     *app.ExportService
	briefs      *app.BriefService

	metrics        *observe.MetricsRegistry
	requestMetrics *observe.InMemoryRequestMetrics
	limiter        *clientLimiter
	upgrader       websocket.Upgrader
}

// NewApp wires the router against the container's services.
func NewApp(cfg *config.Config, deps *container.Container) *App {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.NewMetricsRegistry()
	}
	requestMetrics := deps.RequestMetrics
	if requestMetrics == nil {
		requestMetrics = observe.NewInMemoryRequestMetrics()
	}

	a := &App{
		router:         chi.NewRouter(),
		cfg:            cfg,
		db:             deps.DB,
		lifecycle:      deps.Lifecycle,
		assignments:    deps.Assignment,
		ingest:         deps.Ingest,
		guardrails:     deps.Guardrail,
		snapshots:      deps.Snapshot,
		reports:        deps.Report,
		results:        deps.Results,
		summaries:      deps.Summary,
		exports:        deps.Export,
		briefs:         deps.Brief,
		metrics:        metrics,
		requestMetrics: requestMetrics,
		limiter:        newClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(cfg.Server.AllowedOrigins, r.Header.Get("Origin"))
			},
		},
	}

	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// Router exposes the configured handler for the server and for tests.
func (a *App) Router() http.Handler {
	return a.router
}

// setupMiddleware installs the chain, outermost first.
func (a *App) setupMiddleware() {
	a.router.Use(a.withRequestID)
	a.router.Use(a.logRequests)
	a.router.Use(a.recordRequests)
	a.router.Use(a.cors)
	a.router.Use(a.limitWrites)
	a.router.Use(a.writeGate)
	a.router.Use(a.recoverPanics)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes.
func (a *App) setupRoutes() {
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	a.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	// Operational surface, unprefixed.
	a.router.Get("/health", a.handleHealth)
	a.router.Get("/ready", a.handleReady)
	a.router.Handle("/metrics", a.metrics.Handler())
	a.router.Get("/ops/requests", a.handleRequestMetrics)
	a.router.Get("/ws/experiments/{id}/live", a.handleLiveReport)

	a.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(a.cfg.Server.RequestTimeout))

		r.Route("/experiments", func(r chi.Router) {
			r.Post("/", a.handleCreateExperiment)
			r.Get("/", a.handleListExperiments)
			r.Get("/running", a.handleRunningExperiments)
			r.Get("/executive-summary", a.handleExecutiveSummary)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetExperiment)
				r.Patch("/", a.handlePatchExperiment)
				r.Post("/launch", a.handleLaunch)
				r.Post("/pause", a.handlePause)
				r.Post("/terminate", a.handleTerminate)
				r.Post("/decision", a.handleDecision)
				r.Get("/decision-history", a.handleDecisionHistory)
				r.Get("/report", a.handleReport)
				r.Get("/export", a.handleExport)
				r.Get("/snapshots", a.handleSnapshots)
				r.Get("/brief", a.handleBrief)
			})
		})

		r.Post("/assignments", a.handleAssign)
		r.Post("/events", a.handleIngestEvent)
		r.Post("/events/exposure", a.handleIngestExposures)
		r.Post("/events/metric", a.handleIngestMetrics)
		r.Post("/metrics/guardrails", a.handleGuardrailObserve)
		r.Get("/metrics/guardrails/{experimentID}", a.handleGuardrailHistory)
		r.Get("/results/{id}", a.handleResults)
	})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.db == nil || a.db.PingContext(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *App) handleRequestMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.requestMetrics.Snapshot())
}

func (a *App) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req models.ExperimentCreate
	if err := decodeJSON(w, r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	exp, err := a.lifecycle.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewExperimentResponse(exp))
}

func (a *App) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := a.lifecycle.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewExperimentResponses(exps))
}

func (a *App) handleRunningExperiments(w http.ResponseWriter, r *http.Request) {
	cards, err := a.summaries.RunningCards(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewCondensedCards(cards))
}

func (a *App) handleExecutiveSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.summaries.Executive(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewExecutiveSummary(summary))
}

func (a *App) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	exp, err := a.lifecycle.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewExperimentResponse(exp))
}

func (a *App) handlePatchExperiment(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var patch models.ExperimentPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		badBody(w, r, err)
		return
	}
	exp, err := a.lifecycle.Patch(r.Context(), id, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewExperimentResponse(exp))
}

func (a *App) handleLaunch(w http.ResponseWriter, r *http.Request) {
	a.handleLifecycleAction(w, r, a.lifecycle.Launch)
}

func (a *App) handlePause(w http.ResponseWriter, r *http.Request) {
	a.handleLifecycleAction(w, r, a.lifecycle.Pause)
}

func (a *App) handleTerminate(w http.ResponseWriter, r *http.Request) {
	a.handleLifecycleAction(w, r, a.lifecycle.Stop)
}

// handleLifecycleAction decodes the optional action body and applies the
// transition. An empty body is a plain action with defaults.
func (a *App) handleLifecycleAction(w http.ResponseWriter, r *http.Request,
	transition func(context.Context, core.ExperimentID, models.LifecycleAction) (*experiment.Experiment, error)) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	action, err := decodeLifecycleAction(w, r)
	if err != nil {
		badBody(w, r, err)
		return
	}
	exp, err := transition(r.Context(), id, action)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewExperimentResponse(exp))
}

func (a *App) handleDecision(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req models.DecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	exp, err := a.lifecycle.Decide(r.Context(), id, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewExperimentResponse(exp))
}

func (a *App) handleDecisionHistory(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	audits, err := a.lifecycle.DecisionHistory(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewDecisionAuditResponses(audits))
}

func (a *App) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	report, err := a.reports.BuildAndArchive(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewReport(report))
}

func (a *App) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	artifact, err := a.exports.Export(r.Context(), id, format)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Content)
}

func (a *App) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_argument", "limit must be an integer")
			return
		}
	}
	rows, err := a.snapshots.List(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewSnapshotResponses(rows))
}

func (a *App) handleBrief(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}
	artifact, err := a.briefs.Render(r.Context(), id, format)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", artifact.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifact.Content)
}

func (a *App) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req models.AssignmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	result, err := a.assignments.Assign(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewAssignmentResponse(result.Assignment, result.Variant, result.Version))
}

func (a *App) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req models.EventCreate
	if err := decodeJSON(w, r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	event, err := a.ingest.IngestEvent(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewEventResponse(event))
}

func (a *App) handleIngestExposures(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		badBody(w, r, err)
		return
	}
	rows, err := decodeOneOrMany[models.ExposureIn](body)
	if err != nil {
		badBody(w, r, err)
		return
	}
	written, err := a.ingest.IngestExposures(r.Context(), rows)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.BatchIngestResponse{Ingested: written})
}

func (a *App) handleIngestMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		badBody(w, r, err)
		return
	}
	rows, err := decodeOneOrMany[models.MetricIn](body)
	if err != nil {
		badBody(w, r, err)
		return
	}
	written, err := a.ingest.IngestMetrics(r.Context(), rows)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.BatchIngestResponse{Ingested: written})
}

func (a *App) handleGuardrailObserve(w http.ResponseWriter, r *http.Request) {
	var req models.GuardrailCreate
	if err := decodeJSON(w, r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	obs, err := a.guardrails.Observe(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewGuardrailResponse(*obs))
}

func (a *App) handleGuardrailHistory(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "experimentID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	observations, err := a.guardrails.History(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewGuardrailResponses(observations))
}

func (a *App) handleResults(w http.ResponseWriter, r *http.Request) {
	id, err := experimentIDParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "hour"
	}
	results, err := a.results.Build(r.Context(), id, interval)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func experimentIDParam(r *http.Request, name string) (core.ExperimentID, error) {
	return core.ParseExperimentID(chi.URLParam(r, name))
}

// decodeLifecycleAction tolerates an absent body; launch, pause, and
// terminate all accept bare POSTs.
func decodeLifecycleAction(w http.ResponseWriter, r *http.Request) (models.LifecycleAction, error) {
	var action models.LifecycleAction
	if err := decodeJSON(w, r, &action); err != nil && !errors.Is(err, io.EOF) {
		return models.LifecycleAction{}, err
	}
	return action, nil
}
