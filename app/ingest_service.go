package app

import (
	"context"
	"fmt"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/models"
	"gosplit/ports"
)

// IngestService appends observation events. Batches resolve every row before
// the first write, and the repository commits them in one transaction, so a
// bad row anywhere rejects the whole batch.
type IngestService struct {
	experiments ports.ExperimentRepository
	events      ports.EventRepository
}

// NewIngestService creates an ingest service
func NewIngestService(experiments ports.ExperimentRepository, events ports.EventRepository) *IngestService {
	return &IngestService{
		experiments: experiments,
		events:      events,
	}
}

// IngestEvent appends one raw event. The variant, when given, must belong to
// the experiment.
func (s *IngestService) IngestEvent(ctx context.Context, req models.EventCreate) (*experiment.Event, error) {
	experimentID, err := core.ParseExperimentID(req.ExperimentID)
	if err != nil {
		return nil, err
	}
	unitID, err := core.ParseUnitID(req.UnitID)
	if err != nil {
		return nil, err
	}

	exp, err := s.experiments.Get(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	kind, err := experiment.ParseKind(req.EventType)
	if err != nil {
		return nil, err
	}
	period, err := experiment.ParsePeriod(req.Period)
	if err != nil {
		return nil, err
	}

	var variantID *core.VariantID
	if req.VariantID != nil && *req.VariantID != "" {
		parsed, err := core.ParseVariantID(*req.VariantID)
		if err != nil {
			return nil, err
		}
		if _, ok := exp.VariantByID(parsed); !ok {
			return nil, core.NewNotFoundError("variant", parsed.String())
		}
		variantID = &parsed
	}

	value := 1.0
	if req.Value != nil {
		value = *req.Value
	}
	observedAt := core.Now()
	if req.ObservedAt != nil {
		observedAt = *req.ObservedAt
	}

	event := &experiment.Event{
		ID:           core.EventID(core.NewID()),
		ExperimentID: experimentID,
		UnitID:       unitID,
		VariantID:    variantID,
		Kind:         kind,
		MetricName:   req.MetricName,
		Period:       period,
		Value:        value,
		Context:      req.ContextJSON,
		ObservedAt:   observedAt,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if err := s.events.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	return event, nil
}

// IngestExposures resolves and appends exposure rows atomically, returning
// how many were written.
func (s *IngestService) IngestExposures(ctx context.Context, rows []models.ExposureIn) (int, error) {
	events := make([]*experiment.Event, 0, len(rows))
	cache := newExperimentCache(s.experiments)

	for _, row := range rows {
		exp, variant, unitID, err := s.resolveRow(ctx, cache, row.ExperimentID, row.UnitID, row.VariantKey)
		if err != nil {
			return 0, err
		}
		variantID := variant.ID
		events = append(events, &experiment.Event{
			ID:           core.EventID(core.NewID()),
			ExperimentID: exp.ID,
			UnitID:       unitID,
			VariantID:    &variantID,
			Kind:         experiment.KindExposure,
			Period:       experiment.PeriodPost,
			Value:        1.0,
			Context:      row.Context,
			ObservedAt:   observedOrNow(row.TS),
		})
	}

	written, err := s.events.AppendBatch(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("failed to append exposure batch: %w", err)
	}
	return written, nil
}

// IngestMetrics resolves and appends metric rows atomically, returning how
// many were written.
func (s *IngestService) IngestMetrics(ctx context.Context, rows []models.MetricIn) (int, error) {
	events := make([]*experiment.Event, 0, len(rows))
	cache := newExperimentCache(s.experiments)

	for _, row := range rows {
		exp, variant, unitID, err := s.resolveRow(ctx, cache, row.ExperimentID, row.UnitID, row.VariantKey)
		if err != nil {
			return 0, err
		}
		variantID := variant.ID
		metricName := row.MetricName
		event := &experiment.Event{
			ID:           core.EventID(core.NewID()),
			ExperimentID: exp.ID,
			UnitID:       unitID,
			VariantID:    &variantID,
			Kind:         experiment.KindMetric,
			MetricName:   &metricName,
			Period:       experiment.PeriodPost,
			Value:        row.Value,
			Context:      row.Context,
			ObservedAt:   observedOrNow(row.TS),
		}
		if err := event.Validate(); err != nil {
			return 0, err
		}
		events = append(events, event)
	}

	written, err := s.events.AppendBatch(ctx, events)
	if err != nil {
		return 0, fmt.Errorf("failed to append metric batch: %w", err)
	}
	return written, nil
}

// resolveRow validates the addressing fields shared by shaped ingest rows:
// the experiment must exist and the variant key must name one of its arms.
func (s *IngestService) resolveRow(ctx context.Context, cache *experimentCache, rawExperimentID, rawUnitID, variantKey string) (*experiment.Experiment, experiment.Variant, core.UnitID, error) {
	experimentID, err := core.ParseExperimentID(rawExperimentID)
	if err != nil {
		return nil, experiment.Variant{}, "", err
	}
	unitID, err := core.ParseUnitID(rawUnitID)
	if err != nil {
		return nil, experiment.Variant{}, "", err
	}

	exp, err := cache.get(ctx, experimentID)
	if err != nil {
		return nil, experiment.Variant{}, "", err
	}
	variant, ok := exp.VariantByKey(variantKey)
	if !ok {
		return nil, experiment.Variant{}, "", core.NewNotFoundError("variant", variantKey)
	}
	return exp, variant, unitID, nil
}

// experimentCache deduplicates experiment lookups inside one batch.
type experimentCache struct {
	repo ports.ExperimentRepository
	seen map[core.ExperimentID]*experiment.Experiment
}

func newExperimentCache(repo ports.ExperimentRepository) *experimentCache {
	return &experimentCache{repo: repo, seen: make(map[core.ExperimentID]*experiment.Experiment)}
}

func (c *experimentCache) get(ctx context.Context, id core.ExperimentID) (*experiment.Experiment, error) {
	if exp, ok := c.seen[id]; ok {
		return exp, nil
	}
	exp, err := c.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.seen[id] = exp
	return exp, nil
}

func observedOrNow(ts *core.Timestamp) core.Timestamp {
	if ts != nil {
		return *ts
	}
	return core.Now()
}
