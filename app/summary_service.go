package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gosplit/domain/experiment"
	"gosplit/ports"
)

// cardConcurrency bounds how many condensed reports build at once. Each one
// costs an event aggregation query, so the fan-out stays modest.
const cardConcurrency = 8

// SummaryService serves the portfolio views: condensed cards for every
// running experiment and the lifecycle tallies.
type SummaryService struct {
	experiments ports.ExperimentRepository
	reports     *ReportService
}

// NewSummaryService creates a summary service
func NewSummaryService(experiments ports.ExperimentRepository, reports *ReportService) *SummaryService {
	return &SummaryService{
		experiments: experiments,
		reports:     reports,
	}
}

// RunningCards builds a condensed card per RUNNING experiment, newest first.
// Report builds fan out concurrently under a weighted semaphore; the first
// failure cancels the rest.
func (s *SummaryService) RunningCards(ctx context.Context) ([]experiment.CondensedCard, error) {
	running, err := s.experiments.ListByStatus(ctx, experiment.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to list running experiments: %w", err)
	}

	cards := make([]experiment.CondensedCard, len(running))
	sem := semaphore.NewWeighted(cardConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, exp := range running {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			report, err := s.reports.buildFor(gctx, exp)
			if err != nil {
				return fmt.Errorf("failed to build card for experiment %s: %w", exp.ID, err)
			}
			cards[i] = experiment.CondensedCardFrom(exp, report)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

// Executive returns the portfolio tally by lifecycle state and outcome.
func (s *SummaryService) Executive(ctx context.Context) (experiment.ExecutiveSummary, error) {
	return s.experiments.Summary(ctx)
}
