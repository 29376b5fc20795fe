package app

import (
	"context"
	"testing"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/internal/testkit"
	"gosplit/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardrailService(kit *testkit.TestKit) *GuardrailService {
	return NewGuardrailService(kit.Experiments, kit.Guardrails)
}

func TestGuardrailService_ObserveClassifies(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newGuardrailService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	testCases := []struct {
		name string
		req  models.GuardrailCreate
		want experiment.GuardrailStatus
	}{
		{
			name: "latency above max breaches",
			req: models.GuardrailCreate{
				ExperimentID: exp.ID.String(), Name: "p95_latency_ms",
				Value: 460, ThresholdValue: 350, Direction: "max",
			},
			want: experiment.GuardrailBreached,
		},
		{
			name: "latency at max healthy",
			req: models.GuardrailCreate{
				ExperimentID: exp.ID.String(), Name: "p95_latency_ms",
				Value: 350, ThresholdValue: 350, Direction: "max",
			},
			want: experiment.GuardrailHealthy,
		},
		{
			name: "retention below min breaches",
			req: models.GuardrailCreate{
				ExperimentID: exp.ID.String(), Name: "d7_retention",
				Value: 0.90, ThresholdValue: 0.95, Direction: "min",
			},
			want: experiment.GuardrailBreached,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			obs, err := svc.Observe(ctx, tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, obs.Status)
			assert.False(t, obs.ObservedAt.IsZero())
			assert.NotEmpty(t, obs.ID)
		})
	}

	history, err := svc.History(ctx, exp.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestGuardrailService_ObserveRejections(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newGuardrailService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	_, err := svc.Observe(ctx, models.GuardrailCreate{
		ExperimentID: exp.ID.String(), Name: "  ", Value: 1, ThresholdValue: 2, Direction: "max",
	})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Observe(ctx, models.GuardrailCreate{
		ExperimentID: exp.ID.String(), Name: "errors", Value: 1, ThresholdValue: 2, Direction: "sideways",
	})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Observe(ctx, models.GuardrailCreate{
		ExperimentID: core.NewID().String(), Name: "errors", Value: 1, ThresholdValue: 2, Direction: "max",
	})
	assert.ErrorIs(t, err, core.ErrNotFound)

	history, err := svc.History(ctx, exp.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGuardrailService_HistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	older := experiment.GuardrailObservation{
		ID: core.GuardrailID(core.NewID()), ExperimentID: exp.ID,
		Name: "error_rate", Value: 0.01, Threshold: 0.05,
		Direction: experiment.GuardrailMax, Status: experiment.GuardrailHealthy,
		ObservedAt: core.NewTimestamp(core.Now().Time().Add(-time.Minute)),
	}
	newer := older
	newer.ID = core.GuardrailID(core.NewID())
	newer.Value = 0.09
	newer.Status = experiment.GuardrailBreached
	newer.ObservedAt = core.Now()

	require.NoError(t, kit.Guardrails.Append(ctx, &older))
	require.NoError(t, kit.Guardrails.Append(ctx, &newer))

	history, err := newGuardrailService(kit).History(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, experiment.GuardrailBreached, history[0].Status)
	assert.Equal(t, experiment.GuardrailHealthy, history[1].Status)

	_, err = newGuardrailService(kit).History(ctx, core.ExperimentID(core.NewID()))
	assert.ErrorIs(t, err, core.ErrNotFound)
}
