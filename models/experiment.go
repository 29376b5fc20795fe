package models

import (
	"strings"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// Creation defaults applied when the payload leaves a field unset.
const (
	DefaultOwnerTeam    = "unknown-team"
	DefaultCreatedBy    = "system"
	DefaultUnitType     = "user_id"
	DefaultMDE          = 0.05
	DefaultBaselineRate = 0.1
	DefaultAlpha        = 0.05
	DefaultPower        = 0.8
)

// VariantCreate is one requested arm of a new experiment.
type VariantCreate struct {
	Key    string         `json:"key"`
	Name   string         `json:"name"`
	Weight float64        `json:"weight"`
	Config map[string]any `json:"config"`
}

// ExperimentCreate is the POST /experiments payload. Pointer fields
// distinguish "absent" from zero so defaults only fill true gaps.
type ExperimentCreate struct {
	Name             string          `json:"name"`
	Description      *string         `json:"description"`
	Hypothesis       *string         `json:"hypothesis"`
	OwnerTeam        string          `json:"owner_team"`
	CreatedBy        string          `json:"created_by"`
	Tags             []string        `json:"tags"`
	UnitType         string          `json:"unit_type"`
	Targeting        map[string]any  `json:"targeting"`
	RampPct          int             `json:"ramp_pct"`
	AssignmentPolicy string          `json:"assignment_policy"`
	MDE              *float64        `json:"mde"`
	BaselineRate     *float64        `json:"baseline_rate"`
	Alpha            *float64        `json:"alpha"`
	Power            *float64        `json:"power"`
	Variants         []VariantCreate `json:"variants"`
}

// Normalize applies creation defaults and validates the surface shape.
// Description and hypothesis mirror each other when only one is supplied.
func (p *ExperimentCreate) Normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	if len(p.Name) < 3 || len(p.Name) > 200 {
		return core.NewValidationError("name", "must be between 3 and 200 characters")
	}

	if p.Description == nil && p.Hypothesis != nil {
		p.Description = p.Hypothesis
	}
	if p.Hypothesis == nil && p.Description != nil {
		p.Hypothesis = p.Description
	}
	if p.Description == nil {
		return core.NewValidationError("description", "description or hypothesis is required")
	}

	if strings.TrimSpace(p.OwnerTeam) == "" {
		p.OwnerTeam = DefaultOwnerTeam
	}
	if strings.TrimSpace(p.CreatedBy) == "" {
		p.CreatedBy = DefaultCreatedBy
	}
	if strings.TrimSpace(p.UnitType) == "" {
		p.UnitType = DefaultUnitType
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Targeting == nil {
		p.Targeting = map[string]any{}
	}
	if p.MDE == nil {
		v := DefaultMDE
		p.MDE = &v
	}
	if p.BaselineRate == nil {
		v := DefaultBaselineRate
		p.BaselineRate = &v
	}
	if p.Alpha == nil {
		v := DefaultAlpha
		p.Alpha = &v
	}
	if p.Power == nil {
		v := DefaultPower
		p.Power = &v
	}

	for i := range p.Variants {
		p.Variants[i].Key = strings.TrimSpace(p.Variants[i].Key)
		if p.Variants[i].Name == "" {
			p.Variants[i].Name = p.Variants[i].Key
		}
	}
	return nil
}

// ExperimentPatch is the PATCH /experiments/{id} payload; nil fields stay
// untouched. A non-nil Variants replaces the whole set.
type ExperimentPatch struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	OwnerTeam   *string         `json:"owner_team"`
	Tags        []string        `json:"tags"`
	Targeting   map[string]any  `json:"targeting"`
	RampPct     *int            `json:"ramp_pct"`
	Variants    []VariantCreate `json:"variants"`
}

// Empty reports whether the patch changes nothing.
func (p *ExperimentPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.OwnerTeam == nil &&
		p.Tags == nil && p.Targeting == nil && p.RampPct == nil && p.Variants == nil
}

// LifecycleAction is the POST launch/pause/terminate payload.
type LifecycleAction struct {
	RampPct *int    `json:"ramp_pct"`
	Actor   string  `json:"actor"`
	Reason  *string `json:"reason"`
}

// ActorOrDefault falls back to the UI operator identity.
func (a LifecycleAction) ActorOrDefault() string {
	if strings.TrimSpace(a.Actor) == "" {
		return "ui.operator"
	}
	return a.Actor
}

// VariantResponse is the wire form of a variant.
type VariantResponse struct {
	ID      string         `json:"id"`
	Key     string         `json:"key"`
	Name    string         `json:"name"`
	Weight  float64        `json:"weight"`
	Config  map[string]any `json:"config"`
	Ordinal int            `json:"ordinal"`
}

// ExperimentResponse is the wire form of an experiment.
type ExperimentResponse struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	Hypothesis         string            `json:"hypothesis"`
	OwnerTeam          string            `json:"owner_team"`
	CreatedBy          string            `json:"created_by"`
	Tags               []string          `json:"tags"`
	UnitType           string            `json:"unit_type"`
	Targeting          map[string]any    `json:"targeting"`
	RampPct            int               `json:"ramp_pct"`
	Version            int               `json:"version"`
	AssignmentPolicy   string            `json:"assignment_policy"`
	MDE                float64           `json:"mde"`
	BaselineRate       float64           `json:"baseline_rate"`
	Alpha              float64           `json:"alpha"`
	Power              float64           `json:"power"`
	SampleSizeRequired int               `json:"sample_size_required"`
	Status             string            `json:"status"`
	Outcome            string            `json:"outcome"`
	StartedAt          *core.Timestamp   `json:"started_at"`
	EndedAt            *core.Timestamp   `json:"ended_at"`
	TerminationReason  *string           `json:"termination_reason"`
	CreatedAt          core.Timestamp    `json:"created_at"`
	UpdatedAt          core.Timestamp    `json:"updated_at"`
	Variants           []VariantResponse `json:"variants"`
}

// NewExperimentResponse converts a domain experiment into its wire form.
func NewExperimentResponse(exp *experiment.Experiment) ExperimentResponse {
	variants := make([]VariantResponse, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		config := v.Config
		if config == nil {
			config = map[string]any{}
		}
		variants = append(variants, VariantResponse{
			ID:      v.ID.String(),
			Key:     v.Key,
			Name:    v.Name,
			Weight:  v.Weight,
			Config:  config,
			Ordinal: v.Ordinal,
		})
	}

	tags := exp.Tags
	if tags == nil {
		tags = []string{}
	}

	return ExperimentResponse{
		ID:                 exp.ID.String(),
		Name:               exp.Name,
		Description:        exp.Description,
		Hypothesis:         exp.Hypothesis,
		OwnerTeam:          exp.OwnerTeam,
		CreatedBy:          exp.CreatedBy,
		Tags:               tags,
		UnitType:           exp.UnitType,
		Targeting:          exp.Targeting.Raw(),
		RampPct:            exp.RampPct,
		Version:            exp.Version,
		AssignmentPolicy:   exp.Policy.String(),
		MDE:                exp.MDE,
		BaselineRate:       exp.BaselineRate,
		Alpha:              exp.Alpha,
		Power:              exp.Power,
		SampleSizeRequired: exp.SampleSizeRequired,
		Status:             exp.Status.String(),
		Outcome:            exp.Outcome.String(),
		StartedAt:          exp.StartedAt,
		EndedAt:            exp.EndedAt,
		TerminationReason:  exp.TerminationReason,
		CreatedAt:          exp.CreatedAt,
		UpdatedAt:          exp.UpdatedAt,
		Variants:           variants,
	}
}

// NewExperimentResponses converts a list, preserving order.
func NewExperimentResponses(exps []*experiment.Experiment) []ExperimentResponse {
	out := make([]ExperimentResponse, 0, len(exps))
	for _, exp := range exps {
		out = append(out, NewExperimentResponse(exp))
	}
	return out
}

// CondensedCard is the running-experiments view row.
type CondensedCard struct {
	ExperimentID    string  `json:"experiment_id"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	Exposures       int64   `json:"exposures"`
	Conversions     int64   `json:"conversions"`
	ConversionRate  float64 `json:"conversion_rate"`
	UpliftVsControl float64 `json:"uplift_vs_control"`
	Confidence      float64 `json:"confidence"`
	SampleProgress  float64 `json:"sample_progress"`
}

// NewCondensedCard converts the domain card.
func NewCondensedCard(card experiment.CondensedCard) CondensedCard {
	return CondensedCard{
		ExperimentID:    card.ExperimentID.String(),
		Name:            card.Name,
		Status:          card.Status.String(),
		Exposures:       card.Exposures,
		Conversions:     card.Conversions,
		ConversionRate:  card.ConversionRate,
		UpliftVsControl: card.UpliftVsControl,
		Confidence:      card.Confidence,
		SampleProgress:  card.SampleProgress,
	}
}

// NewCondensedCards converts a list, preserving order.
func NewCondensedCards(cards []experiment.CondensedCard) []CondensedCard {
	out := make([]CondensedCard, 0, len(cards))
	for _, card := range cards {
		out = append(out, NewCondensedCard(card))
	}
	return out
}

// ExecutiveSummary is the lifecycle tally of the whole portfolio.
type ExecutiveSummary struct {
	Draft                  int `json:"draft"`
	Running                int `json:"running"`
	Paused                 int `json:"paused"`
	Stopped                int `json:"stopped"`
	Passed                 int `json:"passed"`
	Failed                 int `json:"failed"`
	Inconclusive           int `json:"inconclusive"`
	TerminatedWithoutCause int `json:"terminated_without_cause"`
}

// NewExecutiveSummary converts the domain summary.
func NewExecutiveSummary(s experiment.ExecutiveSummary) ExecutiveSummary {
	return ExecutiveSummary{
		Draft:                  s.Draft,
		Running:                s.Running,
		Paused:                 s.Paused,
		Stopped:                s.Stopped,
		Passed:                 s.Passed,
		Failed:                 s.Failed,
		Inconclusive:           s.Inconclusive,
		TerminatedWithoutCause: s.TerminatedWithoutCause,
	}
}
