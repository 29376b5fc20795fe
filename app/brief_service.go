package app

import (
	"context"
	"fmt"

	"gosplit/adapters/export"
	"gosplit/domain/core"
	"gosplit/models"
	"gosplit/ports"
)

// BriefService renders the human-readable decision brief for an experiment.
type BriefService struct {
	experiments ports.ExperimentRepository
	reports     *ReportService
}

// NewBriefService creates a brief service.
func NewBriefService(experiments ports.ExperimentRepository, reports *ReportService) *BriefService {
	return &BriefService{experiments: experiments, reports: reports}
}

// Render builds the current report and renders the brief as markdown or HTML.
func (s *BriefService) Render(ctx context.Context, id core.ExperimentID, format string) (*export.Artifact, error) {
	switch format {
	case "md", "html":
	default:
		return nil, core.NewValidationError("format", "must be md or html")
	}

	exp, err := s.experiments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load experiment: %w", err)
	}
	report, err := s.reports.buildFor(ctx, exp)
	if err != nil {
		return nil, err
	}

	doc := export.Brief(models.NewExperimentResponse(exp), models.NewReport(report))
	if format == "html" {
		return &export.Artifact{
			Content:     export.BriefHTML(doc),
			ContentType: "text/html; charset=utf-8",
			Filename:    fmt.Sprintf("experiment-%s-brief.html", id),
		}, nil
	}
	return &export.Artifact{
		Content:     doc,
		ContentType: "text/markdown; charset=utf-8",
		Filename:    fmt.Sprintf("experiment-%s-brief.md", id),
	}, nil
}
