package app

import (
	"context"
	"fmt"

	"gosplit/adapters/export"
	"gosplit/domain/core"
	"gosplit/models"
	"gosplit/ports"
)

// ExportService turns the current report into a downloadable artifact.
// Exports are read-only: no auto-transition, no snapshot.
type ExportService struct {
	experiments ports.ExperimentRepository
	reports     *ReportService
}

// NewExportService creates an export service.
func NewExportService(experiments ports.ExperimentRepository, reports *ReportService) *ExportService {
	return &ExportService{experiments: experiments, reports: reports}
}

// Export builds the report and encodes it in the requested format.
func (s *ExportService) Export(ctx context.Context, id core.ExperimentID, format string) (*export.Artifact, error) {
	switch format {
	case "json", "csv", "xlsx":
	default:
		return nil, core.NewValidationError("format", "must be one of json, csv, xlsx")
	}

	exp, err := s.experiments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load experiment: %w", err)
	}
	report, err := s.reports.buildFor(ctx, exp)
	if err != nil {
		return nil, err
	}

	switch format {
	case "csv":
		return export.CSV(models.NewReport(report))
	case "xlsx":
		return export.Workbook(models.NewReport(report))
	default:
		return export.JSON(models.NewExperimentResponse(exp), models.NewReport(report))
	}
}
