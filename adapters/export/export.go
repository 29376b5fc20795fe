// Package export encodes report documents into downloadable artifacts:
// a json document, a one-row csv, an xlsx workbook, and the decision brief.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"gosplit/models"

	"github.com/xuri/excelize/v2"
)

// Artifact is an encoded download: content bytes plus the headers the
// HTTP layer needs to serve it.
type Artifact struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Document is the json export payload.
type Document struct {
	Experiment models.ExperimentResponse `json:"experiment"`
	Report     models.Report             `json:"report"`
}

// csvHeader is fixed; downstream tooling keys on these column names.
var csvHeader = []string{
	"experiment_id", "status", "recommendation", "exposures", "conversions",
	"uplift_vs_control", "p_value", "confidence",
}

const workbookSheet = "report"

// JSON encodes the experiment and its report as one indented document.
func JSON(exp models.ExperimentResponse, report models.Report) (*Artifact, error) {
	content, err := json.MarshalIndent(Document{Experiment: exp, Report: report}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return &Artifact{
		Content:     content,
		ContentType: "application/json",
		Filename:    fmt.Sprintf("experiment-%s-report.json", report.ExperimentID),
	}, nil
}

// CSV encodes the report as a header line plus a single data row.
func CSV(report models.Report) (*Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	row := []string{
		report.ExperimentID,
		report.Status,
		report.Recommendation,
		strconv.FormatInt(report.Exposures, 10),
		strconv.FormatInt(report.Conversions, 10),
		formatFloat(report.UpliftVsControl),
		formatFloat(report.PValue),
		formatFloat(report.Confidence),
	}
	if err := w.Write(row); err != nil {
		return nil, fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return &Artifact{
		Content:     buf.Bytes(),
		ContentType: "text/csv",
		Filename:    fmt.Sprintf("experiment-%s-report.csv", report.ExperimentID),
	}, nil
}

// Workbook encodes the report as an xlsx workbook with one field/value sheet.
func Workbook(report models.Report) (*Artifact, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", workbookSheet); err != nil {
		return nil, fmt.Errorf("name workbook sheet: %w", err)
	}

	rows := [][2]any{
		{"field", "value"},
		{"experiment_id", report.ExperimentID},
		{"status", report.Status},
		{"recommendation", report.Recommendation},
		{"assignment_policy", report.AssignmentPolicy},
		{"mde", report.MDE},
		{"sample_size_required", report.SampleSizeRequired},
		{"sample_progress", report.SampleProgress},
		{"exposures", report.Exposures},
		{"conversions", report.Conversions},
		{"control_conversion_rate", report.ControlConversionRate},
		{"treatment_conversion_rate", report.TreatmentConversionRate},
		{"uplift_vs_control", report.UpliftVsControl},
		{"uplift_ci_lower", report.UpliftCILower},
		{"uplift_ci_upper", report.UpliftCIUpper},
		{"p_value", report.PValue},
		{"confidence", report.Confidence},
		{"guardrails_breached", report.GuardrailsBreached},
		{"last_updated_at", report.LastUpdatedAt.String()},
	}
	for i, row := range rows {
		if err := f.SetCellValue(workbookSheet, fmt.Sprintf("A%d", i+1), row[0]); err != nil {
			return nil, fmt.Errorf("write workbook cell: %w", err)
		}
		if err := f.SetCellValue(workbookSheet, fmt.Sprintf("B%d", i+1), row[1]); err != nil {
			return nil, fmt.Errorf("write workbook cell: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return &Artifact{
		Content:     buf.Bytes(),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Filename:    fmt.Sprintf("experiment-%s-report.xlsx", report.ExperimentID),
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
