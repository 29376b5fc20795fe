package export

import (
	"fmt"
	"strings"

	"gosplit/domain/experiment"
	"gosplit/models"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Brief renders the decision brief as a markdown document: headline,
// metric table, guardrail list, and the recommendation rationale.
func Brief(exp models.ExperimentResponse, report models.Report) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Decision Brief: %s\n\n", exp.Name)
	fmt.Fprintf(&b, "Experiment `%s`, owned by %s. Status **%s**, policy %s.\n\n",
		exp.ID, exp.OwnerTeam, report.Status, report.AssignmentPolicy)
	fmt.Fprintf(&b, "%s\n\n", headline(report))

	b.WriteString("## Metrics\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| Sample progress | %.1f%% of %d required |\n", report.SampleProgress*100, report.SampleSizeRequired)
	fmt.Fprintf(&b, "| Exposures | %d |\n", report.Exposures)
	fmt.Fprintf(&b, "| Conversions | %d |\n", report.Conversions)
	fmt.Fprintf(&b, "| Control conversion rate | %.2f%% |\n", report.ControlConversionRate*100)
	fmt.Fprintf(&b, "| Treatment conversion rate | %.2f%% |\n", report.TreatmentConversionRate*100)
	fmt.Fprintf(&b, "| Uplift vs control | %+.2f%% |\n", report.UpliftVsControl*100)
	fmt.Fprintf(&b, "| Uplift CI | [%+.2f%%, %+.2f%%] |\n", report.UpliftCILower*100, report.UpliftCIUpper*100)
	fmt.Fprintf(&b, "| P-value | %.4f |\n", report.PValue)
	fmt.Fprintf(&b, "| Confidence | %.1f%% |\n", report.Confidence*100)
	b.WriteString("\n")

	b.WriteString("## Guardrails\n\n")
	if len(report.Guardrails) == 0 {
		b.WriteString("No guardrail observations recorded.\n\n")
	} else {
		for _, g := range report.Guardrails {
			fmt.Fprintf(&b, "- **%s**: %s (value %g, limit %s %g)\n",
				g.Name, g.Status, g.Value, directionGlyph(g.Direction), g.ThresholdValue)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Recommendation\n\n**%s**\n\n%s\n", report.Recommendation, rationale(report))

	return []byte(b.String())
}

// BriefHTML renders the markdown brief to HTML.
func BriefHTML(doc []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.Render(p.Parse(doc), renderer)
}

func headline(report models.Report) string {
	switch report.Recommendation {
	case experiment.RecommendationPass.String():
		return fmt.Sprintf("Treatment is outperforming control by %+.2f%% with p=%.4f.",
			report.UpliftVsControl*100, report.PValue)
	case experiment.RecommendationFail.String():
		if report.GuardrailsBreached > 0 {
			return fmt.Sprintf("%d guardrail(s) breached; the experiment should be stopped.", report.GuardrailsBreached)
		}
		return fmt.Sprintf("Treatment is underperforming control by %.2f%%; the experiment should be stopped.",
			-report.UpliftVsControl*100)
	case experiment.RecommendationInconclusive.String():
		return "The sample is complete but no decisive effect was found."
	default:
		return fmt.Sprintf("Data collection is %.1f%% complete; no decision yet.", report.SampleProgress*100)
	}
}

func rationale(report models.Report) string {
	switch report.Recommendation {
	case experiment.RecommendationPass.String():
		return fmt.Sprintf(
			"The observed uplift of %+.2f%% clears the minimum detectable effect of %.2f%% "+
				"and the p-value of %.4f is below the significance threshold. "+
				"The treatment can be rolled out.",
			report.UpliftVsControl*100, report.MDE*100, report.PValue)
	case experiment.RecommendationFail.String():
		if report.GuardrailsBreached > 0 {
			return fmt.Sprintf(
				"%d guardrail observation(s) are in breach. A breached guardrail overrides the "+
					"primary metric once the sample completes, so the treatment should be rolled back.",
				report.GuardrailsBreached)
		}
		return fmt.Sprintf(
			"The treatment performs significantly worse than control (uplift %+.2f%%, p=%.4f). "+
				"The treatment should be rolled back.",
			report.UpliftVsControl*100, report.PValue)
	case experiment.RecommendationInconclusive.String():
		return fmt.Sprintf(
			"The required sample of %d exposures has been collected, but the observed effect does "+
				"not clear the minimum detectable effect of %.2f%% at the configured significance level. "+
				"Consider a larger redesign or accept the null result.",
			report.SampleSizeRequired, report.MDE*100)
	default:
		return fmt.Sprintf(
			"Only %d of %d required exposures have been observed (%.1f%%). "+
				"Conclusions drawn before the sample completes are unreliable, so keep collecting.",
			report.Exposures, report.SampleSizeRequired, report.SampleProgress*100)
	}
}

func directionGlyph(direction string) string {
	if direction == experiment.GuardrailMin.String() {
		return ">="
	}
	return "<="
}
