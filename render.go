package canopy

import (
	"fmt"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
)

// Markdown renders a view as a markdown document: the stage prompt while
// collecting, or the results table once Terminal is reached.
func Markdown(v View) string {
	var sb strings.Builder

	if v.Terminal {
		fmt.Fprintf(&sb, "# %s\n\n", v.Stage.Name)
		fmt.Fprintf(&sb, "**%d** of %d species match every criterion.\n\n", v.CandidateCount, v.CatalogSize)
		if len(v.Candidates) > 0 {
			sb.WriteString("| ID | Name | Scientific name |\n|---|---|---|\n")
			for _, c := range v.Candidates {
				fmt.Fprintf(&sb, "| %s | %s | %s |\n", cell(c.ID), cell(c.Name), cell(c.ScientificName))
			}
			sb.WriteString("\n")
		}
		writeParameters(&sb, v.Parameters)
		return sb.String()
	}

	fmt.Fprintf(&sb, "# Stage %d/%d: %s\n\n", v.StageIndex, v.Total, v.Stage.Name)
	fmt.Fprintf(&sb, "Progress: %.0f%%, %d candidates remaining.\n\n", v.Progress*100, v.CandidateCount)

	switch v.Stage.Kind {
	case domain.KindCategorical:
		sb.WriteString("Select one option:\n\n")
		for i, o := range v.Stage.Options {
			fmt.Fprintf(&sb, "%d. `%s` %s\n", i+1, o.Code, o.Description)
		}
	case domain.KindRange:
		fmt.Fprintf(&sb, "Enter a range between **%g** and **%g** %s as `from to`.\n", v.Stage.Min, v.Stage.Max, v.Stage.Unit)
	}
	return sb.String()
}

func writeParameters(sb *strings.Builder, params []domain.CommittedParameter) {
	if len(params) == 0 {
		return
	}
	sb.WriteString("## Criteria\n\n")
	for _, p := range params {
		fmt.Fprintf(sb, "- %s: %s\n", p.ParameterID, p.Value.String())
	}
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
