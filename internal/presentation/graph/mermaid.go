package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
)

// GraphOverlay contains session state to visualize on the pipeline.
type GraphOverlay struct {
	VisitedStages []int
	CurrentStage  int
}

// GenerateMermaid produces a Mermaid flowchart of the stage pipeline.
// It applies semantic styling:
// - Categorical: [/Parallelogram/]
// - Range: [Rectangle] annotated with bounds
// - Terminal: ((Circle))
// Stages are chained in index order; overlay styles mark visited and current stages.
func GenerateMermaid(stages []domain.Stage, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i, st := range stages {
		id := nodeID(st.Index)

		opener, closer := "[", "]"
		switch st.Kind {
		case domain.KindCategorical:
			opener, closer = "[/", "/]"
		case domain.KindTerminal:
			opener, closer = "((", "))"
		}

		label := fmt.Sprintf("%d. %s", st.Index, escape(st.Name))
		if st.Kind == domain.KindRange {
			label += fmt.Sprintf(" <br/> %g - %g %s", st.Min, st.Max, escape(st.Unit))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", id, opener, label, closer))

		if i+1 < len(stages) {
			arrow := "-->"
			if st.EvaluatorRef != "" {
				arrow = fmt.Sprintf("-- \"%s\" -->", escape(st.EvaluatorRef))
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", id, arrow, nodeID(stages[i+1].Index)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[int]bool)
		for _, idx := range overlay.VisitedStages {
			if idx == overlay.CurrentStage || seen[idx] || idx < 1 {
				continue
			}
			seen[idx] = true
			sb.WriteString(fmt.Sprintf("    class %s visited;\n", nodeID(idx)))
		}

		if overlay.CurrentStage > 0 {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", nodeID(overlay.CurrentStage)))
		}
	}

	return sb.String()
}

func nodeID(index int) string {
	return fmt.Sprintf("S%02d", index)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
