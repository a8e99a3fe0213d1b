package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/canopy/internal/presentation/graph"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/registry"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the survey stages",
	Long: `Prints the stage table (after applying --stages overrides). With --mermaid the
pipeline is exported as a Mermaid flowchart; --session overlays a session's progress.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		sessionID, _ := cmd.Flags().GetString("session")
		out := cmd.OutOrStdout()

		reg, err := registry.LoadFile(cfg.Pipeline.StagesFile)
		if err != nil {
			return err
		}

		if !mermaid {
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tPARAMETER\tNAME\tKIND\tINPUT")
			for _, st := range reg.Stages() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", st.Index, st.ParameterID, st.Name, st.Kind, stageInput(st))
			}
			return tw.Flush()
		}

		var overlay *graph.GraphOverlay
		if sessionID != "" {
			stack, err := buildStack()
			if err != nil {
				return err
			}
			defer stack.Close()
			s, err := stack.Engine.Inspect(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", sessionID, err)
			}
			overlay = &graph.GraphOverlay{VisitedStages: s.History, CurrentStage: s.StageIndex}
		}
		fmt.Fprint(out, graph.GenerateMermaid(reg.Stages(), overlay))
		return nil
	},
}

func stageInput(st domain.Stage) string {
	switch st.Kind {
	case domain.KindCategorical:
		return fmt.Sprintf("%d options", len(st.Options))
	case domain.KindRange:
		return fmt.Sprintf("%g..%g %s", st.Min, st.Max, st.Unit)
	default:
		return "-"
	}
}

func init() {
	rootCmd.AddCommand(stagesCmd)
	stagesCmd.Flags().Bool("mermaid", false, "Export a Mermaid flowchart")
	stagesCmd.Flags().String("session", "", "Overlay a session's visited and current stages (with --mermaid)")
}
