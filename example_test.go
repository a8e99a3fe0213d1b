package canopy_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
)

// ExampleNew_memory demonstrates a small custom pipeline over an in-memory catalog.
// With no evaluators configured, every stage is served by the attribute filter.
func ExampleNew_memory() {
	stages := []domain.Stage{
		{Index: 1, Kind: domain.KindCategorical, Name: "Land Forms", ParameterID: "land_form", EvaluatorRef: "tree_land_form",
			Options: []domain.Option{{Code: "LF01", Description: "River Valley"}, {Code: "LF10", Description: "Canyon"}}},
		{Index: 2, Kind: domain.KindRange, Name: "Soil pH", ParameterID: "soil_ph", EvaluatorRef: "tree_soil_ph", Min: 3.5, Max: 9.0, Unit: "pH"},
		{Index: 3, Kind: domain.KindTerminal, Name: "Final Results", ParameterID: "final_results"},
	}

	catalog := memory.NewCatalog([]domain.Candidate{
		{ID: "oak", Name: "English Oak", Attributes: map[string]any{
			"land_form": []any{"LF01"},
			"soil_ph":   map[string]any{"min": 4.5, "max": 7.5},
		}},
		{ID: "pine", Name: "Scots Pine", Attributes: map[string]any{
			"land_form": []any{"LF01", "LF10"},
			"soil_ph":   map[string]any{"min": 4.0, "max": 6.0},
		}},
		{ID: "juniper", Name: "Common Juniper", Attributes: map[string]any{
			"land_form": []any{"LF10"},
			"soil_ph":   map[string]any{"min": 6.0, "max": 8.5},
		}},
	})

	engine, err := canopy.New(canopy.WithStages(stages), canopy.WithCatalog(catalog))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	inputs := []domain.RawInput{
		{Selection: "LF01"},
		{From: "5", To: "7"},
	}
	for _, in := range inputs {
		res, err := engine.Submit(ctx, "session-123", in)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("advanced=%t stage=%d candidates=%d\n", res.Advanced, res.StageIndex, res.CandidateCount)
	}

	view, err := engine.Current(ctx, "session-123")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("terminal:", view.Terminal)
	for _, c := range view.Candidates {
		fmt.Println("match:", c.Name)
	}

	// Output:
	// advanced=true stage=2 candidates=2
	// advanced=true stage=3 candidates=1
	// terminal: true
	// match: English Oak
}

// ExampleParseInput shows how a line of text maps to a stage submission.
func ExampleParseInput() {
	landForms := domain.Stage{Kind: domain.KindCategorical, Options: []domain.Option{{Code: "LF01"}, {Code: "LF10"}}}
	salt := domain.Stage{Kind: domain.KindRange, Min: 0.1, Max: 5}

	fmt.Println(canopy.ParseInput(landForms, "2").Selection)
	fmt.Println(canopy.ParseInput(landForms, "lf01").Selection)

	raw := canopy.ParseInput(salt, "2.0, 4.0")
	fmt.Println(raw.From, raw.To)

	// Output:
	// LF10
	// LF01
	// 2.0 4.0
}
