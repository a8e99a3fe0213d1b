/*
Package canopy is a staged filter engine that narrows a tree species catalog down to the
species suited to a site.

A survey walks through a fixed table of 24 stages: two categorical stages (land form and
soil type), 21 range stages (soil, water, climate and light conditions) and a Terminal
stage that shows the result. Each collecting stage validates the user's input, hands the
current candidate set to an evaluator, and commits the narrowed set to the session.

# Concept

The engine follows a Hexagonal Architecture. The core (stage registry, input validator,
evaluator invocation and session manager) knows nothing about where sessions live, where
the catalog comes from or how evaluators run. Those concerns are ports:

  - SessionStore: memory, file, or Redis, optionally wrapped in encryption middleware.
  - CatalogSource: the built-in sample, a JSON/YAML file, or a SQLite database.
  - EvaluatorResolver: the in-process attribute filter or allow-listed external scripts.

Evaluators fail open. When a script is missing, exits non-zero or prints something that is
not a candidate list, the stage commits with the candidate set unchanged and the result
carries FailOpen. A timeout is the exception: the submission is rejected and the session
stays on the same stage.

# Usage

	eng, err := canopy.New(
		canopy.WithCatalog(memory.NewCatalog(species)),
		canopy.WithStore(file.New(".canopy/sessions")),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	res, err := eng.Submit(ctx, "site-42", domain.RawInput{Selection: "LF01"})
	if err != nil {
		log.Fatal(err) // store or catalog failure
	}
	if res.Error != nil {
		fmt.Println("rejected:", res.Error) // validation or evaluator timeout
	}

	view, _ := eng.Current(ctx, "site-42")
	fmt.Println(canopy.Markdown(view))

# Navigation

GoBack moves one stage back without touching committed parameters or candidates; a new
submission on that stage replaces the earlier value in place. Reset starts the session over
from the full catalog.

# Adapters

The same Engine backs the interactive Runner (cmd/canopy run), the HTTP API with
Server-Sent Events (pkg/adapters/http) and the Model Context Protocol server
(pkg/adapters/mcp).
*/
package canopy
