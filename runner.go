package canopy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
)

// Runner handles the interactive loop of the Canopy engine using provided IO.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input     io.Reader
	Output    io.Writer
	Headless  bool
	Renderer  ContentRenderer
	SessionID string
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// Commands understood by the runner besides stage input.
const (
	CommandBack  = "back"
	CommandReset = "reset"
	CommandQuit  = "quit"
)

// NewRunner creates a new Runner for the given session.
// Input and Output must be set before Run.
func NewRunner(sessionID string) *Runner {
	return &Runner{SessionID: sessionID}
}

// Run executes the stage loop until the Terminal stage is displayed, the
// input is exhausted or the user quits.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lineReader := bufio.NewReader(r.Input)
	writer := r.Output

	if !r.Headless {
		fmt.Fprintf(writer, "--- Canopy (commands: %s, %s, %s) ---\n", CommandBack, CommandReset, CommandQuit)
	}

	lastRendered := 0
	for {
		view, err := engine.Current(ctx, r.SessionID)
		if err != nil {
			return fmt.Errorf("render error: %w", err)
		}

		// Only print the stage when it changed (fresh entry).
		if view.StageIndex != lastRendered {
			r.print(Markdown(view))
			lastRendered = view.StageIndex
		}
		if view.Terminal {
			return nil
		}

		if !r.Headless {
			fmt.Fprint(writer, "> ")
		}
		text, err := lineReader.ReadString('\n')
		input := strings.TrimSpace(text)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("input error: %w", err)
			}
			if input == "" {
				return nil
			}
		}

		switch strings.ToLower(input) {
		case CommandQuit, "exit":
			fmt.Fprintln(writer, "Bye!")
			return nil
		case CommandBack:
			if _, err := engine.GoBack(ctx, r.SessionID); err != nil {
				return err
			}
			lastRendered = 0
			continue
		case CommandReset:
			if _, err := engine.Reset(ctx, r.SessionID); err != nil {
				return err
			}
			lastRendered = 0
			continue
		}

		res, err := engine.Submit(ctx, r.SessionID, ParseInput(view.Stage, input))
		if err != nil {
			return err
		}
		if res.Error != nil {
			fmt.Fprintf(writer, "! %v\n", res.Error)
		} else if res.FailOpen && !r.Headless {
			fmt.Fprintf(writer, "(stage evaluator unavailable: %s, no filtering applied)\n", res.FailOpenCode)
		}
	}
}

func (r *Runner) print(markdown string) {
	output := markdown
	if r.Renderer != nil {
		if rendered, err := r.Renderer(markdown); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(output))
}

// ParseInput maps a line of text to the raw input of stage.
// Categorical stages take an option code or its 1-based position in the list;
// range stages take "from to" separated by spaces, a comma or a semicolon.
func ParseInput(stage domain.Stage, line string) domain.RawInput {
	line = strings.TrimSpace(line)
	switch stage.Kind {
	case domain.KindCategorical:
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(stage.Options) {
			return domain.RawInput{Selection: stage.Options[n-1].Code}
		}
		return domain.RawInput{Selection: strings.ToUpper(line)}
	case domain.KindRange:
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == ';'
		})
		var raw domain.RawInput
		if len(fields) > 0 {
			raw.From = fields[0]
		}
		if len(fields) > 1 {
			raw.To = fields[1]
		}
		return raw
	}
	return domain.RawInput{}
}
