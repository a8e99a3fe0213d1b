package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/cli"
	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/observability"
	"github.com/aretw0/canopy/internal/presentation/tui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Walk the survey interactively",
	Long: `Starts an interactive survey on the terminal. Type an option code (or its number)
for categorical stages and "from to" for range stages. "back", "reset" and "quit" are
always available. Sessions resume when --session names an existing one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		// Logs go to stderr so they never interleave with the survey on stdout.
		logger := logging.NewWithWriter(os.Stderr, logging.ParseLevel(cfg.Log.Level), false)
		stack, err := buildStack(
			cli.WithLogger(logger),
			cli.WithHooks(observability.DebugHooks(logger)),
		)
		if err != nil {
			return err
		}
		defer stack.Close()

		runner := canopy.NewRunner(sessionID)
		runner.Input = cmd.InOrStdin()
		runner.Output = cmd.OutOrStdout()
		runner.Headless = headless
		if !headless {
			tui.PrintBanner(runner.Output)
			runner.Renderer = tui.NewRenderer(os.Stdout)
			logger.Info("Session started", "session_id", sessionID)
		}
		return runner.Run(cmd.Context(), stack.Engine)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("headless", false, "Plain IO: no banner, prompts or markdown styling")
	runCmd.Flags().String("session", "", "Session id to create or resume (default: random)")
}
