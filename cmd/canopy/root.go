package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aretw0/canopy/internal/cli"
	"github.com/aretw0/canopy/internal/config"
)

// cfg is resolved once per invocation by the root PersistentPreRunE.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "canopy",
	Short: "Canopy narrows a tree species catalog through a staged site survey",
	Long: `Canopy walks a site through 24 survey stages (land form, soil, water, climate, light)
and filters a species catalog down to the trees suited to it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env next to the binary is optional.
		_ = godotenv.Load()

		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ./"+config.DefaultFile+" when present)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("store", "", "Session store: memory, file, redis")
	flags.String("store-dir", "", "Directory for the file session store")
	flags.String("catalog", "", "Catalog source: memory, json, sqlite")
	flags.String("catalog-path", "", "Path of the json or sqlite catalog")
	flags.String("stages", "", "Stage override file (YAML or JSON)")
	flags.String("evaluators", "", "Evaluator config file (YAML or JSON)")
	flags.String("evaluators-dir", "", "Directory of evaluator scripts")
}

// applyFlagOverrides lets explicit flags win over file and environment values.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	overrides := []struct {
		flag   string
		target *string
	}{
		{"log-level", &c.Log.Level},
		{"store", &c.Store.Type},
		{"store-dir", &c.Store.Dir},
		{"catalog", &c.Catalog.Type},
		{"catalog-path", &c.Catalog.Path},
		{"stages", &c.Pipeline.StagesFile},
		{"evaluators", &c.Evaluators.Config},
		{"evaluators-dir", &c.Evaluators.Dir},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.target, _ = cmd.Flags().GetString(o.flag)
		}
	}
}

// buildStack wires the engine for commands that need one.
func buildStack(opts ...cli.BuildOption) (*cli.Stack, error) {
	stack, err := cli.Build(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize canopy: %w", err)
	}
	return stack, nil
}
