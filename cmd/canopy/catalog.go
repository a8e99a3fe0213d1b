package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/canopy/internal/cli"
	"github.com/aretw0/canopy/pkg/adapters/file"
	"github.com/aretw0/canopy/pkg/adapters/sqlite"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and load species catalogs",
}

var catalogLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the species of the configured catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, closeFn, err := cli.OpenCatalog(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		species, err := src.Catalog(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read catalog: %w", err)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSCIENTIFIC NAME\tATTRIBUTES")
		for _, sp := range species {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", sp.ID, sp.Name, sp.ScientificName, len(sp.Attributes))
		}
		return tw.Flush()
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load a JSON or YAML species file into a SQLite catalog",
	Long: `Reads a species document and upserts every record into the SQLite catalog at --db
(default: catalog.path). Existing ids are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		if dbPath == "" {
			dbPath = cfg.Catalog.Path
		}
		if dbPath == "" {
			return fmt.Errorf("no database path: pass --db or set catalog.path")
		}

		species, err := file.ReadCatalog(args[0])
		if err != nil {
			return err
		}

		db, err := sqlite.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Put(cmd.Context(), species...); err != nil {
			return err
		}
		total, err := db.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d species into %s (%d total)\n", len(species), dbPath, total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogLsCmd, catalogImportCmd)
	catalogImportCmd.Flags().String("db", "", "SQLite database to write")
}
