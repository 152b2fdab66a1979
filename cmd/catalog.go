package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/clearclaim/docintel/internal/knowledge"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the loaded rule catalogs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := knowledge.Load()
		if err != nil {
			return eris.Wrap(err, "load rule catalog")
		}

		out := os.Stdout
		fmt.Fprintf(out, "Landmines (%d)\n", len(catalog.Landmines))
		formatRules(out, catalog.Landmines)

		fmt.Fprintf(out, "\nFavorable provisions (%d)\n", len(catalog.Favorable))
		formatRules(out, catalog.Favorable)

		fmt.Fprintf(out, "\nEndorsements (%d)\n", len(catalog.Endorsements))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, e := range catalog.Endorsements {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", e.Code, e.Title)
		}
		_ = w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func formatRules(out io.Writer, rules []knowledge.Rule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range rules {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\n", r.ID, r.Severity, r.Title)
	}
	_ = w.Flush()
}
