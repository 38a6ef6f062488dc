package main

import (
	"fmt"

	"github.com/kartoza/redshift/internal/candidates"
	"github.com/spf13/cobra"
)

var candidatesFlags struct {
	db  string
	out string
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Manage candidates saved through the API",
}

var candidatesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the saved candidates to a CSV catalog",
	Long: `Export writes every saved candidate as one row, with Planet_name first
and the remaining fields in sorted column order. The result can be fed
straight to rank.`,
	RunE: runCandidatesExport,
}

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved candidates",
	RunE:  runCandidatesList,
}

func init() {
	f := candidatesCmd.PersistentFlags()
	f.StringVar(&candidatesFlags.db, "db", "", "Candidate database (default from settings)")
	candidatesExportCmd.Flags().StringVarP(&candidatesFlags.out, "out", "o", "candidates.csv", "Output CSV")

	candidatesCmd.AddCommand(candidatesExportCmd)
	candidatesCmd.AddCommand(candidatesListCmd)
}

func openCandidates() (*candidates.Store, error) {
	return candidates.Open(pick(candidatesFlags.db, settings.Catalogs.CandidateDB))
}

func runCandidatesExport(cmd *cobra.Command, _ []string) error {
	store, err := openCandidates()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Export(candidatesFlags.out)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d candidates to %s\n", n, candidatesFlags.out)
	return nil
}

func runCandidatesList(cmd *cobra.Command, _ []string) error {
	store, err := openCandidates()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range records {
		fmt.Fprintf(out, "%s  %-30s  %s\n", r.ID, r.Name, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "%d candidates\n", len(records))
	return nil
}
