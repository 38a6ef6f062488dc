package main

import (
	"fmt"
	"path/filepath"

	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/inference"
	"github.com/kartoza/redshift/internal/logging"
	"github.com/kartoza/redshift/internal/ranker"
	"github.com/spf13/cobra"
)

var rankFlags struct {
	model    string
	catalog  string
	target   string
	top      int
	out      string
	encoding string
}

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank an unlabeled catalog by probability of the target class",
	RunE:  runRank,
}

func init() {
	f := rankCmd.Flags()
	f.StringVar(&rankFlags.model, "model", "", "Model artifact directory (default from settings)")
	f.StringVar(&rankFlags.catalog, "catalog", "", "Catalog CSV to rank (default from settings)")
	f.StringVar(&rankFlags.target, "target", "", "Class to rank by (default from settings)")
	f.IntVar(&rankFlags.top, "top", 10, "Rows to keep (0 = all)")
	f.StringVarP(&rankFlags.out, "out", "o", "", "Export CSV (default <model>/"+ranker.DefaultOutputFile+"; '-' to skip)")
	f.StringVar(&rankFlags.encoding, "encoding", "", "Catalog text encoding")
}

func runRank(cmd *cobra.Command, _ []string) error {
	model := pick(rankFlags.model, settings.ModelDir)
	path := pick(rankFlags.catalog, settings.Catalogs.Candidates)
	target := pick(rankFlags.target, settings.RankTarget)
	enc := pick(rankFlags.encoding, settings.Encoding)

	a, err := artifact.Load(model)
	if err != nil {
		return err
	}
	ranked, err := ranker.RankFile(a, path, enc, target, rankFlags.top)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Top %d most likely %s:\n", ranked.Table.Len(), target)
	nameCol := ranked.Table.Index(inference.NameField)
	if nameCol < 0 {
		nameCol = ranked.Table.Index("Name")
	}
	for i, row := range ranked.Table.Rows {
		name := fmt.Sprintf("row %d", i+1)
		if nameCol >= 0 && row[nameCol] != "" {
			name = row[nameCol]
		}
		fmt.Fprintf(out, "  %3d. %-30s %s=%.4f\n", i+1, name, ranked.Column, ranked.Scores[i])
	}

	dest := pick(rankFlags.out, filepath.Join(model, ranker.DefaultOutputFile))
	if dest == "-" {
		return nil
	}
	if err := ranked.WriteCSV(dest); err != nil {
		return err
	}
	logging.New("ranker").Info("wrote ranking", "path", dest, "rows", ranked.Table.Len())
	return nil
}

// pick returns flag unless it is empty.
func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
