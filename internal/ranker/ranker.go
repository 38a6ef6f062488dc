// Package ranker orders an unlabeled catalog by the model's probability of
// a target class.
package ranker

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/kartoza/redshift/internal/artifact"
	"github.com/kartoza/redshift/internal/catalog"
	"github.com/kartoza/redshift/internal/inference"
)

// DefaultOutputFile is the export name used by the rank command.
const DefaultOutputFile = "top10_likely_planets.csv"

// Ranked is the sorted catalog. Table keeps every original column plus the
// appended probability column; Scores[i] belongs to Table.Rows[i].
type Ranked struct {
	Target string
	Column string
	Table  *catalog.Table
	Scores []float64
}

// ColumnName is the name of the probability column appended for target.
func ColumnName(target string) string {
	return "P_" + target
}

// RankFile loads a catalog and ranks it.
func RankFile(a *artifact.Artifact, path, encoding, target string, topN int) (*Ranked, error) {
	t, err := catalog.Load(path, encoding)
	if err != nil {
		return nil, err
	}
	return Rank(a, t, target, topN)
}

// Rank scores every row of t for target and returns the topN most likely
// rows, highest first. Rows with equal scores keep their catalog order.
// topN <= 0 returns every row.
func Rank(a *artifact.Artifact, t *catalog.Table, target string, topN int) (*Ranked, error) {
	eng, err := inference.New(a, target)
	if err != nil {
		return nil, err
	}

	// label and identifier columns are ignored by Matrix but stay in the output
	rows, err := eng.Schema().Matrix(t.Columns, t.Rows)
	if err != nil {
		return nil, err
	}
	probs, err := eng.ProbabilityOf(target, rows)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return probs[order[i]] > probs[order[j]] })
	if topN > 0 && topN < len(order) {
		order = order[:topN]
	}

	col := ColumnName(target)
	out := &Ranked{
		Target: target,
		Column: col,
		Table:  &catalog.Table{Columns: append(append([]string(nil), t.Columns...), col)},
		Scores: make([]float64, len(order)),
	}
	for i, r := range order {
		row := make([]string, len(t.Columns), len(t.Columns)+1)
		copy(row, t.Rows[r])
		out.Table.Rows = append(out.Table.Rows, append(row, strconv.FormatFloat(probs[r], 'f', -1, 64)))
		out.Scores[i] = probs[r]
	}
	return out, nil
}

// Records returns the ranked rows as column → value maps for JSON output.
func (r *Ranked) Records() []map[string]string {
	out := make([]map[string]string, r.Table.Len())
	for i := range out {
		out[i] = r.Table.Record(i)
	}
	return out
}

// WriteCSV exports the ranked table.
func (r *Ranked) WriteCSV(path string) error {
	if err := catalog.Write(path, r.Table); err != nil {
		return fmt.Errorf("failed to write ranking: %w", err)
	}
	return nil
}
