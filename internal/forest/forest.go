// Package forest implements a bagged ensemble of CART classification trees
// with per-split feature subsampling and class-balanced sample weights.
package forest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"strconv"

	"github.com/gonum/floats"
	"golang.org/x/sync/errgroup"
)

// Config holds forest hyperparameters
type Config struct {
	Trees           int    `yaml:"trees" json:"trees"`
	MaxDepth        int    `yaml:"max_depth" json:"max_depth"` // 0 = unlimited
	MinSamplesSplit int    `yaml:"min_samples_split" json:"min_samples_split"`
	MinSamplesLeaf  int    `yaml:"min_samples_leaf" json:"min_samples_leaf"`
	MaxFeatures     string `yaml:"max_features" json:"max_features"` // sqrt, log2, all or a count
	ClassWeight     string `yaml:"class_weight" json:"class_weight"` // balanced or none
	Seed            int64  `yaml:"seed" json:"seed"`
	Workers         int    `yaml:"workers" json:"-"` // 0 = GOMAXPROCS
}

// DefaultConfig returns the defaults used for the transit catalogs
func DefaultConfig() Config {
	return Config{
		Trees:           300,
		MaxDepth:        20,
		MinSamplesSplit: 8,
		MinSamplesLeaf:  4,
		MaxFeatures:     "sqrt",
		ClassWeight:     "balanced",
		Seed:            42,
	}
}

// Validate checks that the configuration can be fitted
func (c Config) Validate() error {
	if c.Trees < 1 {
		return fmt.Errorf("forest: trees must be >= 1, got %d", c.Trees)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("forest: max_depth must be >= 0, got %d", c.MaxDepth)
	}
	if c.MinSamplesSplit < 2 {
		return fmt.Errorf("forest: min_samples_split must be >= 2, got %d", c.MinSamplesSplit)
	}
	if c.MinSamplesLeaf < 1 {
		return fmt.Errorf("forest: min_samples_leaf must be >= 1, got %d", c.MinSamplesLeaf)
	}
	switch c.ClassWeight {
	case "", "balanced", "none":
	default:
		return fmt.Errorf("forest: unknown class_weight %q", c.ClassWeight)
	}
	if _, err := c.featuresPerSplit(1); err != nil {
		return err
	}
	return nil
}

func (c Config) featuresPerSplit(n int) (int, error) {
	var m int
	switch c.MaxFeatures {
	case "sqrt":
		m = int(math.Sqrt(float64(n)))
	case "log2":
		m = int(math.Log2(float64(n)))
	case "", "all":
		m = n
	default:
		v, err := strconv.Atoi(c.MaxFeatures)
		if err != nil || v < 1 {
			return 0, fmt.Errorf("forest: invalid max_features %q", c.MaxFeatures)
		}
		m = v
	}
	if m < 1 {
		m = 1
	}
	if m > n {
		m = n
	}
	return m, nil
}

// Node is one tree node. Leaves have Feature == -1 and carry the normalized
// class distribution of the training samples that reached them.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64
}

// Tree is a flattened decision tree; Nodes[0] is the root
type Tree struct {
	Nodes []Node
}

// Forest is a fitted ensemble. All fields are exported for gob persistence
// and must not be modified after Fit.
type Forest struct {
	Trees       []Tree
	NumClasses  int
	NumFeatures int
	Importances []float64
	Config      Config
}

// Fit trains a forest on rows X with class indices y in [0, numClasses).
// Tree i draws from its own generator seeded from cfg.Seed and i, so the
// result does not depend on the worker count.
func Fit(ctx context.Context, cfg Config, X [][]float64, y []int, numClasses int) (*Forest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, fmt.Errorf("forest: no training rows")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("forest: %d rows but %d labels", len(X), len(y))
	}
	if numClasses < 1 {
		return nil, fmt.Errorf("forest: numClasses must be >= 1")
	}

	nf := len(X[0])
	if nf == 0 {
		return nil, fmt.Errorf("forest: rows have no features")
	}
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("forest: row %d has %d features, expected %d", i, len(row), nf)
		}
	}
	for i, c := range y {
		if c < 0 || c >= numClasses {
			return nil, fmt.Errorf("forest: row %d has class %d outside [0,%d)", i, c, numClasses)
		}
	}

	mtry, err := cfg.featuresPerSplit(nf)
	if err != nil {
		return nil, err
	}
	weights := classWeights(cfg.ClassWeight, y, numClasses)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]Tree, cfg.Trees)
	imps := make([][]float64, cfg.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < cfg.Trees; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(treeSeed(cfg.Seed, i)))
			b := &builder{
				cfg:        cfg,
				X:          X,
				y:          y,
				weights:    weights,
				numClasses: numClasses,
				mtry:       mtry,
				rng:        rng,
				importance: make([]float64, nf),
			}
			b.build(bootstrap(rng, len(X)), 0)
			trees[i] = Tree{Nodes: b.nodes}
			imps[i] = b.importance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("forest: fit cancelled: %w", err)
	}

	return &Forest{
		Trees:       trees,
		NumClasses:  numClasses,
		NumFeatures: nf,
		Importances: averageImportances(imps, nf),
		Config:      cfg,
	}, nil
}

// PredictProba returns the mean leaf distribution over all trees
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.NumFeatures {
		return nil, fmt.Errorf("forest: expected %d features, got %d", f.NumFeatures, len(x))
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest: no trees")
	}

	proba := make([]float64, f.NumClasses)
	for i := range f.Trees {
		floats.Add(proba, f.Trees[i].leaf(x))
	}
	floats.Scale(1/float64(len(f.Trees)), proba)
	return proba, nil
}

// Predict returns the class with the highest mean probability; ties go to
// the lowest class index.
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return floats.MaxIdx(proba), nil
}

// FeatureImportances returns a copy of the normalized impurity-decrease
// importances, indexed like the training features.
func (f *Forest) FeatureImportances() []float64 {
	return append([]float64(nil), f.Importances...)
}

func (t *Tree) leaf(x []float64) []float64 {
	n := 0
	for {
		node := &t.Nodes[n]
		if node.Feature < 0 {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
}

func treeSeed(seed int64, i int) int64 {
	// splitmix64 step keeps neighbouring trees' streams unrelated
	z := uint64(seed) + uint64(i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return int64(z ^ (z >> 31))
}

func bootstrap(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

// classWeights computes n / (k * n_c) per class for "balanced", 1 otherwise
func classWeights(mode string, y []int, k int) []float64 {
	w := make([]float64, k)
	if mode != "balanced" {
		for c := range w {
			w[c] = 1
		}
		return w
	}

	counts := make([]int, k)
	for _, c := range y {
		counts[c]++
	}
	for c, n := range counts {
		if n > 0 {
			w[c] = float64(len(y)) / (float64(k) * float64(n))
		}
	}
	return w
}

func averageImportances(perTree [][]float64, nf int) []float64 {
	out := make([]float64, nf)
	for _, imp := range perTree {
		total := floats.Sum(imp)
		if total <= 0 {
			continue
		}
		for j, v := range imp {
			out[j] += v / total
		}
	}
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}
