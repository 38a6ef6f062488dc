package forest

import (
	"math/rand"
	"sort"
)

type builder struct {
	cfg        Config
	X          [][]float64
	y          []int
	weights    []float64
	numClasses int
	mtry       int
	rng        *rand.Rand

	nodes      []Node
	importance []float64
}

type split struct {
	feature   int
	threshold float64
	score     float64
	ok        bool
}

// build grows the subtree for the samples in idx (with bootstrap
// duplicates) and returns its node index.
func (b *builder) build(idx []int, depth int) int {
	dist, total := b.distribution(idx)
	impurity := gini(dist, total)

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Left: -1, Right: -1})

	if b.isLeaf(len(idx), depth, impurity) {
		b.nodes[id].Value = normalize(dist, total)
		return id
	}

	best := b.bestSplit(idx)
	if !best.ok {
		b.nodes[id].Value = normalize(dist, total)
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	ld, lw := b.distribution(left)
	rd, rw := b.distribution(right)
	b.importance[best.feature] += total*impurity - lw*gini(ld, lw) - rw*gini(rd, rw)

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)

	b.nodes[id] = Node{Feature: best.feature, Threshold: best.threshold, Left: l, Right: r}
	return id
}

func (b *builder) isLeaf(n, depth int, impurity float64) bool {
	if b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth {
		return true
	}
	if n < b.cfg.MinSamplesSplit || n < 2*b.cfg.MinSamplesLeaf {
		return true
	}
	return impurity <= 1e-12
}

// bestSplit scans up to mtry non-constant features in random order and
// returns the threshold that maximizes the weighted Gini decrease.
func (b *builder) bestSplit(idx []int) split {
	var best split
	n := len(idx)
	sorted := make([]int, n)
	left := make([]float64, b.numClasses)
	right := make([]float64, b.numClasses)

	tried := 0
	for _, f := range b.rng.Perm(len(b.importance)) {
		if tried >= b.mtry {
			break
		}

		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X[sorted[a]][f] < b.X[sorted[c]][f]
		})
		if b.X[sorted[0]][f] == b.X[sorted[n-1]][f] {
			continue
		}
		tried++

		for c := range left {
			left[c] = 0
			right[c] = 0
		}
		var lw, rw float64
		for _, i := range sorted {
			w := b.weights[b.y[i]]
			right[b.y[i]] += w
			rw += w
		}

		minLeaf := b.cfg.MinSamplesLeaf
		for pos := 1; pos < n; pos++ {
			prev := sorted[pos-1]
			w := b.weights[b.y[prev]]
			left[b.y[prev]] += w
			right[b.y[prev]] -= w
			lw += w
			rw -= w

			lo, hi := b.X[prev][f], b.X[sorted[pos]][f]
			if lo == hi {
				continue
			}
			if pos < minLeaf || n-pos < minLeaf {
				continue
			}
			if lw <= 0 || rw <= 0 {
				continue
			}

			// Maximizing sum(l^2)/lw + sum(r^2)/rw minimizes the
			// weighted child Gini impurity.
			score := sumSquares(left)/lw + sumSquares(right)/rw
			if !best.ok || score > best.score {
				thr := lo + (hi-lo)/2
				if thr >= hi {
					thr = lo
				}
				best = split{feature: f, threshold: thr, score: score, ok: true}
			}
		}
	}
	return best
}

func (b *builder) distribution(idx []int) ([]float64, float64) {
	dist := make([]float64, b.numClasses)
	var total float64
	for _, i := range idx {
		w := b.weights[b.y[i]]
		dist[b.y[i]] += w
		total += w
	}
	return dist, total
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return 1 - sumSquares(dist)/(total*total)
}

func sumSquares(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

func normalize(dist []float64, total float64) []float64 {
	out := make([]float64, len(dist))
	if total <= 0 {
		for c := range out {
			out[c] = 1 / float64(len(out))
		}
		return out
	}
	for c, v := range dist {
		out[c] = v / total
	}
	return out
}
