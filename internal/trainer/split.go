package trainer

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// stratifiedSplit partitions row indices into train and test sets that keep
// the class proportions of y. The test set holds ceil(fraction*n) rows; each
// class's share is assigned by largest remainder and every class keeps at
// least one training row. Both partitions are returned in ascending row
// order.
func stratifiedSplit(y []int, k int, fraction float64, seed int64) (train, test []int, err error) {
	if !(fraction > 0 && fraction < 1) {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", fraction)
	}
	n := len(y)
	nTest := int(math.Ceil(fraction * float64(n)))
	nTrain := n - nTest
	if nTest < k || nTrain < k {
		return nil, nil, fmt.Errorf("cannot split %d rows of %d classes into %d train / %d test: each side needs at least one row per class", n, k, nTrain, nTest)
	}

	members := make([][]int, k)
	for i, c := range y {
		members[c] = append(members[c], i)
	}
	for c, m := range members {
		if len(m) < 2 {
			return nil, nil, fmt.Errorf("class %d has %d member(s); stratified split needs at least 2", c, len(m))
		}
	}

	counts := allocate(members, n, nTest)

	rng := rand.New(rand.NewSource(seed))
	for c, m := range members {
		perm := rng.Perm(len(m))
		for j, p := range perm {
			if j < counts[c] {
				test = append(test, m[p])
			} else {
				train = append(train, m[p])
			}
		}
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// allocate distributes nTest across classes by largest remainder, capped so
// that every class keeps one training row.
func allocate(members [][]int, n, nTest int) []int {
	k := len(members)
	counts := make([]int, k)
	rem := make([]float64, k)
	given := 0
	for c, m := range members {
		quota := float64(nTest) * float64(len(m)) / float64(n)
		counts[c] = min(int(math.Floor(quota)), len(m)-1)
		rem[c] = quota - float64(counts[c])
		given += counts[c]
	}

	order := make([]int, k)
	for c := range order {
		order[c] = c
	}
	sort.SliceStable(order, func(i, j int) bool { return rem[order[i]] > rem[order[j]] })

	// capacity is n-k >= nTest, so this terminates
	for given < nTest {
		for _, c := range order {
			if given == nTest {
				break
			}
			if counts[c] < len(members[c])-1 {
				counts[c]++
				given++
			}
		}
	}
	return counts
}
