package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Fold is one cross-validation partition, given as row indices
type Fold struct {
	Train []int
	Test  []int
}

// classMembers groups row indices by label, classes in lexicographic order
func classMembers(y []string) ([]string, map[string][]int) {
	members := make(map[string][]int)
	for i, label := range y {
		members[label] = append(members[label], i)
	}
	classes := make([]string, 0, len(members))
	for c := range members {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes, members
}

// StratifiedSplit holds out round(n_c * testSize) rows of every class, clamped
// so each class keeps at least one row on both sides.
func StratifiedSplit(y []string, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}
	rng := rand.New(rand.NewSource(seed))
	classes, members := classMembers(y)

	for _, c := range classes {
		idx := append([]int(nil), members[c]...)
		if len(idx) < 2 {
			return nil, nil, fmt.Errorf("class %q has %d rows, cannot stratify", c, len(idx))
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(math.Round(float64(len(idx)) * testSize))
		if nTest < 1 {
			nTest = 1
		}
		if nTest > len(idx)-1 {
			nTest = len(idx) - 1
		}
		test = append(test, idx[:nTest]...)
		train = append(train, idx[nTest:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StratifiedKFold partitions y into k folds preserving class proportions.
// Per-fold class quotas come from dealing the class-sorted labels round-robin,
// then each class's shuffled rows fill those quotas.
func StratifiedKFold(y []string, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("cannot split %d rows into %d folds", len(y), k)
	}
	rng := rand.New(rand.NewSource(seed))
	classes, members := classMembers(y)

	// quotas[f][c] counts rows of class c assigned to fold f
	quotas := make([][]int, k)
	for f := range quotas {
		quotas[f] = make([]int, len(classes))
	}
	pos := 0
	for ci, c := range classes {
		for range members[c] {
			quotas[pos%k][ci]++
			pos++
		}
	}

	assignment := make([]int, len(y))
	for ci, c := range classes {
		folds := make([]int, 0, len(members[c]))
		for f := 0; f < k; f++ {
			for n := 0; n < quotas[f][ci]; n++ {
				folds = append(folds, f)
			}
		}
		rng.Shuffle(len(folds), func(i, j int) { folds[i], folds[j] = folds[j], folds[i] })
		for i, row := range members[c] {
			assignment[row] = folds[i]
		}
	}

	result := make([]Fold, k)
	for row, f := range assignment {
		for other := range result {
			if other == f {
				result[other].Test = append(result[other].Test, row)
			} else {
				result[other].Train = append(result[other].Train, row)
			}
		}
	}
	for f, fold := range result {
		if len(fold.Test) == 0 || len(fold.Train) == 0 {
			return nil, fmt.Errorf("fold %d is empty", f)
		}
	}
	return result, nil
}

// Subset selects rows of X and y by index
func Subset(X [][]float64, y []string, indices []int) ([][]float64, []string) {
	subX := make([][]float64, len(indices))
	subY := make([]string, len(indices))
	for i, idx := range indices {
		subX[i] = X[idx]
		subY[i] = y[idx]
	}
	return subX, subY
}
