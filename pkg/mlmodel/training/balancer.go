package training

import (
	"math/rand"
)

// Oversample duplicates randomly chosen rows of every minority class until all
// classes match the majority count. Duplicates are appended after the original
// rows, classes handled in lexicographic order.
func Oversample(X [][]float64, y []string, seed int64) ([][]float64, []string) {
	classes, members := classMembers(y)
	majority := 0
	for _, c := range classes {
		if n := len(members[c]); n > majority {
			majority = n
		}
	}

	outX := append(make([][]float64, 0, majority*len(classes)), X...)
	outY := append(make([]string, 0, majority*len(classes)), y...)

	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		idx := members[c]
		for n := len(idx); n < majority; n++ {
			pick := idx[rng.Intn(len(idx))]
			row := append([]float64(nil), X[pick]...)
			outX = append(outX, row)
			outY = append(outY, c)
		}
	}
	return outX, outY
}

// ClassCounts counts rows per label
func ClassCounts(y []string) map[string]int {
	counts := make(map[string]int)
	for _, label := range y {
		counts[label]++
	}
	return counts
}
