package einsum

import (
	"math"
)

func greedy(terms [][]int, dims map[int]int) Path {
	path := make(Path, 0, len(terms))
	for len(terms) > 1 {
		best := [2]int{-1, -1}
		bestShared := false
		bestRemoved, bestCost := math.MaxInt, math.MaxInt
		for i := 0; i < len(terms); i++ {
			for j := i + 1; j < len(terms); j++ {
				shared := connected(terms[i], terms[j])
				if bestShared && !shared {
					continue
				}
				result, cost := pair(terms[i], terms[j], dims)
				removed := size(result, dims) - size(terms[i], dims) - size(terms[j], dims)
				better := shared && !bestShared
				better = better || removed < bestRemoved || (removed == bestRemoved && cost < bestCost)
				if better {
					best, bestShared, bestRemoved, bestCost = [2]int{i, j}, shared, removed, cost
				}
			}
		}
		result, _ := pair(terms[best[0]], terms[best[1]], dims)
		path = append(path, best)
		terms = advance(terms, best, result)
	}
	return path
}

// optimal performs a depth first search over all pairwise orders, pruning branches that already cost more than the best found.
// Disconnected pairs are only considered when no connected pair remains.
func optimal(terms [][]int, dims map[int]int) Path {
	s := &search{dims: dims, bestCost: math.MaxInt}
	s.visit(terms, make(Path, 0, len(terms)), 0)
	return s.best
}

type search struct {
	dims     map[int]int
	best     Path
	bestCost int
}

func (s *search) visit(terms [][]int, path Path, cost int) {
	if cost >= s.bestCost {
		return
	}
	if len(terms) <= 1 {
		s.best = append(Path(nil), path...)
		s.bestCost = cost
		return
	}

	anyConnected := false
	for i := 0; i < len(terms) && !anyConnected; i++ {
		for j := i + 1; j < len(terms); j++ {
			if connected(terms[i], terms[j]) {
				anyConnected = true
				break
			}
		}
	}
	for i := 0; i < len(terms); i++ {
		for j := i + 1; j < len(terms); j++ {
			if anyConnected && !connected(terms[i], terms[j]) {
				continue
			}
			result, c := pair(terms[i], terms[j], s.dims)
			step := [2]int{i, j}
			s.visit(advance(terms, step, result), append(path, step), cost+c)
		}
	}
}
