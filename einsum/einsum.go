// Package einsum plans and executes pairwise contractions of labelled tensor networks.
//
// Every label appears at most twice across a network.
// A label that appears twice is summed over, and a label that appears once is an open leg of the result.
package einsum

import (
	"fmt"
	"slices"

	"github.com/fumin/ttn/backend"
	"github.com/pkg/errors"
)

// Strategy selects how PlanPath searches for a contraction order.
type Strategy string

const (
	// Greedy repeatedly contracts the pair that shrinks the network the most.
	Greedy Strategy = "greedy"
	// Optimal searches all orders for the one with the fewest multiplications.
	Optimal Strategy = "optimal"
	// Auto uses Optimal for small networks and Greedy otherwise.
	Auto Strategy = "auto"
)

const (
	// maxOptimal is the largest network Optimal accepts.
	maxOptimal  = 7
	autoOptimal = 5
)

// Operand describes one tensor of a network.
type Operand struct {
	Shape  []int
	Labels []int
}

// Path is a pairwise contraction order.
// Each step names the positions of two tensors in the current list, which are removed and whose product is appended to the end.
type Path [][2]int

// PlanPath computes a contraction order whose result has the legs open in order.
func PlanPath(operands []Operand, open []int, strategy Strategy) (Path, error) {
	dims, err := validate(operands, open)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	terms := make([][]int, 0, len(operands))
	for _, o := range operands {
		terms = append(terms, o.Labels)
	}

	switch strategy {
	case Auto:
		if len(operands) <= autoOptimal {
			return optimal(terms, dims), nil
		}
		return greedy(terms, dims), nil
	case Greedy:
		return greedy(terms, dims), nil
	case Optimal:
		if len(operands) > maxOptimal {
			return nil, errors.Errorf("%d operands exceeds %d", len(operands), maxOptimal)
		}
		return optimal(terms, dims), nil
	default:
		return nil, errors.Errorf("unknown strategy %q", strategy)
	}
}

// Flops returns the number of multiplications performed by following path.
func Flops(operands []Operand, path Path) (int, error) {
	dims, err := validate(operands, nil)
	if err != nil {
		return -1, errors.Wrap(err, "")
	}
	terms := make([][]int, 0, len(operands))
	for _, o := range operands {
		terms = append(terms, o.Labels)
	}
	var total int
	for _, step := range path {
		if err := checkStep(step, len(terms)); err != nil {
			return -1, errors.Wrap(err, "")
		}
		result, cost := pair(terms[step[0]], terms[step[1]], dims)
		total += cost
		terms = advance(terms, step, result)
	}
	return total, nil
}

// Contract executes path over tensors and returns a tensor whose axes follow open.
func Contract(b backend.Backend, tensors []backend.Tensor, labels [][]int, open []int, path Path) (backend.Tensor, error) {
	if len(tensors) != len(labels) {
		return nil, errors.Errorf("%d tensors %d labels", len(tensors), len(labels))
	}
	operands := make([]Operand, 0, len(tensors))
	for i, t := range tensors {
		operands = append(operands, Operand{Shape: t.Shape(), Labels: labels[i]})
	}
	if _, err := validate(operands, open); err != nil {
		return nil, errors.Wrap(err, "")
	}

	ts := slices.Clone(tensors)
	ls := slices.Clone(labels)
	for i, step := range path {
		if err := checkStep(step, len(ts)); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		x, y := ls[step[0]], ls[step[1]]
		axes := make([][2]int, 0)
		for j, l := range x {
			if k := slices.Index(y, l); k >= 0 {
				axes = append(axes, [2]int{j, k})
			}
		}
		result, _ := pair(x, y, nil)
		z := b.Contract(ts[step[0]], ts[step[1]], axes)
		ts = advance(ts, step, z)
		ls = advance(ls, step, result)
	}
	if len(ts) != 1 {
		return nil, errors.Errorf("%d tensors left after %d steps", len(ts), len(path))
	}

	perm := make([]int, 0, len(open))
	for _, l := range open {
		perm = append(perm, slices.Index(ls[0], l))
	}
	if len(perm) != len(ls[0]) {
		return nil, errors.Errorf("%#v %#v", ls[0], open)
	}
	for i, p := range perm {
		if p != i {
			return b.Transpose(ts[0], perm...), nil
		}
	}
	return ts[0], nil
}

// validate checks the labelling rules and returns the dimension of each label.
// When open is nil the open legs are not checked.
func validate(operands []Operand, open []int) (map[int]int, error) {
	if len(operands) == 0 {
		return nil, errors.Errorf("empty network")
	}
	dims := make(map[int]int)
	count := make(map[int]int)
	for i, o := range operands {
		if len(o.Shape) != len(o.Labels) {
			return nil, errors.Errorf("operand %d shape %#v labels %#v", i, o.Shape, o.Labels)
		}
		for j, l := range o.Labels {
			if slices.Index(o.Labels, l) != j {
				return nil, errors.Errorf("operand %d repeats label %d", i, l)
			}
			if d, ok := dims[l]; ok && d != o.Shape[j] {
				return nil, errors.Errorf("label %d dimension %d %d", l, d, o.Shape[j])
			}
			dims[l] = o.Shape[j]
			count[l]++
			if count[l] > 2 {
				return nil, errors.Errorf("label %d appears more than twice", l)
			}
		}
	}
	if open == nil {
		return dims, nil
	}

	for _, l := range open {
		if count[l] != 1 {
			return nil, errors.Errorf("open label %d appears %d times", l, count[l])
		}
	}
	for l, c := range count {
		if c == 1 && !slices.Contains(open, l) {
			return nil, errors.Errorf("label %d is neither summed nor open", l)
		}
	}
	return dims, nil
}

func checkStep(step [2]int, n int) error {
	if step[0] == step[1] || step[0] < 0 || step[1] < 0 || step[0] >= n || step[1] >= n {
		return errors.Errorf("%#v %d", step, n)
	}
	return nil
}

// pair returns the labels of the product of x and y and the number of multiplications it takes.
func pair(x, y []int, dims map[int]int) ([]int, int) {
	result := make([]int, 0, len(x)+len(y))
	cost := 1
	for _, l := range x {
		cost *= dims[l]
		if !slices.Contains(y, l) {
			result = append(result, l)
		}
	}
	for _, l := range y {
		if !slices.Contains(x, l) {
			cost *= dims[l]
			result = append(result, l)
		}
	}
	return result, cost
}

// advance removes the two entries named by step and appends z.
func advance[T any](list []T, step [2]int, z T) []T {
	hi, lo := max(step[0], step[1]), min(step[0], step[1])
	next := make([]T, 0, len(list)-1)
	next = append(next, list[:lo]...)
	next = append(next, list[lo+1:hi]...)
	next = append(next, list[hi+1:]...)
	return append(next, z)
}

func size(labels []int, dims map[int]int) int {
	n := 1
	for _, l := range labels {
		n *= dims[l]
	}
	return n
}

func connected(x, y []int) bool {
	for _, l := range x {
		if slices.Contains(y, l) {
			return true
		}
	}
	return false
}
