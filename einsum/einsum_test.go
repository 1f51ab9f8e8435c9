package einsum

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/fumin/ttn/backend"
	"github.com/fumin/ttn/backend/dense"
	"github.com/stretchr/testify/require"
)

type network struct {
	name   string
	shapes [][]int
	labels [][]int
	open   []int
}

func networks() []network {
	return []network{
		{
			name:   "matmul",
			shapes: [][]int{{2, 3}, {3, 4}},
			labels: [][]int{{1, 2}, {2, 3}},
			open:   []int{1, 3},
		},
		{
			name:   "transposedOutput",
			shapes: [][]int{{2, 3}, {3, 4}},
			labels: [][]int{{1, 2}, {2, 3}},
			open:   []int{3, 1},
		},
		{
			name:   "chain",
			shapes: [][]int{{2, 3}, {3, 4}, {4, 5}, {5, 2}},
			labels: [][]int{{1, 2}, {2, 3}, {3, 4}, {4, 5}},
			open:   []int{1, 5},
		},
		{
			name:   "trace",
			shapes: [][]int{{2, 3}, {3, 4}, {4, 2}},
			labels: [][]int{{1, 2}, {2, 3}, {3, 1}},
			open:   []int{},
		},
		{
			name:   "tree",
			shapes: [][]int{{1, 2, 2}, {1, 2, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}},
			labels: [][]int{{1, 2, 3}, {1, 4, 5}, {2, 6}, {4, 7}, {3, 8}, {5, 9}, {6, 7}, {8, 9}},
			open:   []int{},
		},
		{
			name:   "environment",
			shapes: [][]int{{1, 2, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}},
			labels: [][]int{{-1, -2, -3}, {-2, 6}, {4, 7}, {-3, 8}, {5, 9}, {6, 7}, {8, 9}},
			open:   []int{-1, 4, 5},
		},
	}
}

func TestContract(t *testing.T) {
	t.Parallel()
	for _, strategy := range []Strategy{Greedy, Optimal, Auto} {
		for _, test := range networks() {
			t.Run(fmt.Sprintf("%s_%s", strategy, test.name), func(t *testing.T) {
				t.Parallel()
				if strategy == Optimal && len(test.shapes) > maxOptimal {
					t.Skip()
				}
				b := dense.New()
				rng := rand.New(rand.NewPCG(0, 0))
				operands := make([]Operand, 0, len(test.shapes))
				tensors := make([]backend.Tensor, 0, len(test.shapes))
				for i, shape := range test.shapes {
					operands = append(operands, Operand{Shape: shape, Labels: test.labels[i]})
					tensors = append(tensors, random(t, b, rng, shape))
				}

				path, err := PlanPath(operands, test.open, strategy)
				require.NoError(t, err)
				require.Len(t, path, len(test.shapes)-1)

				z, err := Contract(b, tensors, test.labels, test.open, path)
				require.NoError(t, err)

				shape, expected := naive(b, tensors, test.labels, test.open)
				require.Equal(t, shape, z.Shape())
				require.InDeltaSlice(t, expected, b.Data(z), 1e-10)
			})
		}
	}
}

func TestPlanPathDeterministic(t *testing.T) {
	t.Parallel()
	for _, test := range networks() {
		operands := make([]Operand, 0, len(test.shapes))
		for i, shape := range test.shapes {
			operands = append(operands, Operand{Shape: shape, Labels: test.labels[i]})
		}
		first, err := PlanPath(operands, test.open, Greedy)
		require.NoError(t, err)
		for range 5 {
			path, err := PlanPath(operands, test.open, Greedy)
			require.NoError(t, err)
			require.Equal(t, first, path)
		}
	}
}

func TestOptimalNotWorse(t *testing.T) {
	t.Parallel()
	operands := []Operand{
		{Shape: []int{10, 2}, Labels: []int{1, 2}},
		{Shape: []int{2, 10}, Labels: []int{2, 3}},
		{Shape: []int{10, 2}, Labels: []int{3, 4}},
		{Shape: []int{2, 10}, Labels: []int{4, 5}},
	}
	open := []int{1, 5}
	g, err := PlanPath(operands, open, Greedy)
	require.NoError(t, err)
	o, err := PlanPath(operands, open, Optimal)
	require.NoError(t, err)

	gFlops, err := Flops(operands, g)
	require.NoError(t, err)
	oFlops, err := Flops(operands, o)
	require.NoError(t, err)
	require.LessOrEqual(t, oFlops, gFlops)
}

func TestInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		operands []Operand
		open     []int
	}{
		{
			name:     "thrice",
			operands: []Operand{{Shape: []int{2}, Labels: []int{1}}, {Shape: []int{2}, Labels: []int{1}}, {Shape: []int{2}, Labels: []int{1}}},
			open:     []int{},
		},
		{
			name:     "repeated",
			operands: []Operand{{Shape: []int{2, 2}, Labels: []int{1, 1}}},
			open:     []int{},
		},
		{
			name:     "dimension",
			operands: []Operand{{Shape: []int{2}, Labels: []int{1}}, {Shape: []int{3}, Labels: []int{1}}},
			open:     []int{},
		},
		{
			name:     "dangling",
			operands: []Operand{{Shape: []int{2, 3}, Labels: []int{1, 2}}},
			open:     []int{1},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := PlanPath(test.operands, test.open, Greedy)
			require.Error(t, err)
		})
	}
}

func random(t *testing.T, b backend.Backend, rng *rand.Rand, shape []int) backend.Tensor {
	data := make([]float64, backend.Size(shape))
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	x, err := b.FromSlice(data, shape...)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return x
}

// naive sums over every assignment of all labels.
func naive(b backend.Backend, tensors []backend.Tensor, labels [][]int, open []int) ([]int, []float64) {
	dims := make(map[int]int)
	all := make([]int, 0)
	for i, t := range tensors {
		for j, l := range labels[i] {
			if _, ok := dims[l]; !ok {
				all = append(all, l)
			}
			dims[l] = t.Shape()[j]
		}
	}
	datas := make([][]float64, 0, len(tensors))
	for _, t := range tensors {
		datas = append(datas, b.Data(t))
	}
	shape := make([]int, 0, len(open))
	for _, l := range open {
		shape = append(shape, dims[l])
	}
	out := make([]float64, backend.Size(shape))

	allShape := make([]int, 0, len(all))
	for _, l := range all {
		allShape = append(allShape, dims[l])
	}
	value := make(map[int]int)
	for f := range backend.Size(allShape) {
		rest := f
		for i := len(all) - 1; i >= 0; i-- {
			value[all[i]] = rest % allShape[i]
			rest /= allShape[i]
		}
		prod := 1.
		for i, t := range tensors {
			idx := 0
			for j, l := range labels[i] {
				idx = idx*t.Shape()[j] + value[l]
			}
			prod *= datas[i][idx]
		}
		o := 0
		for i, l := range open {
			o = o*shape[i] + value[l]
		}
		out[o] += prod
	}
	return shape, out
}
