package cdense

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/fumin/ttn/backend"
	"github.com/fumin/ttn/backend/dense"
	"github.com/stretchr/testify/require"
)

func TestMatchesDense(t *testing.T) {
	t.Parallel()
	tests := []struct {
		aShape []int
		bShape []int
		axes   [][2]int
	}{
		{aShape: []int{2, 3}, bShape: []int{3, 4}, axes: [][2]int{{1, 0}}},
		{aShape: []int{2, 3, 4}, bShape: []int{4, 5, 3}, axes: [][2]int{{1, 2}, {2, 0}}},
		{aShape: []int{2, 3}, bShape: []int{2, 3}, axes: [][2]int{{0, 0}, {1, 1}}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v_%v_%v", test.aShape, test.bShape, test.axes), func(t *testing.T) {
			t.Parallel()
			rng := rand.New(rand.NewPCG(0, 0))
			xData := randomData(rng, backend.Size(test.aShape))
			yData := randomData(rng, backend.Size(test.bShape))

			var results [][]float64
			for _, b := range []backend.Backend{New(), dense.New()} {
				x, err := b.FromSlice(xData, test.aShape...)
				require.NoError(t, err)
				y, err := b.FromSlice(yData, test.bShape...)
				require.NoError(t, err)
				z := b.Contract(x, y, test.axes)
				results = append(results, b.Data(z))
			}
			// cdense computes in single precision.
			require.InDeltaSlice(t, results[1], results[0], 1e-4)
		})
	}
}

func TestTransposeReshape(t *testing.T) {
	t.Parallel()
	b := New()
	x, err := b.FromSlice([]float64{0, 1, 2, 3, 4, 5}, 2, 3)
	require.NoError(t, err)

	y := b.Transpose(x, 1, 0)
	require.Equal(t, []int{3, 2}, y.Shape())
	require.Equal(t, []float64{0, 3, 1, 4, 2, 5}, b.Data(y))

	z := b.Reshape(y, 6)
	require.Equal(t, []float64{0, 3, 1, 4, 2, 5}, b.Data(z))
}

func TestPolar(t *testing.T) {
	t.Parallel()
	b := New()
	rng := rand.New(rand.NewPCG(5, 6))
	q, err := backend.Isometry(b, rng, 2, 2, 2)
	require.NoError(t, err)

	m := b.Reshape(q, 2, 4)
	gram := b.Contract(m, m, [][2]int{{1, 1}})
	require.InDeltaSlice(t, []float64{1, 0, 0, 1}, b.Data(gram), 1e-5)
}

func TestSVD(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rows int
		cols int
	}{
		{rows: 3, cols: 5},
		{rows: 5, cols: 3},
		{rows: 8, cols: 2},
		{rows: 4, cols: 4},
		{rows: 1, cols: 6},
		{rows: 6, cols: 1},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d_%d", test.rows, test.cols), func(t *testing.T) {
			t.Parallel()
			rng := rand.New(rand.NewPCG(uint64(test.rows), uint64(test.cols)))
			data := randomData(rng, test.rows*test.cols)
			k := min(test.rows, test.cols)

			b := New()
			m, err := b.FromSlice(data, test.rows, test.cols)
			require.NoError(t, err)
			before := b.Data(m)
			u, s, v, err := b.SVD(m)
			require.NoError(t, err)
			require.Equal(t, []int{test.rows, k}, u.Shape())
			require.Equal(t, []int{test.cols, k}, v.Shape())
			// The input is left untouched.
			require.Equal(t, before, b.Data(m))

			db := dense.New()
			dm, err := db.FromSlice(data, test.rows, test.cols)
			require.NoError(t, err)
			_, ds, _, err := db.SVD(dm)
			require.NoError(t, err)
			require.InDeltaSlice(t, ds, s, 1e-4)

			diag := make([]float64, k*k)
			for i := range k {
				diag[i*k+i] = s[i]
			}
			sm, err := b.FromSlice(diag, k, k)
			require.NoError(t, err)
			usv := b.Contract(b.Contract(u, sm, [][2]int{{1, 0}}), v, [][2]int{{1, 1}})
			require.InDeltaSlice(t, data, b.Data(usv), 1e-4)
		})
	}
}

func randomData(rng *rand.Rand, n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return data
}
