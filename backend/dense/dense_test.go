package dense

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/fumin/ttn/backend"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestTranspose(t *testing.T) {
	t.Parallel()
	b := New()
	x, err := b.FromSlice([]float64{0, 1, 2, 3, 4, 5}, 2, 3)
	require.NoError(t, err)

	y := b.Transpose(x, 1, 0)
	require.Equal(t, []int{3, 2}, y.Shape())
	require.Equal(t, []float64{0, 3, 1, 4, 2, 5}, b.Data(y))

	z, err := b.FromSlice([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 2, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 4, 2, 6, 1, 5, 3, 7}, b.Data(b.Transpose(z, 2, 1, 0)))
	require.Equal(t, []float64{0, 1, 4, 5, 2, 3, 6, 7}, b.Data(b.Transpose(z, 1, 0, 2)))
}

func TestContract(t *testing.T) {
	t.Parallel()
	tests := []struct {
		aShape []int
		bShape []int
		axes   [][2]int
	}{
		{aShape: []int{2, 3}, bShape: []int{3, 4}, axes: [][2]int{{1, 0}}},
		{aShape: []int{3, 2}, bShape: []int{3, 4}, axes: [][2]int{{0, 0}}},
		{aShape: []int{2, 3, 4}, bShape: []int{4, 5, 3}, axes: [][2]int{{1, 2}, {2, 0}}},
		{aShape: []int{2, 3}, bShape: []int{2, 3}, axes: [][2]int{{0, 0}, {1, 1}}},
		{aShape: []int{2}, bShape: []int{3}, axes: nil},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v_%v_%v", test.aShape, test.bShape, test.axes), func(t *testing.T) {
			t.Parallel()
			b := New()
			rng := rand.New(rand.NewPCG(0, 0))
			x := random(t, b, rng, test.aShape...)
			y := random(t, b, rng, test.bShape...)

			z := b.Contract(x, y, test.axes)
			expected := naiveContract(x.(*Tensor), y.(*Tensor), test.axes)
			require.Equal(t, expected.shape, z.Shape())
			require.InDeltaSlice(t, expected.data, b.Data(z), 1e-12)
		})
	}
}

func TestSVD(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rows, cols int
	}{
		{rows: 1, cols: 4},
		{rows: 3, cols: 5},
		{rows: 4, cols: 4},
		{rows: 5, cols: 2},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d_%d", test.rows, test.cols), func(t *testing.T) {
			t.Parallel()
			b := New()
			rng := rand.New(rand.NewPCG(1, 2))
			m := random(t, b, rng, test.rows, test.cols)

			u, s, v, err := b.SVD(m)
			require.NoError(t, err)
			k := min(test.rows, test.cols)
			require.Equal(t, []int{test.rows, k}, u.Shape())
			require.Equal(t, []int{test.cols, k}, v.Shape())

			// Rebuild m from its factors.
			uData := b.Data(u)
			for i := range test.rows {
				for j := range k {
					uData[i*k+j] *= s[j]
				}
			}
			us, err := b.FromSlice(uData, test.rows, k)
			require.NoError(t, err)
			rebuilt := b.Contract(us, v, [][2]int{{1, 1}})
			require.InDeltaSlice(t, b.Data(m), b.Data(rebuilt), 1e-12)
		})
	}
}

func TestIsometry(t *testing.T) {
	t.Parallel()
	tests := [][]int{
		{1, 2, 2},
		{2, 2},
		{3, 2, 2},
		{4, 2, 2, 2},
	}
	for _, shape := range tests {
		t.Run(fmt.Sprintf("%v", shape), func(t *testing.T) {
			t.Parallel()
			b := New()
			rng := rand.New(rand.NewPCG(3, 4))
			q, err := backend.Isometry(b, rng, shape...)
			require.NoError(t, err)
			require.Equal(t, shape, q.Shape())

			rows := shape[0]
			m := b.Reshape(q, rows, backend.Size(shape)/rows)
			gram := b.Contract(m, m, [][2]int{{1, 1}})
			eye, err := backend.Eye(b, rows)
			require.NoError(t, err)
			require.InDeltaSlice(t, b.Data(eye), b.Data(gram), 1e-12)
		})
	}
}

func TestInvalidDimension(t *testing.T) {
	t.Parallel()
	b := New()
	_, err := b.Zeros(2, 0)
	require.True(t, errors.Is(err, backend.ErrInvalidDimension), "%+v", err)

	_, err = backend.Dims(4, 2.5)
	require.True(t, errors.Is(err, backend.ErrInvalidDimension), "%+v", err)

	dims, err := backend.Dims(4, 2)
	require.NoError(t, err)
	require.Equal(t, []int{4, 2}, dims)
}

func TestAddScaled(t *testing.T) {
	t.Parallel()
	b := New()
	x, err := b.FromSlice([]float64{1, 2, 3}, 3)
	require.NoError(t, err)
	y, err := b.FromSlice([]float64{1, 1, 1}, 3)
	require.NoError(t, err)

	b.AddScaled(x, 2, y)
	require.Equal(t, []float64{3, 4, 5}, b.Data(x))
	b.Scale(x, -1)
	require.Equal(t, []float64{-3, -4, -5}, b.Data(x))
	b.Zero(x)
	require.Equal(t, []float64{0, 0, 0}, b.Data(x))
	require.Equal(t, 0., backend.Scalar(b, b.Contract(x, y, [][2]int{{0, 0}})))
}

func random(t *testing.T, b *Backend, rng *rand.Rand, shape ...int) backend.Tensor {
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

// naiveContract sums over every index combination explicitly.
func naiveContract(a, b *Tensor, axes [][2]int) *Tensor {
	freeA, freeB := freeAxes(len(a.shape), axes, 0), freeAxes(len(b.shape), axes, 1)
	shape := make([]int, 0)
	for _, i := range freeA {
		shape = append(shape, a.shape[i])
	}
	for _, i := range freeB {
		shape = append(shape, b.shape[i])
	}
	summed := make([]int, 0, len(axes))
	for _, ax := range axes {
		summed = append(summed, a.shape[ax[0]])
	}

	out := &Tensor{shape: shape, data: make([]float64, backend.Size(shape))}
	outIdx := make([]int, len(shape))
	for o := range out.data {
		unravel(o, shape, outIdx)
		sumIdx := make([]int, len(summed))
		var sum float64
		for s := range backend.Size(summed) {
			unravel(s, summed, sumIdx)
			ia, ib := make([]int, len(a.shape)), make([]int, len(b.shape))
			for k, i := range freeA {
				ia[i] = outIdx[k]
			}
			for k, i := range freeB {
				ib[i] = outIdx[len(freeA)+k]
			}
			for k, ax := range axes {
				ia[ax[0]], ib[ax[1]] = sumIdx[k], sumIdx[k]
			}
			sum += a.data[ravel(ia, a.shape)] * b.data[ravel(ib, b.shape)]
		}
		out.data[o] = sum
	}
	return out
}

func freeAxes(n int, axes [][2]int, side int) []int {
	free := make([]int, 0, n)
	for i := range n {
		contracted := false
		for _, ax := range axes {
			if ax[side] == i {
				contracted = true
			}
		}
		if !contracted {
			free = append(free, i)
		}
	}
	return free
}

func unravel(flat int, shape, idx []int) {
	for i := len(shape) - 1; i >= 0; i-- {
		idx[i] = flat % shape[i]
		flat /= shape[i]
	}
}

func ravel(idx, shape []int) int {
	flat := 0
	for i, d := range shape {
		flat = flat*d + idx[i]
	}
	return flat
}
