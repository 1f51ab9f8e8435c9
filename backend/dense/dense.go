// Package dense is a real valued Backend built on gonum.
package dense

import (
	"fmt"
	"slices"

	"github.com/fumin/ttn/backend"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor is a row-major N-dimensional array of float64.
type Tensor struct {
	shape []int
	data  []float64
}

func (t *Tensor) Shape() []int { return t.shape }

// Backend implements backend.Backend.
type Backend struct{}

var _ backend.Backend = (*Backend)(nil)

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "dense" }

func (b *Backend) Zeros(shape ...int) (backend.Tensor, error) {
	if err := backend.CheckShape(shape); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &Tensor{shape: slices.Clone(shape), data: make([]float64, backend.Size(shape))}, nil
}

func (b *Backend) FromSlice(data []float64, shape ...int) (backend.Tensor, error) {
	if err := backend.CheckShape(shape); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(data) != backend.Size(shape) {
		return nil, errors.Errorf("%d %#v", len(data), shape)
	}
	return &Tensor{shape: slices.Clone(shape), data: slices.Clone(data)}, nil
}

func (b *Backend) Data(t backend.Tensor) []float64 { return slices.Clone(cast(t).data) }

func (b *Backend) Zero(t backend.Tensor) { clear(cast(t).data) }

func (b *Backend) AddScaled(dst backend.Tensor, alpha float64, src backend.Tensor) {
	d, s := cast(dst), cast(src)
	if !slices.Equal(d.shape, s.shape) {
		panic(fmt.Sprintf("%#v %#v", d.shape, s.shape))
	}
	floats.AddScaled(d.data, alpha, s.data)
}

func (b *Backend) Scale(t backend.Tensor, alpha float64) { floats.Scale(alpha, cast(t).data) }

func (b *Backend) Transpose(t backend.Tensor, axes ...int) backend.Tensor {
	return transpose(cast(t), axes)
}

// Reshape returns a tensor sharing storage with t.
func (b *Backend) Reshape(t backend.Tensor, shape ...int) backend.Tensor {
	x := cast(t)
	if backend.Size(shape) != len(x.data) {
		panic(fmt.Sprintf("%#v %#v", x.shape, shape))
	}
	return &Tensor{shape: slices.Clone(shape), data: x.data}
}

func (b *Backend) Contract(at, bt backend.Tensor, axes [][2]int) backend.Tensor {
	x, y := cast(at), cast(bt)

	contractedX := make([]bool, len(x.shape))
	contractedY := make([]bool, len(y.shape))
	k := 1
	for _, ax := range axes {
		if x.shape[ax[0]] != y.shape[ax[1]] {
			panic(fmt.Sprintf("%#v %#v %#v", x.shape, y.shape, axes))
		}
		if contractedX[ax[0]] || contractedY[ax[1]] {
			panic(fmt.Sprintf("%#v", axes))
		}
		contractedX[ax[0]], contractedY[ax[1]] = true, true
		k *= x.shape[ax[0]]
	}

	// Move the contracted axes of x to the back and those of y to the front.
	permX := make([]int, 0, len(x.shape))
	permY := make([]int, 0, len(y.shape))
	shape := make([]int, 0, len(x.shape)+len(y.shape)-2*len(axes))
	m, n := 1, 1
	for i, d := range x.shape {
		if !contractedX[i] {
			permX = append(permX, i)
			shape = append(shape, d)
			m *= d
		}
	}
	for _, ax := range axes {
		permX = append(permX, ax[0])
		permY = append(permY, ax[1])
	}
	for i, d := range y.shape {
		if !contractedY[i] {
			permY = append(permY, i)
			shape = append(shape, d)
			n *= d
		}
	}

	xm := mat.NewDense(m, k, transpose(x, permX).data)
	ym := mat.NewDense(k, n, transpose(y, permY).data)
	var z mat.Dense
	z.Mul(xm, ym)

	out := &Tensor{shape: shape, data: make([]float64, 0, m*n)}
	for i := range m {
		out.data = append(out.data, z.RawRowView(i)...)
	}
	return out
}

func (b *Backend) SVD(m backend.Tensor) (backend.Tensor, []float64, backend.Tensor, error) {
	x := cast(m)
	if len(x.shape) != 2 {
		panic(fmt.Sprintf("%#v", x.shape))
	}
	rows, cols := x.shape[0], x.shape[1]
	u, s, v, k, err := backend.ThinSVD(rows, cols, x.data)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "")
	}
	return &Tensor{shape: []int{rows, k}, data: u}, s, &Tensor{shape: []int{cols, k}, data: v}, nil
}

// Release is a no-op, memory is reclaimed by the garbage collector.
func (b *Backend) Release() {}

func cast(t backend.Tensor) *Tensor {
	x, ok := t.(*Tensor)
	if !ok {
		panic(fmt.Sprintf("%T", t))
	}
	return x
}

func transpose(t *Tensor, axes []int) *Tensor {
	n := len(t.shape)
	if len(axes) != n {
		panic(fmt.Sprintf("%#v %#v", t.shape, axes))
	}
	identity := true
	for i, a := range axes {
		if a != i {
			identity = false
		}
	}
	if identity {
		return &Tensor{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
	}

	strides := make([]int, n)
	stride := 1
	for i := n - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= t.shape[i]
	}
	shape := make([]int, n)
	permStrides := make([]int, n)
	for i, a := range axes {
		shape[i] = t.shape[a]
		permStrides[i] = strides[a]
	}

	out := &Tensor{shape: shape, data: make([]float64, len(t.data))}
	idx := make([]int, n)
	src := 0
	for dst := range out.data {
		out.data[dst] = t.data[src]
		for k := n - 1; k >= 0; k-- {
			idx[k]++
			src += permStrides[k]
			if idx[k] < shape[k] {
				break
			}
			src -= permStrides[k] * shape[k]
			idx[k] = 0
		}
	}
	return out
}
