// Package cdense is a Backend on top of the complex64 tensors of github.com/fumin/tensor.
//
// Inputs are real. The factors returned by SVD may carry complex phases which cancel in
// their products, and Data reports real parts.
// Rank zero tensors are stored with a single axis of size one.
package cdense

import (
	"fmt"
	"math"
	"slices"

	"github.com/fumin/tensor"
	"github.com/fumin/ttn/backend"
	"github.com/pkg/errors"
)

// Tensor wraps a tensor.Dense with its logical shape.
type Tensor struct {
	shape []int
	d     *tensor.Dense
}

func (t *Tensor) Shape() []int { return t.shape }

// Backend implements backend.Backend.
type Backend struct{}

var _ backend.Backend = (*Backend)(nil)

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "cdense" }

func (b *Backend) Zeros(shape ...int) (backend.Tensor, error) {
	if err := backend.CheckShape(shape); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &Tensor{shape: slices.Clone(shape), d: tensor.Zeros(physical(shape)...)}, nil
}

func (b *Backend) FromSlice(data []float64, shape ...int) (backend.Tensor, error) {
	if err := backend.CheckShape(shape); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(data) != backend.Size(shape) {
		return nil, errors.Errorf("%d %#v", len(data), shape)
	}
	t := &Tensor{shape: slices.Clone(shape), d: tensor.Zeros(physical(shape)...)}
	strides := rowMajorStrides(t.d.Shape())
	for ijk := range t.d.All() {
		t.d.SetAt(ijk, complex(float32(data[flat(ijk, strides)]), 0))
	}
	return t, nil
}

func (b *Backend) Data(t backend.Tensor) []float64 {
	x := cast(t)
	data := make([]float64, backend.Size(x.shape))
	strides := rowMajorStrides(x.d.Shape())
	for ijk, v := range x.d.All() {
		data[flat(ijk, strides)] = float64(real(v))
	}
	return data
}

func (b *Backend) Zero(t backend.Tensor) {
	x := cast(t)
	for ijk := range x.d.All() {
		x.d.SetAt(ijk, 0)
	}
}

func (b *Backend) AddScaled(dst backend.Tensor, alpha float64, src backend.Tensor) {
	d, s := cast(dst), cast(src)
	if !slices.Equal(d.shape, s.shape) {
		panic(fmt.Sprintf("%#v %#v", d.shape, s.shape))
	}
	c := complex(float32(alpha), 0)
	for ijk, v := range s.d.All() {
		d.d.SetAt(ijk, d.d.At(ijk...)+c*v)
	}
}

func (b *Backend) Scale(t backend.Tensor, alpha float64) {
	x := cast(t)
	c := complex(float32(alpha), 0)
	for ijk, v := range x.d.All() {
		x.d.SetAt(ijk, c*v)
	}
}

func (b *Backend) Transpose(t backend.Tensor, axes ...int) backend.Tensor {
	x := cast(t)
	if len(axes) != len(x.shape) {
		panic(fmt.Sprintf("%#v %#v", x.shape, axes))
	}
	shape := make([]int, len(axes))
	for i, a := range axes {
		shape[i] = x.shape[a]
	}
	if len(axes) == 0 {
		return &Tensor{shape: shape, d: resetCopy(tensor.Zeros(1), x.d)}
	}
	return &Tensor{shape: shape, d: resetCopy(tensor.Zeros(1), x.d.Transpose(axes...))}
}

func (b *Backend) Reshape(t backend.Tensor, shape ...int) backend.Tensor {
	x := cast(t)
	if backend.Size(shape) != backend.Size(x.shape) {
		panic(fmt.Sprintf("%#v %#v", x.shape, shape))
	}
	d := resetCopy(tensor.Zeros(1), x.d).Reshape(physical(shape)...)
	return &Tensor{shape: slices.Clone(shape), d: d}
}

func (b *Backend) Contract(at, bt backend.Tensor, axes [][2]int) backend.Tensor {
	x, y := cast(at), cast(bt)
	shape := make([]int, 0, len(x.shape)+len(y.shape))
	for i, d := range x.shape {
		if !slices.ContainsFunc(axes, func(ax [2]int) bool { return ax[0] == i }) {
			shape = append(shape, d)
		}
	}
	for i, d := range y.shape {
		if !slices.ContainsFunc(axes, func(ax [2]int) bool { return ax[1] == i }) {
			shape = append(shape, d)
		}
	}

	xd, yd := x.d, y.d
	// A full contraction would produce a rank zero tensor, pad both operands with a trailing axis of size one.
	if len(shape) == 0 {
		xd = resetCopy(tensor.Zeros(1), xd).Reshape(append(slices.Clone(xd.Shape()), 1)...)
		yd = resetCopy(tensor.Zeros(1), yd).Reshape(append(slices.Clone(yd.Shape()), 1)...)
	}
	p := tensor.Contract(tensor.Zeros(1), xd, yd, axes)
	d := resetCopy(tensor.Zeros(1), p).Reshape(physical(shape)...)
	return &Tensor{shape: shape, d: d}
}

// SVD factorizes m with tensor.SVD, which returns m = U S V^H.
// The returned v holds the conjugate of V truncated to the economy rank, so that m = u diag(s) v^T.
func (b *Backend) SVD(m backend.Tensor) (backend.Tensor, []float64, backend.Tensor, error) {
	x := cast(m)
	if len(x.shape) != 2 {
		panic(fmt.Sprintf("%#v", x.shape))
	}
	if err := checkReal(x.d); err != nil {
		return nil, nil, nil, errors.Wrap(err, "")
	}
	rows, cols := x.shape[0], x.shape[1]
	k := min(rows, cols)
	if k == 1 {
		if u, s, v, ok := b.vectorSVD(x); ok {
			return u, s, v, nil
		}
	}

	var bufs [3]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	ud, vd := tensor.Zeros(1), tensor.Zeros(1)
	// tensor.SVD overwrites its input.
	sd, err := tensor.SVD(ud, vd, resetCopy(tensor.Zeros(1), x.d), bufs)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, fmt.Sprintf("%d %d", rows, cols))
	}

	s := make([]float64, k)
	for i := range k {
		s[i] = float64(real(sd.At(i, i)))
	}
	u := resetCopy(tensor.Zeros(1), ud.Slice([][2]int{{0, rows}, {0, k}}))
	v := resetCopy(tensor.Zeros(1), vd.Slice([][2]int{{0, cols}, {0, k}}).Conj())
	return &Tensor{shape: []int{rows, k}, d: u}, s, &Tensor{shape: []int{cols, k}, d: v}, nil
}

// vectorSVD factorizes a single row or column m as a unit vector scaled by its norm.
func (b *Backend) vectorSVD(m *Tensor) (backend.Tensor, []float64, backend.Tensor, bool) {
	var norm float64
	for _, v := range m.d.All() {
		norm += float64(real(v) * real(v))
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, nil, nil, false
	}

	rows, cols := m.shape[0], m.shape[1]
	unit := resetCopy(tensor.Zeros(1), m.d).Reshape(rows*cols, 1)
	unit.Mul(complex(float32(1/norm), 0))
	one := tensor.Zeros(1, 1)
	one.SetAt([]int{0, 0}, 1)
	if rows == 1 {
		return &Tensor{shape: []int{1, 1}, d: one}, []float64{norm}, &Tensor{shape: []int{cols, 1}, d: unit}, true
	}
	return &Tensor{shape: []int{rows, 1}, d: unit}, []float64{norm}, &Tensor{shape: []int{1, 1}, d: one}, true
}

// Release is a no-op, tensors are reclaimed by the garbage collector.
func (b *Backend) Release() {}

func cast(t backend.Tensor) *Tensor {
	x, ok := t.(*Tensor)
	if !ok {
		panic(fmt.Sprintf("%T", t))
	}
	return x
}

func physical(shape []int) []int {
	if len(shape) == 0 {
		return []int{1}
	}
	return shape
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func flat(ijk, strides []int) int {
	var f int
	for i, s := range strides {
		f += ijk[i] * s
	}
	return f
}

func checkReal(d *tensor.Dense) error {
	var norm, imagNorm float64
	for _, v := range d.All() {
		norm += float64(real(v) * real(v))
		imagNorm += float64(imag(v) * imag(v))
	}
	if imagNorm > 1e-10*math.Max(norm, 1) {
		return errors.Errorf("complex matrix %f %f", norm, imagNorm)
	}
	return nil
}

func resetCopy(dst, src *tensor.Dense) *tensor.Dense {
	shape := src.Shape()
	zeroDigit := make([]int, len(shape))
	dst.Reset(shape...).Set(zeroDigit, src)
	return dst
}
