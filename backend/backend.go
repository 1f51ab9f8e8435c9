// Package backend defines the dense tensor capabilities required by the tree tensor network engine.
//
// The engine is written once against Backend.
// Each concrete tensor library provides one implementation, see the dense and cdense subpackages.
package backend

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidDimension is returned when a requested tensor dimension is not a positive integer.
	ErrInvalidDimension = errors.New("invalid dimension")
)

// Tensor is a dense N-dimensional array owned by a Backend.
type Tensor interface {
	Shape() []int
}

// Backend is the set of tensor operations the engine consumes.
// Shape mismatches in the arithmetic methods are programming errors and panic.
type Backend interface {
	Name() string

	// Zeros allocates a tensor filled with zeros.
	Zeros(shape ...int) (Tensor, error)
	// FromSlice creates a tensor from row-major data.
	FromSlice(data []float64, shape ...int) (Tensor, error)
	// Data returns a row-major copy of the tensor entries.
	Data(t Tensor) []float64

	// Zero sets all entries of t to zero in place.
	Zero(t Tensor)
	// AddScaled performs dst += alpha * src in place.
	AddScaled(dst Tensor, alpha float64, src Tensor)
	// Scale performs t *= alpha in place.
	Scale(t Tensor, alpha float64)

	Transpose(t Tensor, axes ...int) Tensor
	Reshape(t Tensor, shape ...int) Tensor
	// Contract sums over the axis pairs in axes.
	// The result axes are the free axes of a followed by the free axes of b, both in their original order.
	Contract(a, b Tensor, axes [][2]int) Tensor
	// SVD computes the economy singular value decomposition m = u * diag(s) * v^T of a matrix.
	SVD(m Tensor) (u Tensor, s []float64, v Tensor, err error)

	// Release hints that scratch memory held by the backend may be freed.
	Release()
}

// Dims converts floating point sizes to tensor dimensions, rejecting non-integral and non-positive values.
func Dims(ds ...float64) ([]int, error) {
	dims := make([]int, 0, len(ds))
	for i, d := range ds {
		if d != math.Trunc(d) || d < 1 || math.IsInf(d, 0) {
			return nil, errors.Wrap(ErrInvalidDimension, fmt.Sprintf("%d %v", i, d))
		}
		dims = append(dims, int(d))
	}
	return dims, nil
}

// CheckShape returns ErrInvalidDimension if any dimension in shape is not positive.
func CheckShape(shape []int) error {
	for i, d := range shape {
		if d < 1 {
			return errors.Wrap(ErrInvalidDimension, fmt.Sprintf("%d %#v", i, shape))
		}
	}
	return nil
}

// Size returns the number of entries of a tensor of the given shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Scalar returns the single entry of a tensor of size one.
func Scalar(b Backend, t Tensor) float64 {
	if n := Size(t.Shape()); n != 1 {
		panic(fmt.Sprintf("%#v", t.Shape()))
	}
	return b.Data(t)[0]
}

// Eye returns the n by n identity matrix.
func Eye(b Backend, n int) (Tensor, error) {
	data := make([]float64, n*n)
	for i := range n {
		data[i*n+i] = 1
	}
	t, err := b.FromSlice(data, n, n)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return t, nil
}

// Polar returns the orthogonal polar factor u * v^T of the matrix m.
// For a matrix with no more rows than columns the rows of the result are orthonormal.
func Polar(b Backend, m Tensor) (Tensor, error) {
	u, _, v, err := b.SVD(m)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return b.Contract(u, v, [][2]int{{1, 1}}), nil
}

// Isometry returns a random tensor whose reshaping into (shape[0], rest) has orthonormal rows.
func Isometry(b Backend, rng *rand.Rand, shape ...int) (Tensor, error) {
	if err := CheckShape(shape); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(shape) < 2 {
		return nil, errors.Wrap(ErrInvalidDimension, fmt.Sprintf("%#v", shape))
	}
	rows := shape[0]
	cols := Size(shape[1:])
	if rows > cols {
		return nil, errors.Errorf("%#v", shape)
	}

	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.Float64()
	}
	m, err := b.FromSlice(data, rows, cols)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	q, err := Polar(b, m)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return b.Reshape(q, shape...), nil
}
