package backend

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ThinSVD computes the economy singular value decomposition of a row-major rows by cols matrix.
// u is rows by k and v is cols by k, both row-major, where k = min(rows, cols).
func ThinSVD(rows, cols int, data []float64) (u, s, v []float64, k int, err error) {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("%d %d %d", rows, cols, len(data)))
	}
	a := mat.NewDense(rows, cols, append([]float64(nil), data...))

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, nil, nil, -1, errors.Errorf("svd failed %d %d", rows, cols)
	}
	var um, vm mat.Dense
	svd.UTo(&um)
	svd.VTo(&vm)
	s = svd.Values(nil)
	k = len(s)

	return rowMajor(&um), s, rowMajor(&vm), k, nil
}

func rowMajor(m *mat.Dense) []float64 {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := range r {
		data = append(data, m.RawRowView(i)...)
	}
	return data
}
