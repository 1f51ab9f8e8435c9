package ttn

import (
	"fmt"

	"github.com/fumin/ttn/backend"
	"github.com/pkg/errors"
)

// DensityMatrix returns the reduced density matrix of sites.
// Its axes are the bra legs of sites followed by their ket legs.
func (t *Tree) DensityMatrix(sites []int) (backend.Tensor, error) {
	nodes := t.Subnetwork(sites)
	a, err := t.AssignLegs(nodes, sites)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	network, _ := t.networkOf(a, None)
	open := make([]int, 0, 2*len(sites))
	for _, s := range a.Sites {
		open = append(open, s.Bra)
	}
	for _, s := range a.Sites {
		open = append(open, s.Ket)
	}

	v, err := t.variant(network, nil, open, t.planOptions)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	rho, err := t.contract(v, nil, "density")
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	t.Backend.Release()
	return rho, nil
}

// Correlator returns the expectation value of the product of operators, the i-th acting on sites[i].
func (t *Tree) Correlator(operators []backend.Tensor, sites []int) (float64, error) {
	if len(operators) != len(sites) {
		return 0, errors.Errorf("%d operators %d sites", len(operators), len(sites))
	}
	nodes := t.Subnetwork(sites)
	a, err := t.AssignLegs(nodes, sites)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	network, ops := t.networkOf(a, None)
	v, err := t.variant(network, ops, nil, t.planOptions)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	out, err := t.contract(v, operators, "correlator")
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	t.Backend.Release()
	return backend.Scalar(t.Backend, out), nil
}

// BondCorrelators returns, for every site of grid, the sum over pairs of the two point correlators
// with its right neighbour in x and its lower neighbour in y, both periodic.
// Results are in row-major order of grid.
func (t *Tree) BondCorrelators(grid [][]int, pairs [][2]backend.Tensor) (x, y []float64, err error) {
	rows := len(grid)
	for i, row := range grid {
		cols := len(row)
		for j, site := range row {
			var cx, cy float64
			for k, p := range pairs {
				ops := []backend.Tensor{p[0], p[1]}
				vx, err := t.Correlator(ops, []int{site, row[(j+1)%cols]})
				if err != nil {
					return nil, nil, errors.Wrap(err, fmt.Sprintf("x %d %d %d", i, j, k))
				}
				vy, err := t.Correlator(ops, []int{site, grid[(i+1)%rows][j]})
				if err != nil {
					return nil, nil, errors.Wrap(err, fmt.Sprintf("y %d %d %d", i, j, k))
				}
				cx += vx
				cy += vy
			}
			x = append(x, cx)
			y = append(y, cy)
		}
	}
	return x, y, nil
}
