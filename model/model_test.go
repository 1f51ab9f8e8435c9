package model

import (
	"testing"

	"github.com/fumin/ttn/lattice"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cfg     Config
		classes []lattice.Class
		label   string
	}{
		{cfg: Config{Name: "ising", H: 3}, classes: []lattice.Class{lattice.Nearest, lattice.OnSite}, label: "ising_h3"},
		{cfg: Config{Name: "heisenberg", J1: 1}, classes: []lattice.Class{lattice.Nearest}, label: "heisenberg_j11_j20"},
		{cfg: Config{Name: "heisenberg", J1: 1, J2: 0.5}, classes: []lattice.Class{lattice.Nearest, lattice.NextNearest}, label: "heisenberg_j11_j20.5"},
	}
	for _, test := range tests {
		t.Run(test.label, func(t *testing.T) {
			t.Parallel()
			terms, err := New(test.cfg)
			require.NoError(t, err)
			require.Equal(t, test.classes, Classes(terms))
			require.Equal(t, test.label, test.cfg.Label())
			for _, term := range terms {
				require.NoError(t, term.Validate(2))
			}
		})
	}

	_, err := New(Config{Name: "hubbard"})
	require.Error(t, err)
}

func TestCoefficient(t *testing.T) {
	t.Parallel()
	term := Term{Operators: []Matrix{SpinZ, SpinZ}, Class: lattice.NextNearest, Coefficients: [2]float64{2, 3}}
	require.Equal(t, 2.0, term.Coefficient(lattice.Vertical))
	require.Equal(t, 3.0, term.Coefficient(lattice.Horizontal))
	require.Equal(t, 2.0, term.Coefficient(lattice.Single))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	require.Error(t, Term{Operators: []Matrix{PauliZ}, Class: lattice.Nearest}.Validate(2))
	require.Error(t, Term{Operators: []Matrix{{{1, 0, 0}}}, Class: lattice.OnSite}.Validate(2))
	require.Error(t, Term{Operators: []Matrix{PauliX}, Class: lattice.OnSite}.Validate(3))
}

func TestSpinAlgebra(t *testing.T) {
	t.Parallel()
	// (iSy)(iSy) = -Sy Sy = -1/4 I.
	var prod [2][2]float64
	for i := range 2 {
		for j := range 2 {
			for k := range 2 {
				prod[i][j] += ISpinY[i][k] * ISpinY[k][j]
			}
		}
	}
	require.Equal(t, [2][2]float64{{-0.25, 0}, {0, -0.25}}, prod)
	require.Equal(t, []float64{0.5, 0, 0, -0.5}, SpinZ.Flatten())
}
