// Package model defines lattice spin Hamiltonians as sums of coefficient weighted operator strings.
package model

import (
	"fmt"

	"github.com/fumin/ttn/lattice"
	"github.com/pkg/errors"
)

// Matrix is a dense single site operator.
type Matrix [][]float64

var (
	Identity = Matrix{
		{1, 0},
		{0, 1},
	}
	PauliX = Matrix{
		{0, 1},
		{1, 0},
	}
	PauliZ = Matrix{
		{1, 0},
		{0, -1},
	}

	SpinX = Matrix{
		{0, 0.5},
		{0.5, 0},
	}
	// ISpinY is i times the spin one half Y operator, which is real.
	ISpinY = Matrix{
		{0, 0.5},
		{-0.5, 0},
	}
	SpinZ = Matrix{
		{0.5, 0},
		{0, -0.5},
	}
)

// Flatten returns the entries of m in row-major order.
func (m Matrix) Flatten() []float64 {
	data := make([]float64, 0, len(m)*len(m))
	for _, row := range m {
		data = append(data, row...)
	}
	return data
}

// Term is an operator string applied to every bond of its class.
// The i-th operator acts on the i-th site of a bond.
// Coefficients[0] weighs vertical and single site bonds, Coefficients[1] weighs horizontal bonds.
type Term struct {
	Operators    []Matrix
	Class        lattice.Class
	Coefficients [2]float64
}

// Coefficient returns the weight of the term on bonds of orientation o.
func (t Term) Coefficient(o lattice.Orientation) float64 {
	if o == lattice.Horizontal {
		return t.Coefficients[1]
	}
	return t.Coefficients[0]
}

// Validate checks that the term has one square operator per bond site.
func (t Term) Validate(physDim int) error {
	if len(t.Operators) != t.Class.Arity() {
		return errors.Errorf("%s term with %d operators", t.Class, len(t.Operators))
	}
	for i, op := range t.Operators {
		if len(op) != physDim {
			return errors.Errorf("operator %d has %d rows, expected %d", i, len(op), physDim)
		}
		for _, row := range op {
			if len(row) != physDim {
				return errors.Errorf("operator %d %v", i, op)
			}
		}
	}
	return nil
}

// Classes returns the distinct bond classes used by terms in order of first appearance.
func Classes(terms []Term) []lattice.Class {
	classes := make([]lattice.Class, 0)
	seen := make(map[lattice.Class]bool)
	for _, t := range terms {
		if !seen[t.Class] {
			seen[t.Class] = true
			classes = append(classes, t.Class)
		}
	}
	return classes
}

// Ising is the transverse field Ising model H = -sum Z_i Z_j - h sum X_i.
func Ising(h float64) []Term {
	return []Term{
		{Operators: []Matrix{PauliZ, PauliZ}, Class: lattice.Nearest, Coefficients: [2]float64{-1, -1}},
		{Operators: []Matrix{PauliX}, Class: lattice.OnSite, Coefficients: [2]float64{-h, -h}},
	}
}

// Heisenberg is the spin one half J1-J2 Heisenberg model.
// The S^y S^y coupling is written as -(iS^y)(iS^y) to keep all operators real.
// Next nearest terms are omitted when j2 is zero.
func Heisenberg(j1, j2 float64) []Term {
	terms := heisenberg(lattice.Nearest, j1)
	if j2 != 0 {
		terms = append(terms, heisenberg(lattice.NextNearest, j2)...)
	}
	return terms
}

func heisenberg(c lattice.Class, j float64) []Term {
	return []Term{
		{Operators: []Matrix{SpinX, SpinX}, Class: c, Coefficients: [2]float64{j, j}},
		{Operators: []Matrix{ISpinY, ISpinY}, Class: c, Coefficients: [2]float64{-j, -j}},
		{Operators: []Matrix{SpinZ, SpinZ}, Class: c, Coefficients: [2]float64{j, j}},
	}
}

// Config names a model and its couplings.
type Config struct {
	Name string  `mapstructure:"name" yaml:"name"`
	H    float64 `mapstructure:"h" yaml:"h"`
	J1   float64 `mapstructure:"j1" yaml:"j1"`
	J2   float64 `mapstructure:"j2" yaml:"j2"`
}

// New returns the terms of the model described by cfg.
func New(cfg Config) ([]Term, error) {
	switch cfg.Name {
	case "ising":
		return Ising(cfg.H), nil
	case "heisenberg":
		return Heisenberg(cfg.J1, cfg.J2), nil
	default:
		return nil, errors.Errorf("unknown model %q", cfg.Name)
	}
}

// Label is a folder friendly name of the model.
func (cfg Config) Label() string {
	switch cfg.Name {
	case "ising":
		return fmt.Sprintf("ising_h%g", cfg.H)
	case "heisenberg":
		return fmt.Sprintf("heisenberg_j1%g_j2%g", cfg.J1, cfg.J2)
	default:
		return cfg.Name
	}
}
