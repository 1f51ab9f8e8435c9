// Package exactdiag builds lattice Hamiltonians as sparse matrices and diagonalizes them exactly.
//
// It serves as the reference for the variational energies of small lattices.
package exactdiag

import (
	"fmt"
	"slices"

	"github.com/fumin/ttn/lattice"
	"github.com/fumin/ttn/model"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// MaxSites bounds the lattices that can be diagonalized densely.
	MaxSites = 12
)

// Hamiltonian sums every term over the bonds of its class.
// Site 0 is the most significant factor of the Kronecker product.
func Hamiltonian(numSites int, terms []model.Term, bonds []lattice.Bond) (*COO, error) {
	if numSites < 1 || numSites > MaxSites {
		return nil, errors.Errorf("%d sites", numSites)
	}
	physDim := 2
	dim := 1 << numSites
	hamiltonian := Zeros(dim, dim)
	system := M(model.Matrix{{0}})
	identity := Identity(physDim)

	for i, term := range terms {
		if err := term.Validate(physDim); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		for _, b := range bonds {
			if b.Class != term.Class {
				continue
			}
			if err := b.Validate(); err != nil {
				return nil, errors.Wrap(err, "")
			}
			system.Scalar(1)
			for s := range numSites {
				switch j := slices.Index(b.Sites, s); {
				case j >= 0:
					system.Kron(M(term.Operators[j]))
				default:
					system.Kron(identity)
				}
			}
			hamiltonian.Add(term.Coefficient(b.Orientation), system)
		}
	}
	return hamiltonian, nil
}

// Eigenvalues returns the eigenvalues of the symmetric matrix h in ascending order.
func Eigenvalues(h *COO) ([]float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(h.Sym(), false); !ok {
		return nil, errors.Errorf("eigen decomposition failed")
	}
	return eig.Values(nil), nil
}

// GroundEnergy returns the smallest eigenvalue of the Hamiltonian of terms over bonds.
func GroundEnergy(numSites int, terms []model.Term, bonds []lattice.Bond) (float64, error) {
	h, err := Hamiltonian(numSites, terms, bonds)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	vals, err := Eigenvalues(h)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return vals[0], nil
}
