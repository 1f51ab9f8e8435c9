package ttn_test

import (
	"fmt"
	"log"
	"math/rand/v2"

	"github.com/fumin/ttn"
	"github.com/fumin/ttn/backend/dense"
	"github.com/fumin/ttn/lattice"
	"github.com/fumin/ttn/model"
)

// Find the ground state energy of the Heisenberg model on a periodic 2x2 lattice.
func Example() {
	b := dense.New()
	grid := lattice.Square(2)
	tree, err := ttn.Build(b, grid, ttn.NewBuildOptions().BondDim(4).Rand(rand.New(rand.NewPCG(0, 0))))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	terms, err := ttn.NewTerms(b, model.Heisenberg(1, 0))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	bonds, err := lattice.Bonds(grid, lattice.Nearest)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if err := tree.Setup(terms, bonds); err != nil {
		log.Fatalf("%+v", err)
	}

	res, err := tree.Optimize(ttn.NewOptimizeOptions().Exact(true).VarError(1e-14).MaxIterations(1000))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("%.4f\n", res.Energy)
	// Output:
	// -4.0000
}
