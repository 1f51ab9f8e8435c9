package ttn

import (
	"fmt"

	"github.com/pkg/errors"
)

// job is one term evaluated on one bond.
type job struct {
	term  Term
	plan  *Plan
	coeff float64
}

// jobs pairs every term with every cached plan of its class at target.
func (t *Tree) jobs(target NodeID) ([]job, error) {
	np, ok := t.plans[target]
	if !ok {
		return nil, errors.Errorf("no plans for node %d", target)
	}
	jobs := make([]job, 0)
	for _, term := range t.Hamiltonian {
		for _, p := range np.All() {
			if p.Bond.Class != term.Class {
				continue
			}
			jobs = append(jobs, job{term: term, plan: p, coeff: term.Coefficient(p.Bond.Orientation)})
		}
	}
	return jobs, nil
}

// Energy sums the coefficient weighted expectation values of every term over the bonds cached at node.
// Evaluated at the root it is the energy of the whole lattice.
func (t *Tree) Energy(node NodeID) (float64, error) {
	jobs, err := t.jobs(node)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	var energy float64
	for i, j := range jobs {
		e, err := t.RunEnergy(j.plan, j.term.Operators)
		if err != nil {
			return 0, errors.Wrap(err, fmt.Sprintf("%d %v", i, j.plan.Bond))
		}
		energy += j.coeff * e
	}
	return energy, nil
}
