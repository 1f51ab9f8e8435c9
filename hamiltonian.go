package ttn

import (
	"fmt"
	"slices"

	"github.com/fumin/ttn/backend"
	"github.com/fumin/ttn/lattice"
	"github.com/fumin/ttn/model"
	"github.com/pkg/errors"
)

// Term is a Hamiltonian term whose operators live on a backend.
type Term struct {
	Operators    []backend.Tensor
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

// NewTerms moves the operators of a model onto b.
func NewTerms(b backend.Backend, terms []model.Term) ([]Term, error) {
	ts := make([]Term, 0, len(terms))
	for i, mt := range terms {
		if len(mt.Operators) == 0 {
			return nil, errors.Errorf("term %d has no operators", i)
		}
		if err := mt.Validate(len(mt.Operators[0])); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
		}
		t := Term{Class: mt.Class, Coefficients: mt.Coefficients}
		for _, op := range mt.Operators {
			x, err := b.FromSlice(op.Flatten(), len(op), len(op))
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%d", i))
			}
			t.Operators = append(t.Operators, x)
		}
		ts = append(ts, t)
	}
	return ts, nil
}

// Setup attaches a Hamiltonian to the tree and builds the contraction plans a sweep needs.
func (t *Tree) Setup(terms []Term, bonds []lattice.Bond, options ...PlanOptions) error {
	opt := NewPlanOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	for i, term := range terms {
		if len(term.Operators) != term.Class.Arity() {
			return errors.Errorf("term %d %s has %d operators", i, term.Class, len(term.Operators))
		}
		for _, op := range term.Operators {
			if !slices.Equal(op.Shape(), []int{t.PhysDim, t.PhysDim}) {
				return errors.Errorf("term %d operator shape %#v", i, op.Shape())
			}
		}
	}

	sites := make(map[int]bool)
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			for _, s := range n.Lattice {
				sites[s] = true
			}
		}
	}
	for _, b := range bonds {
		if err := b.Validate(); err != nil {
			return errors.Wrap(err, "")
		}
		for _, s := range b.Sites {
			if !sites[s] {
				return errors.Errorf("bond %v site %d not in tree", b, s)
			}
		}
	}

	t.Hamiltonian = terms
	t.Bonds = bonds
	t.planOptions = opt
	spine, err := t.Spine(false)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := t.buildPlans(spine); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
