package ttn

import (
	"fmt"

	"github.com/fumin/ttn/einsum"
	"github.com/fumin/ttn/lattice"
	"github.com/pkg/errors"
)

// Mode selects which contraction of a plan to run.
type Mode int

const (
	// ModeEnvironment leaves the bra legs of the target node open.
	ModeEnvironment Mode = iota
	// ModeEnergy contracts everything to a scalar.
	ModeEnergy
)

func (m Mode) String() string {
	switch m {
	case ModeEnvironment:
		return "environment"
	case ModeEnergy:
		return "energy"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Variant is a fully labelled network with its contraction order.
// Operands are the node tensors named by Slots followed by one operator per bond site.
type Variant struct {
	Slots  []NodeID
	Labels [][]int
	Open   []int
	Path   einsum.Path
}

// Plan holds the environment and energy contractions of one bond seen from one target node.
type Plan struct {
	Bond   lattice.Bond
	Target NodeID
	Nodes  []NodeID

	Environment Variant
	Energy      Variant
}

// NodePlans groups the plans of a target node by bond orientation.
type NodePlans struct {
	Vertical   []*Plan
	Horizontal []*Plan
	Single     []*Plan
}

func (np *NodePlans) add(p *Plan) {
	switch p.Bond.Orientation {
	case lattice.Vertical:
		np.Vertical = append(np.Vertical, p)
	case lattice.Horizontal:
		np.Horizontal = append(np.Horizontal, p)
	default:
		np.Single = append(np.Single, p)
	}
}

// All returns the plans in vertical, horizontal, single site order.
func (np *NodePlans) All() []*Plan {
	all := make([]*Plan, 0, len(np.Vertical)+len(np.Horizontal)+len(np.Single))
	all = append(all, np.Vertical...)
	all = append(all, np.Horizontal...)
	return append(all, np.Single...)
}

type PlanOptions struct {
	strategy einsum.Strategy
}

func NewPlanOptions() PlanOptions {
	return PlanOptions{strategy: einsum.Greedy}
}

func (opt PlanOptions) Strategy(s einsum.Strategy) PlanOptions {
	opt.strategy = s
	return opt
}

// BuildPlan labels the subnetwork of bond and plans its contractions as seen from target.
func (t *Tree) BuildPlan(bond lattice.Bond, target NodeID, options ...PlanOptions) (*Plan, error) {
	opt := NewPlanOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	nodes := t.Subnetwork(bond.Sites)
	a, err := t.AssignLegs(nodes, bond.Sites)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	targetLegs, ok := a.Legs[target]
	if !ok {
		return nil, errors.Errorf("target %d not in subnetwork %v of %v", target, nodes, bond)
	}
	p := &Plan{Bond: bond, Target: target, Nodes: nodes}

	energy, ops := t.networkOf(a, None)
	if p.Energy, err = t.variant(energy, ops, nil, opt); err != nil {
		return nil, errors.Wrap(err, "energy")
	}
	env, ops := t.networkOf(a, target)
	if p.Environment, err = t.variant(env, ops, targetLegs.Bra, opt); err != nil {
		return nil, errors.Wrap(err, "environment")
	}
	return p, nil
}

type labelledNode struct {
	id     NodeID
	labels []int
}

// networkOf lists the bra and ket copies of every node followed by the operators of the sites.
// The bra copy of skip is left out.
func (t *Tree) networkOf(a Assignment, skip NodeID) ([]labelledNode, [][]int) {
	nodes := make([]labelledNode, 0, 2*len(a.Nodes))
	for _, id := range a.Nodes {
		legs := a.Legs[id]
		if id != skip {
			nodes = append(nodes, labelledNode{id: id, labels: legs.Bra})
		}
		nodes = append(nodes, labelledNode{id: id, labels: legs.Ket})
	}
	ops := make([][]int, 0, len(a.Sites))
	for _, s := range a.Sites {
		ops = append(ops, []int{s.Bra, s.Ket})
	}
	return nodes, ops
}

func (t *Tree) variant(nodes []labelledNode, ops [][]int, open []int, opt PlanOptions) (Variant, error) {
	v := Variant{Slots: make([]NodeID, 0, len(nodes)), Open: make([]int, 0, len(open))}
	labels := make([][]int, 0, len(nodes)+len(ops))
	operands := make([]einsum.Operand, 0, len(nodes)+len(ops))
	for _, n := range nodes {
		v.Slots = append(v.Slots, n.id)
		labels = append(labels, n.labels)
		operands = append(operands, einsum.Operand{Shape: t.Nodes[n.id].Tensor.Shape()})
	}
	for _, op := range ops {
		labels = append(labels, op)
		operands = append(operands, einsum.Operand{Shape: []int{t.PhysDim, t.PhysDim}})
	}

	var err error
	v.Labels, err = Canonicalize(labels, open)
	if err != nil {
		return Variant{}, errors.Wrap(err, "")
	}
	for i := range open {
		v.Open = append(v.Open, -(i + 1))
	}
	for i := range operands {
		operands[i].Labels = v.Labels[i]
	}
	v.Path, err = einsum.PlanPath(operands, v.Open, opt.strategy)
	if err != nil {
		return Variant{}, errors.Wrap(err, "")
	}
	return v, nil
}

// buildPlans caches, for every target, the plans of every bond touching its lattice whose class appears in the Hamiltonian.
func (t *Tree) buildPlans(targets []NodeID) error {
	classes := make(map[lattice.Class]bool)
	for _, term := range t.Hamiltonian {
		classes[term.Class] = true
	}

	t.plans = make(map[NodeID]*NodePlans)
	for _, target := range targets {
		np := &NodePlans{}
		for _, b := range t.Bonds {
			if !classes[b.Class] || !t.owns(target, b) {
				continue
			}
			p, err := t.BuildPlan(b, target, t.planOptions)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%d %v", target, b))
			}
			np.add(p)
		}
		t.plans[target] = np
	}
	return nil
}

// owns reports whether bond touches the lattice of target.
func (t *Tree) owns(target NodeID, b lattice.Bond) bool {
	lat := t.Nodes[target].Lattice
	for _, s := range b.Sites {
		for _, l := range lat {
			if s == l {
				return true
			}
		}
	}
	return false
}

// Strategy returns the contraction order search the cached plans were built with.
func (t *Tree) Strategy() einsum.Strategy {
	return t.planOptions.strategy
}

// Plans returns the cached plans of target.
func (t *Tree) Plans(target NodeID) (*NodePlans, bool) {
	np, ok := t.plans[target]
	return np, ok
}
