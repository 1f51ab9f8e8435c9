// Package ttn finds ground states of two dimensional lattice spin Hamiltonians with binary tree tensor networks.
//
// A Tree is an arena of nodes indexed by NodeID.
// Every node tensor has its parent leg on axis 0.
// Internal nodes carry their left and right children on axes 1 and 2,
// and leaves carry one physical leg per lattice site on axes 1 and beyond.
package ttn

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/fumin/ttn/backend"
	"github.com/fumin/ttn/lattice"
	"github.com/pkg/errors"
)

const (
	parentAxis = 0
	leftAxis   = 1
	rightAxis  = 2
)

// NodeID indexes Tree.Nodes.
type NodeID int

// None marks an absent parent or child.
const None NodeID = -1

type Node struct {
	ID    NodeID
	Layer int
	// Lattice lists the sites below the node.
	// For leaves the order matches the physical legs.
	Lattice []int
	Parent  NodeID
	Left    NodeID
	Right   NodeID
	Tensor  backend.Tensor

	// cache accumulates the environment during an update.
	cache backend.Tensor
}

func (n *Node) IsRoot() bool { return n.Parent == None }
func (n *Node) IsLeaf() bool { return n.Left == None }

// Tree is a binary tree tensor network together with the Hamiltonian it is optimized against.
type Tree struct {
	Backend backend.Backend
	Nodes   []*Node
	Root    NodeID
	// Cut is the deepest layer updated by a sweep.
	Cut int
	// PhysDim is the dimension of each lattice site.
	PhysDim int

	Hamiltonian []Term
	Bonds       []lattice.Bond

	EnergyPerSweep   []float64
	// CurrentIteration counts windowed sweeps over every Optimize call, including those before a save.
	CurrentIteration int
	OptimizeTimes    []time.Duration
	Name             string

	plans       map[NodeID]*NodePlans
	planOptions PlanOptions
}

type BuildOptions struct {
	bondDim      int
	physDim      int
	sitesPerLeaf int
	cut          int
	rng          *rand.Rand
	name         string
}

func NewBuildOptions() BuildOptions {
	opt := BuildOptions{
		bondDim:      4,
		physDim:      2,
		sitesPerLeaf: 1,
		cut:          -1,
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	return opt
}

// BondDim caps the dimension of every virtual leg.
func (opt BuildOptions) BondDim(chi int) BuildOptions {
	opt.bondDim = chi
	return opt
}

func (opt BuildOptions) PhysDim(d int) BuildOptions {
	opt.physDim = d
	return opt
}

func (opt BuildOptions) SitesPerLeaf(n int) BuildOptions {
	opt.sitesPerLeaf = n
	return opt
}

// Cut sets the deepest layer a sweep updates, a negative value selects the depth of the leftmost leaf.
func (opt BuildOptions) Cut(cut int) BuildOptions {
	opt.cut = cut
	return opt
}

func (opt BuildOptions) Rand(rng *rand.Rand) BuildOptions {
	opt.rng = rng
	return opt
}

func (opt BuildOptions) Name(name string) BuildOptions {
	opt.name = name
	return opt
}

// Build bisects grid into a binary tree and fills every node with a random isometry.
func Build(b backend.Backend, grid [][]int, options ...BuildOptions) (*Tree, error) {
	opt := NewBuildOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if err := backend.CheckShape([]int{opt.bondDim, opt.physDim}); err != nil {
		return nil, errors.Wrap(err, "")
	}

	block, err := lattice.Bisect(grid, opt.sitesPerLeaf)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	nodes := make([]*Node, 0)
	var add func(block *lattice.Block, parent NodeID, layer int) (NodeID, int, error)
	add = func(block *lattice.Block, parent NodeID, layer int) (NodeID, int, error) {
		n := &Node{ID: NodeID(len(nodes)), Layer: layer, Lattice: block.Sites, Parent: parent, Left: None, Right: None}
		nodes = append(nodes, n)

		var shape []int
		switch {
		case block.Left == nil:
			full := 1
			shape = []int{0}
			for range block.Sites {
				full = min(full*opt.physDim, opt.bondDim*opt.physDim)
				shape = append(shape, opt.physDim)
			}
			shape[parentAxis] = min(full, opt.bondDim)
		default:
			var dl, dr int
			var err error
			if n.Left, dl, err = add(block.Left, n.ID, layer+1); err != nil {
				return None, -1, errors.Wrap(err, "")
			}
			if n.Right, dr, err = add(block.Right, n.ID, layer+1); err != nil {
				return None, -1, errors.Wrap(err, "")
			}
			shape = []int{min(dl*dr, opt.bondDim), dl, dr}
		}
		if parent == None {
			shape[parentAxis] = 1
		}

		n.Tensor, err = backend.Isometry(b, opt.rng, shape...)
		if err != nil {
			return None, -1, errors.Wrap(err, fmt.Sprintf("%d %#v", n.ID, shape))
		}
		return n.ID, shape[parentAxis], nil
	}
	root, _, err := add(block, None, 0)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	cut := opt.cut
	if cut < 0 {
		cut = 0
		for id := root; !nodes[id].IsLeaf(); id = nodes[id].Left {
			cut++
		}
	}
	t, err := NewTree(b, nodes, root, cut)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	t.PhysDim = opt.physDim
	t.Name = opt.name
	return t, nil
}

// NewTree assembles nodes into a tree after checking the structural invariants.
func NewTree(b backend.Backend, nodes []*Node, root NodeID, cut int) (*Tree, error) {
	t := &Tree{Backend: b, Nodes: nodes, Root: root, Cut: cut, PhysDim: 2, planOptions: NewPlanOptions()}
	if err := t.validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if _, err := t.Spine(false); err != nil {
		return nil, errors.Wrap(err, "")
	}

	for _, n := range t.Nodes {
		var err error
		n.cache, err = b.Zeros(n.Tensor.Shape()...)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("%d", n.ID))
		}
	}
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			t.PhysDim = n.Tensor.Shape()[1]
			break
		}
	}
	return t, nil
}

func (t *Tree) validate() error {
	if t.Root < 0 || int(t.Root) >= len(t.Nodes) {
		return errors.Errorf("root %d of %d nodes", t.Root, len(t.Nodes))
	}
	for i, n := range t.Nodes {
		if n == nil || n.ID != NodeID(i) {
			return errors.Errorf("node %d has id %v", i, n)
		}
	}
	if !t.Nodes[t.Root].IsRoot() {
		return errors.Errorf("root %d has parent %d", t.Root, t.Nodes[t.Root].Parent)
	}
	if t.Nodes[t.Root].Tensor.Shape()[parentAxis] != 1 {
		return errors.Errorf("root shape %#v", t.Nodes[t.Root].Tensor.Shape())
	}

	// Every node must be reachable exactly once from the root.
	seen := make([]bool, len(t.Nodes))
	stack := []NodeID{t.Root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			return errors.Errorf("node %d visited twice", id)
		}
		seen[id] = true
		n := t.Nodes[id]
		if err := t.validateNode(n); err != nil {
			return errors.Wrap(err, fmt.Sprintf("%d", id))
		}
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.Left)
		}
	}
	if i := slices.Index(seen, false); i >= 0 {
		return errors.Errorf("node %d unreachable", i)
	}
	return nil
}

func (t *Tree) validateNode(n *Node) error {
	shape := n.Tensor.Shape()
	if (n.Left == None) != (n.Right == None) {
		return errors.Errorf("children %d %d", n.Left, n.Right)
	}
	if n.IsLeaf() {
		if len(shape) != 1+len(n.Lattice) {
			return errors.Errorf("leaf shape %#v lattice %#v", shape, n.Lattice)
		}
		return nil
	}

	if len(shape) != 3 {
		return errors.Errorf("internal shape %#v", shape)
	}
	lattice := make([]int, 0, len(n.Lattice))
	for i, c := range []NodeID{n.Left, n.Right} {
		if c < 0 || int(c) >= len(t.Nodes) {
			return errors.Errorf("child %d", c)
		}
		child := t.Nodes[c]
		if child.Parent != n.ID {
			return errors.Errorf("child %d has parent %d", c, child.Parent)
		}
		if child.Layer != n.Layer+1 {
			return errors.Errorf("child %d layer %d", c, child.Layer)
		}
		if child.Tensor.Shape()[parentAxis] != shape[leftAxis+i] {
			return errors.Errorf("child %d shape %#v parent shape %#v", c, child.Tensor.Shape(), shape)
		}
		lattice = append(lattice, child.Lattice...)
	}
	if !sameSites(lattice, n.Lattice) {
		return errors.Errorf("lattice %#v children %#v", n.Lattice, lattice)
	}
	return nil
}

// Depth returns the largest layer of the tree.
func (t *Tree) Depth() int {
	var depth int
	for _, n := range t.Nodes {
		depth = max(depth, n.Layer)
	}
	return depth
}

// Spine returns the nodes a sweep updates in order, the root followed by its leftmost descendants down to layer Cut.
// In exact mode only the root is updated.
func (t *Tree) Spine(exact bool) ([]NodeID, error) {
	if t.Cut < 0 || t.Cut > t.Depth() {
		return nil, errors.Errorf("cut %d depth %d", t.Cut, t.Depth())
	}
	steps := t.Cut + 1
	if exact {
		steps = 1
	}
	spine := make([]NodeID, 0, steps)
	id := t.Root
	for len(spine) < steps {
		if id == None {
			return nil, errors.Errorf("cut %d below leftmost leaf at %d", t.Cut, len(spine))
		}
		spine = append(spine, id)
		id = t.Nodes[id].Left
	}
	return spine, nil
}

func sameSites(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
