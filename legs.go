package ttn

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

var (
	// ErrIncompleteLegAssignment is returned when a node of a subnetwork cannot be labelled.
	ErrIncompleteLegAssignment = errors.New("incomplete leg assignment")
)

// Legs are the bra and ket labels of each axis of a node tensor.
type Legs struct {
	Bra []int
	Ket []int
}

// SiteLeg records the labels an operator on a site connects to.
type SiteLeg struct {
	Site int
	Node NodeID
	// Axis is the physical axis of Site on the leaf tensor.
	Axis int
	Bra  int
	Ket  int
}

// Assignment labels a subnetwork such that every contraction pairs two legs.
type Assignment struct {
	Nodes []NodeID
	Legs  map[NodeID]Legs
	// Sites follows the order sites were requested in.
	Sites  []SiteLeg
	MaxLeg int
}

// Subnetwork returns the nodes whose lattice contains at least one of sites, ordered by layer and then id.
func (t *Tree) Subnetwork(sites []int) []NodeID {
	nodes := make([]NodeID, 0)
	for _, n := range t.Nodes {
		for _, s := range sites {
			if slices.Contains(n.Lattice, s) {
				nodes = append(nodes, n.ID)
				break
			}
		}
	}
	slices.SortStableFunc(nodes, func(a, b NodeID) int {
		if c := cmp.Compare(t.Nodes[a].Layer, t.Nodes[b].Layer); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return nodes
}

// AssignLegs labels the bra and ket copies of nodes so that their contraction yields the
// expectation value of operators on sites.
// Legs leaving the subnetwork are traced out by giving bra and ket the same label,
// while the physical legs of sites receive distinct bra and ket labels for the operators to connect.
// nodes must be ordered parents first, as returned by Subnetwork.
func (t *Tree) AssignLegs(nodes []NodeID, sites []int) (Assignment, error) {
	a := Assignment{Nodes: nodes, Legs: make(map[NodeID]Legs), Sites: make([]SiteLeg, len(sites))}
	for i, s := range sites {
		if slices.Index(sites, s) != i {
			return Assignment{}, errors.Errorf("site %d requested twice", s)
		}
	}
	in := make(map[NodeID]bool, len(nodes))
	for _, id := range nodes {
		in[id] = true
	}
	assigned := make([]bool, len(sites))
	fresh := func() int {
		a.MaxLeg++
		return a.MaxLeg
	}

	for _, id := range nodes {
		n := t.Nodes[id]
		rank := len(n.Tensor.Shape())
		legs := Legs{Bra: make([]int, rank), Ket: make([]int, rank)}

		switch {
		case n.IsRoot():
			legs.Bra[parentAxis] = fresh()
			legs.Ket[parentAxis] = legs.Bra[parentAxis]
		default:
			p, ok := a.Legs[n.Parent]
			if !ok {
				return Assignment{}, errors.Wrap(ErrIncompleteLegAssignment, fmt.Sprintf("parent %d of node %d", n.Parent, id))
			}
			axis := leftAxis
			if t.Nodes[n.Parent].Right == id {
				axis = rightAxis
			}
			legs.Bra[parentAxis] = p.Bra[axis]
			legs.Ket[parentAxis] = p.Ket[axis]
		}

		switch {
		case !n.IsLeaf() && (in[n.Left] || in[n.Right]):
			children := []NodeID{n.Left, n.Right}
			for i := range children {
				legs.Bra[leftAxis+i] = fresh()
			}
			for i, c := range children {
				switch {
				case in[c]:
					legs.Ket[leftAxis+i] = fresh()
				default:
					legs.Ket[leftAxis+i] = legs.Bra[leftAxis+i]
				}
			}
		default:
			for axis := parentAxis + 1; axis < rank; axis++ {
				legs.Bra[axis] = fresh()
				legs.Ket[axis] = legs.Bra[axis]
			}
			for i, s := range sites {
				p := slices.Index(n.Lattice, s)
				if p < 0 {
					continue
				}
				if !n.IsLeaf() {
					return Assignment{}, errors.Wrap(ErrIncompleteLegAssignment, fmt.Sprintf("site %d below boundary node %d", s, id))
				}
				axis := p + 1
				legs.Ket[axis] = fresh()
				a.Sites[i] = SiteLeg{Site: s, Node: id, Axis: axis, Bra: legs.Bra[axis], Ket: legs.Ket[axis]}
				assigned[i] = true
			}
		}

		if slices.Contains(legs.Bra, 0) || slices.Contains(legs.Ket, 0) {
			return Assignment{}, errors.Wrap(ErrIncompleteLegAssignment, fmt.Sprintf("node %d %#v", id, legs))
		}
		a.Legs[id] = legs
	}

	if i := slices.Index(assigned, false); i >= 0 {
		return Assignment{}, errors.Wrap(ErrIncompleteLegAssignment, fmt.Sprintf("site %d", sites[i]))
	}
	return a, nil
}

// Canonicalize relabels a network so that open[i] becomes -(i+1) and the remaining labels become 1, 2, ... in increasing order.
func Canonicalize(labels [][]int, open []int) ([][]int, error) {
	mapping := make(map[int]int)
	for i, l := range open {
		if _, ok := mapping[l]; ok {
			return nil, errors.Errorf("open label %d repeated", l)
		}
		mapping[l] = -(i + 1)
	}

	summed := make([]int, 0)
	found := make(map[int]bool)
	for _, ls := range labels {
		for _, l := range ls {
			found[l] = true
			if _, ok := mapping[l]; !ok {
				summed = append(summed, l)
			}
		}
	}
	for _, l := range open {
		if !found[l] {
			return nil, errors.Errorf("open label %d not in network", l)
		}
	}
	slices.Sort(summed)
	summed = slices.Compact(summed)
	for i, l := range summed {
		mapping[l] = i + 1
	}

	out := make([][]int, 0, len(labels))
	for _, ls := range labels {
		relabelled := make([]int, 0, len(ls))
		for _, l := range ls {
			relabelled = append(relabelled, mapping[l])
		}
		out = append(out, relabelled)
	}
	return out, nil
}
