// Package lattice enumerates the sites and bonds of periodic square lattices.
package lattice

import (
	"fmt"

	"github.com/pkg/errors"
)

// Class is the interaction range of a bond.
type Class int

const (
	OnSite Class = iota
	Nearest
	NextNearest
)

func (c Class) String() string {
	switch c {
	case OnSite:
		return "onsite"
	case Nearest:
		return "nearest"
	case NextNearest:
		return "nextnearest"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Arity returns the number of sites of a bond of class c.
func (c Class) Arity() int {
	if c == OnSite {
		return 1
	}
	return 2
}

// Orientation selects which coefficient of a term applies to a bond.
// For next nearest bonds the up-right diagonal is Vertical and the down-right diagonal is Horizontal.
type Orientation int

const (
	Vertical Orientation = iota
	Horizontal
	Single
)

func (o Orientation) String() string {
	switch o {
	case Vertical:
		return "vertical"
	case Horizontal:
		return "horizontal"
	case Single:
		return "single"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// Bond is an ordered tuple of distinct sites an operator string acts on.
type Bond struct {
	Sites       []int
	Class       Class
	Orientation Orientation
}

func (b Bond) String() string {
	return fmt.Sprintf("%s %s %v", b.Class, b.Orientation, b.Sites)
}

// Validate checks that b has the number of distinct sites its class requires.
func (b Bond) Validate() error {
	if len(b.Sites) != b.Class.Arity() {
		return errors.Errorf("%v", b)
	}
	if len(b.Sites) == 2 && b.Sites[0] == b.Sites[1] {
		return errors.Errorf("%v", b)
	}
	return nil
}

// Square returns an l by l grid of site ids in row-major order.
func Square(l int) [][]int {
	return Rect(l, l)
}

// Rect returns a rows by cols grid of site ids in row-major order.
func Rect(rows, cols int) [][]int {
	grid := make([][]int, rows)
	for i := range rows {
		grid[i] = make([]int, cols)
		for j := range cols {
			grid[i][j] = i*cols + j
		}
	}
	return grid
}

// NumSites returns the number of sites of a grid.
func NumSites(grid [][]int) int {
	var n int
	for _, row := range grid {
		n += len(row)
	}
	return n
}

// Bonds enumerates the periodic bonds of the requested classes, class by class.
// Within a class bonds are ordered by site, with the vertical bond of a site before its horizontal one.
func Bonds(grid [][]int, classes ...Class) ([]Bond, error) {
	if err := checkGrid(grid); err != nil {
		return nil, errors.Wrap(err, "")
	}
	rows, cols := len(grid), len(grid[0])
	at := func(m, n int) int {
		return grid[((m%rows)+rows)%rows][((n%cols)+cols)%cols]
	}

	bonds := make([]Bond, 0)
	for _, c := range classes {
		for m := range rows {
			for n := range cols {
				o := grid[m][n]
				switch c {
				case OnSite:
					bonds = append(bonds, Bond{Sites: []int{o}, Class: c, Orientation: Single})
				case Nearest:
					bonds = append(bonds, Bond{Sites: []int{o, at(m-1, n)}, Class: c, Orientation: Vertical})
					bonds = append(bonds, Bond{Sites: []int{o, at(m, n+1)}, Class: c, Orientation: Horizontal})
				case NextNearest:
					bonds = append(bonds, Bond{Sites: []int{o, at(m-1, n+1)}, Class: c, Orientation: Vertical})
					bonds = append(bonds, Bond{Sites: []int{o, at(m+1, n+1)}, Class: c, Orientation: Horizontal})
				default:
					return nil, errors.Errorf("%v", c)
				}
			}
		}
	}
	for _, b := range bonds {
		if err := b.Validate(); err != nil {
			return nil, errors.Wrap(err, "lattice too small")
		}
	}
	return bonds, nil
}

// Block is a rectangular piece of a lattice obtained by repeated bisection.
type Block struct {
	// Sites in row-major order of the block.
	Sites []int
	Left  *Block
	Right *Block
}

// Bisect halves grid along its longer side until every block holds at most leafSize sites.
func Bisect(grid [][]int, leafSize int) (*Block, error) {
	if err := checkGrid(grid); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if leafSize < 1 {
		return nil, errors.Errorf("%d", leafSize)
	}
	return bisect(grid, leafSize), nil
}

func bisect(grid [][]int, leafSize int) *Block {
	sites := make([]int, 0)
	for _, row := range grid {
		sites = append(sites, row...)
	}
	block := &Block{Sites: sites}
	if len(sites) <= leafSize {
		return block
	}

	rows, cols := len(grid), len(grid[0])
	var a, b [][]int
	if rows >= cols {
		a, b = grid[:rows/2], grid[rows/2:]
	} else {
		for _, row := range grid {
			a = append(a, row[:cols/2])
			b = append(b, row[cols/2:])
		}
	}
	block.Left, block.Right = bisect(a, leafSize), bisect(b, leafSize)
	return block
}

func checkGrid(grid [][]int) error {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return errors.Errorf("empty lattice")
	}
	for i, row := range grid {
		if len(row) != len(grid[0]) {
			return errors.Errorf("row %d has %d sites, expected %d", i, len(row), len(grid[0]))
		}
	}
	return nil
}
