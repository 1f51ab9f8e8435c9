package lattice

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBonds(t *testing.T) {
	t.Parallel()
	grid := Square(3)
	bonds, err := Bonds(grid, OnSite, Nearest, NextNearest)
	require.NoError(t, err)
	require.Len(t, bonds, 9+18+18)

	// Site 4 is the center of the grid.
	var got []Bond
	for _, b := range bonds {
		if b.Sites[0] == 4 {
			got = append(got, b)
		}
	}
	expected := []Bond{
		{Sites: []int{4}, Class: OnSite, Orientation: Single},
		{Sites: []int{4, 1}, Class: Nearest, Orientation: Vertical},
		{Sites: []int{4, 5}, Class: Nearest, Orientation: Horizontal},
		{Sites: []int{4, 2}, Class: NextNearest, Orientation: Vertical},
		{Sites: []int{4, 8}, Class: NextNearest, Orientation: Horizontal},
	}
	require.Equal(t, expected, got)
}

func TestBondsPeriodic(t *testing.T) {
	t.Parallel()
	bonds, err := Bonds(Square(3), Nearest)
	require.NoError(t, err)
	// Site 0 wraps vertically to 6 and site 2 wraps horizontally to 0.
	require.Contains(t, bonds, Bond{Sites: []int{0, 6}, Class: Nearest, Orientation: Vertical})
	require.Contains(t, bonds, Bond{Sites: []int{2, 0}, Class: Nearest, Orientation: Horizontal})

	_, err = Bonds(Square(1), Nearest)
	require.Error(t, err)
}

func TestBisect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rows, cols int
		leafSize   int
		leaves     [][]int
	}{
		{rows: 1, cols: 2, leafSize: 1, leaves: [][]int{{0}, {1}}},
		{rows: 2, cols: 2, leafSize: 1, leaves: [][]int{{0}, {1}, {2}, {3}}},
		{rows: 2, cols: 4, leafSize: 2, leaves: [][]int{{0, 1}, {4, 5}, {2, 3}, {6, 7}}},
		{rows: 4, cols: 4, leafSize: 4, leaves: [][]int{{0, 1, 4, 5}, {2, 3, 6, 7}, {8, 9, 12, 13}, {10, 11, 14, 15}}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", test.rows, test.cols, test.leafSize), func(t *testing.T) {
			t.Parallel()
			root, err := Bisect(Rect(test.rows, test.cols), test.leafSize)
			require.NoError(t, err)
			require.Equal(t, test.leaves, leaves(root))
			require.Len(t, root.Sites, test.rows*test.cols)
		})
	}
}

func leaves(b *Block) [][]int {
	if b.Left == nil {
		return [][]int{b.Sites}
	}
	return append(leaves(b.Left), leaves(b.Right)...)
}
