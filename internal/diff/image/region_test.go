package image

import (
	"fmt"
	"math/rand"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func gridOf(rows ...string) *Grid {
	g := NewGrid(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				g.Set(x, y, true)
			}
		}
	}
	return g
}

func TestGrid(t *testing.T) {
	g := NewGrid(3, 2)
	g.Set(2, 1, true)
	g.Set(3, 1, true)
	g.Set(-1, 0, true)

	if !g.Get(2, 1) {
		t.Error("Expected (2,1) to be set")
	}
	if g.Get(3, 1) || g.Get(-1, 0) || g.Get(0, 2) {
		t.Error("Expected out of range reads to be false")
	}
	if g.Count() != 1 {
		t.Errorf("Expected 1 set cell, got %d", g.Count())
	}

	c := g.Clone()
	c.Set(0, 0, true)
	if g.Get(0, 0) {
		t.Error("Expected clone to be independent")
	}
}

func TestMergeRegions(t *testing.T) {
	tests := []struct {
		name string
		in   *Grid
		want []Region
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			gridOf(
				"....",
				"....",
			),
			nil,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			gridOf(
				"....",
				".#..",
			),
			[]Region{{X: 16, Y: 16, XBlocks: 1, YBlocks: 1}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			gridOf(
				".###.",
				".....",
			),
			[]Region{{X: 16, Y: 0, XBlocks: 3, YBlocks: 1}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			gridOf(
				"#...#",
				".....",
			),
			[]Region{
				{X: 0, Y: 0, XBlocks: 1, YBlocks: 1},
				{X: 64, Y: 0, XBlocks: 1, YBlocks: 1},
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			gridOf(
				"..#.",
				".##.",
			),
			[]Region{{X: 16, Y: 0, XBlocks: 2, YBlocks: 2}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			gridOf(
				".#..",
				".#..",
				".#..",
			),
			[]Region{{X: 16, Y: 0, XBlocks: 1, YBlocks: 3}},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			gridOf(
				".#...",
				".##..",
				".....",
				"...#.",
			),
			[]Region{
				{X: 16, Y: 0, XBlocks: 2, YBlocks: 2},
				{X: 48, Y: 48, XBlocks: 1, YBlocks: 1},
			},
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if diff := cmp.Diff(want, MergeRegions(in)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeRegions_DoesNotModifyGrid(t *testing.T) {
	g := gridOf(
		"##",
		"##",
	)

	MergeRegions(g)

	if g.Count() != 4 {
		t.Errorf("Expected grid to be untouched, got %d set cells", g.Count())
	}
}

func TestMergeRegions_Coverage(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	for n := 0; n < 200; n++ {
		width := 1 + rnd.Intn(12)
		height := 1 + rnd.Intn(12)
		density := rnd.Float64()

		g := NewGrid(width, height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				if rnd.Float64() < density {
					g.Set(x, y, true)
				}
			}
		}

		regions := MergeRegions(g)

		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				if !g.Get(x, y) {
					continue
				}
				covered := false
				for _, r := range regions {
					if r.Covers(x, y) {
						covered = true
						break
					}
				}
				if !covered {
					t.Fatalf("Tile (%d,%d) of %dx%d grid not covered by %v", x, y, width, height, regions)
				}
			}
		}
	}
}

func TestMergeRegions_Degenerate(t *testing.T) {
	t.Run("AllFlagged", func(t *testing.T) {
		g := NewGrid(9, 7)
		for y := 0; y < 7; y++ {
			for x := 0; x < 9; x++ {
				g.Set(x, y, true)
			}
		}

		regions := MergeRegions(g)

		if len(regions) == 0 {
			t.Fatal("Expected at least one region")
		}
		if regions[0].X != 0 || regions[0].Y != 0 {
			t.Errorf("Expected first region at origin, got %+v", regions[0])
		}
	})

	t.Run("AllClear", func(t *testing.T) {
		if regions := MergeRegions(NewGrid(9, 7)); len(regions) != 0 {
			t.Errorf("Expected no regions, got %v", regions)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if regions := MergeRegions(NewGrid(0, 0)); len(regions) != 0 {
			t.Errorf("Expected no regions, got %v", regions)
		}
	})
}
