package image

// Grid is a width x height matrix of tile flags stored in a single slice.
// Reads outside the grid return false and writes outside it are ignored.
type Grid struct {
	width  int
	height int
	cells  []bool
}

func NewGrid(width int, height int) *Grid {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Grid{
		width:  width,
		height: height,
		cells:  make([]bool, width*height),
	}
}

func (g *Grid) Width() int {
	return g.width
}

func (g *Grid) Height() int {
	return g.height
}

func (g *Grid) index(x int, y int) (int, bool) {
	if x < 0 || y < 0 || x >= g.width || y >= g.height {
		return 0, false
	}
	return y*g.width + x, true
}

func (g *Grid) Get(x int, y int) bool {
	i, ok := g.index(x, y)
	if !ok {
		return false
	}
	return g.cells[i]
}

func (g *Grid) Set(x int, y int, v bool) {
	if i, ok := g.index(x, y); ok {
		g.cells[i] = v
	}
}

// Count returns the number of set cells.
func (g *Grid) Count() int {
	n := 0
	for _, c := range g.cells {
		if c {
			n++
		}
	}
	return n
}

func (g *Grid) Clone() *Grid {
	c := &Grid{
		width:  g.width,
		height: g.height,
		cells:  make([]bool, len(g.cells)),
	}
	copy(c.cells, g.cells)
	return c
}
