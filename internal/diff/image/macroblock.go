package image

import (
	"fmt"
	"math"
	"runtime"
	"screenshot-comparator/internal/raster"
	"strings"
	"sync"
)

const (
	BlockSize        = 16
	DefaultTolerance = 0.025
)

// NormalizeTolerance returns t, or DefaultTolerance when t is outside [0, 1].
func NormalizeTolerance(t float64) float64 {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return DefaultTolerance
	}
	return t
}

type tile struct {
	x     int
	y     int
	gridX int
	gridY int
}

// BlockComparison is the tile-level result of comparing two rasters.
type BlockComparison struct {
	Grid        *Grid
	Width       int
	Height      int
	SizesDiffer bool
	Evaluated   int
	Log         string
}

func (b *BlockComparison) Flagged() int {
	return b.Grid.Count()
}

// Match is true when no tile is flagged and both rasters have the same size.
func (b *BlockComparison) Match() bool {
	return !b.SizesDiffer && b.Grid.Count() == 0
}

type BlockDiff struct {
	tolerance float64
}

func NewBlockDiff(tolerance float64) *BlockDiff {
	return &BlockDiff{
		tolerance: NormalizeTolerance(tolerance),
	}
}

func (b *BlockDiff) Tolerance() float64 {
	return b.tolerance
}

// Compare flags every 16x16 tile of capture whose divergence from reference exceeds the tolerance.
// Rasters of different size are compared over their common top-left area.
func (b *BlockDiff) Compare(reference *raster.Raster, capture *raster.Raster) *BlockComparison {
	width := min(reference.Width(), capture.Width())
	height := min(reference.Height(), capture.Height())

	result := &BlockComparison{
		Grid:        NewGrid(width/BlockSize+1, height/BlockSize+1),
		Width:       width,
		Height:      height,
		SizesDiffer: !reference.SameSize(capture),
	}

	tiles := layoutTiles(width, height)
	result.Evaluated = len(tiles)
	if len(tiles) == 0 {
		return result
	}

	ratios := make([]float64, len(tiles))

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	numWorkers := min(runtime.GOMAXPROCS(0), len(tiles))
	tilesPerWorker := len(tiles) / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		start := i * tilesPerWorker
		end := start + tilesPerWorker
		if i == numWorkers-1 {
			end = len(tiles)
		}

		go func(start int, end int) {
			defer wg.Done()
			for k := start; k < end; k++ {
				ratios[k] = divergence(reference, capture, tiles[k], width, height)
			}
		}(start, end)
	}
	wg.Wait()

	var log strings.Builder
	for k, t := range tiles {
		if ratios[k] <= b.tolerance {
			continue
		}
		result.Grid.Set(t.gridX, t.gridY, true)
		fmt.Fprintf(&log, "Error in block at position:\tx=%d y=%d\n", max(t.x, 0), max(t.y, 0))
		fmt.Fprintf(&log, "RGB error for block:\t\t%.2f%%\n\n", ratios[k]*100)
	}
	result.Log = log.String()

	return result
}

// layoutTiles lists the full tiles in raster order, followed by the bottom strip,
// the right strip and the bottom-right corner for sizes that are not a multiple of 16.
func layoutTiles(width int, height int) []tile {
	if width <= 0 || height <= 0 {
		return nil
	}

	xBlocks := width/BlockSize + 1
	yBlocks := height/BlockSize + 1

	var tiles []tile
	for y := 0; y+BlockSize <= height; y += BlockSize {
		for x := 0; x+BlockSize <= width; x += BlockSize {
			tiles = append(tiles, tile{x, y, x / BlockSize, y / BlockSize})
		}
	}

	if height%BlockSize != 0 {
		for x := 0; x+BlockSize <= width; x += BlockSize {
			tiles = append(tiles, tile{x, height - BlockSize, x / BlockSize, yBlocks - 1})
		}
	}

	if width%BlockSize != 0 {
		for y := 0; y+BlockSize <= height; y += BlockSize {
			tiles = append(tiles, tile{width - BlockSize, y, xBlocks - 1, y / BlockSize})
		}
	}

	if width%BlockSize != 0 && height%BlockSize != 0 {
		tiles = append(tiles, tile{width - BlockSize, height - BlockSize, xBlocks - 1, yBlocks - 1})
	}

	return tiles
}

// divergence is sum(|test - reference|) / sum(reference) over the per-pixel channel sums of a tile.
func divergence(reference *raster.Raster, capture *raster.Raster, t tile, width int, height int) float64 {
	x0 := max(t.x, 0)
	y0 := max(t.y, 0)
	x1 := min(t.x+BlockSize, width)
	y1 := min(t.y+BlockSize, height)

	sum := 0
	fullSum := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			ref := raster.ChannelSum(reference.RGB(x, y))
			test := raster.ChannelSum(capture.RGB(x, y))
			fullSum += ref
			if ref > test {
				sum += ref - test
			} else {
				sum += test - ref
			}
		}
	}

	if fullSum == 0 {
		if sum == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(sum) / float64(fullSum)
}
