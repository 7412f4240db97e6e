package comparator_test

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"screenshot-comparator/internal/comparator"
	"screenshot-comparator/internal/geometry"
	"screenshot-comparator/internal/raster"
	"screenshot-comparator/internal/storage"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int, fill color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

func encode(t *testing.T, img image.Image) string {
	t.Helper()

	s, err := raster.Encode(img)
	require.NoError(t, err)
	return s
}

func putReference(t *testing.T, s storage.Storage, key string, img image.Image) {
	t.Helper()

	data, err := raster.EncodePNG(img)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), key, data)
	require.NoError(t, err)
}

func newComparator(t *testing.T, configure func(*comparator.Config)) (*comparator.Comparator, storage.Storage, string) {
	t.Helper()

	dir := t.TempDir()
	s, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: dir})
	require.NoError(t, err)

	config := comparator.DefaultConfig()
	if configure != nil {
		configure(&config)
	}
	c, err := comparator.New(s, config)
	require.NoError(t, err)
	return c, s, dir
}

func TestComparator_Compare(t *testing.T) {
	ctx := context.Background()

	t.Run("Match", func(t *testing.T) {
		c, s, dir := newComparator(t, nil)
		putReference(t, s, "reference/home.png", createTestImage(64, 48, color.White))

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "home",
			Screenshot: encode(t, createTestImage(64, 48, color.White)),
		})
		require.NoError(t, err)

		require.True(t, outcome.Match)
		require.Equal(t, comparator.StatusMatch, outcome.Status)
		require.Equal(t, "reference/home.png", outcome.Reference)
		require.Nil(t, outcome.Artifacts)
		require.NoDirExists(t, filepath.Join(dir, "errors"))
	})

	t.Run("Mismatch", func(t *testing.T) {
		c, s, dir := newComparator(t, nil)
		putReference(t, s, "reference/home.png", createTestImage(64, 48, color.White))

		capture := createTestImage(64, 48, color.White)
		fillRect(capture, image.Rect(16, 16, 32, 32), color.Black)

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "home",
			Screenshot: encode(t, capture),
		})
		require.NoError(t, err)

		require.False(t, outcome.Match)
		require.Equal(t, comparator.StatusMismatch, outcome.Status)
		require.Len(t, outcome.Regions, 1)
		require.Equal(t, 16, outcome.Regions[0].X)
		require.Equal(t, 16, outcome.Regions[0].Y)
		require.InDelta(t, 1.0/12.0, outcome.DiffAmount, 1e-9)
		require.Contains(t, outcome.Log, "x=16 y=16")
		require.Contains(t, outcome.Log, "Screenshot (home) differs from reference image.")

		require.NotNil(t, outcome.Artifacts)
		require.Equal(t, filepath.Join(dir, "errors", "home.png"), outcome.Artifacts.Clean)
		require.FileExists(t, filepath.Join(dir, "errors", "home_diff.png"))
		require.FileExists(t, filepath.Join(dir, "errors", "home.html"))
		require.NoFileExists(t, filepath.Join(dir, "errors", "home.log"))
		require.NoFileExists(t, filepath.Join(dir, "errors", "home_reference.png"))
	})

	t.Run("NoBaseline", func(t *testing.T) {
		c, _, dir := newComparator(t, nil)

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "fresh",
			Screenshot: encode(t, createTestImage(20, 20, color.White)),
		})
		require.NoError(t, err)

		require.False(t, outcome.Match)
		require.Equal(t, comparator.StatusNoBaseline, outcome.Status)
		require.Equal(t, filepath.Join(dir, "errors", "fresh.png"), outcome.Artifacts.Clean)
		require.FileExists(t, outcome.Artifacts.Clean)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		c, s, dir := newComparator(t, nil)
		putReference(t, s, "reference/home.png", createTestImage(90, 80, color.White))

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "home",
			Screenshot: encode(t, createTestImage(100, 80, color.White)),
		})
		require.NoError(t, err)

		require.False(t, outcome.Match)
		require.True(t, outcome.SizesDiffer)
		require.Equal(t, comparator.StatusDimensionMismatch, outcome.Status)
		require.Contains(t, outcome.Log, "Images are of different size")
		require.FileExists(t, filepath.Join(dir, "errors", "home_reference.png"))

		data, err := os.ReadFile(filepath.Join(dir, "errors", "home.png"))
		require.NoError(t, err)
		clean, err := raster.DecodeBytes(data)
		require.NoError(t, err)
		require.Equal(t, 100, clean.Width())
	})

	t.Run("AlternativeReference", func(t *testing.T) {
		c, s, _ := newComparator(t, nil)

		primary := createTestImage(48, 48, color.White)
		fillRect(primary, image.Rect(0, 0, 16, 16), color.Black)
		putReference(t, s, "reference/menu.png", primary)
		putReference(t, s, "reference/menu_1.png", createTestImage(48, 48, color.Black))
		putReference(t, s, "reference/menu_2.png", createTestImage(48, 48, color.White))

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "menu",
			Screenshot: encode(t, createTestImage(48, 48, color.White)),
		})
		require.NoError(t, err)

		require.True(t, outcome.Match)
		require.Equal(t, "reference/menu_2.png", outcome.Reference)
	})

	t.Run("ReportsAgainstFirstReference", func(t *testing.T) {
		c, s, _ := newComparator(t, nil)

		putReference(t, s, "reference/menu.png", createTestImage(48, 48, color.White))
		putReference(t, s, "reference/menu_1.png", createTestImage(32, 32, color.White))

		capture := createTestImage(48, 48, color.White)
		fillRect(capture, image.Rect(32, 32, 48, 48), color.Black)

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "menu",
			Screenshot: encode(t, capture),
		})
		require.NoError(t, err)

		require.Equal(t, comparator.StatusMismatch, outcome.Status)
		require.Equal(t, "reference/menu.png", outcome.Reference)
		require.False(t, outcome.SizesDiffer)
	})

	t.Run("DecodeFailure", func(t *testing.T) {
		c, _, dir := newComparator(t, nil)

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "broken",
			Screenshot: "not an image",
		})
		require.NoError(t, err)

		require.False(t, outcome.Match)
		require.Equal(t, comparator.StatusDecodeFailure, outcome.Status)
		require.NotEmpty(t, outcome.Log)
		require.NoDirExists(t, filepath.Join(dir, "errors"))
	})

	t.Run("CropsToCanvas", func(t *testing.T) {
		c, s, _ := newComparator(t, nil)
		putReference(t, s, "reference/canvas.png", createTestImage(32, 32, color.White))

		screen := createTestImage(120, 100, color.Black)
		fillRect(screen, image.Rect(10, 20, 42, 52), color.White)

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "canvas",
			Screenshot: encode(t, screen),
			Geometry: &geometry.CanvasGeometry{
				ScreenWidth:  120,
				ScreenHeight: 100,
				CanvasWidth:  32,
				CanvasHeight: 32,
				CanvasX:      10,
				CanvasY:      20,
			},
		})
		require.NoError(t, err)
		require.True(t, outcome.Match)
	})

	t.Run("InvalidGeometry", func(t *testing.T) {
		c, _, _ := newComparator(t, nil)

		_, err := c.Compare(ctx, comparator.Request{
			Identifier: "canvas",
			Screenshot: encode(t, createTestImage(16, 16, color.White)),
			Geometry:   &geometry.CanvasGeometry{ScreenWidth: 16, ScreenHeight: 16},
		})
		require.ErrorIs(t, err, comparator.ErrInvalidGeometry)
	})

	t.Run("ReportFailure", func(t *testing.T) {
		c, s, dir := newComparator(t, nil)
		putReference(t, s, "reference/home.png", createTestImage(32, 32, color.White))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "errors"), []byte("file"), 0644))

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "home",
			Screenshot: encode(t, createTestImage(32, 32, color.Black)),
		})
		require.ErrorIs(t, err, comparator.ErrReport)
		require.NotNil(t, outcome)
		require.Equal(t, comparator.StatusMismatch, outcome.Status)
		require.Nil(t, outcome.Artifacts)
	})

	t.Run("Debug", func(t *testing.T) {
		c, s, dir := newComparator(t, func(c *comparator.Config) {
			c.Debug = true
		})
		putReference(t, s, "reference/home.png", createTestImage(32, 32, color.White))

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "home",
			Screenshot: encode(t, createTestImage(32, 32, color.Black)),
		})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dir, "errors", "home.log"))
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(data), "Exceptions for home\n\n"))
		require.Equal(t, 4, strings.Count(string(data), "Error in block at position"))
		require.Equal(t, outcome.Artifacts.Log, filepath.Join(dir, "errors", "home.log"))
	})

	t.Run("CaretSuppressed", func(t *testing.T) {
		c, s, dir := newComparator(t, nil)
		putReference(t, s, "reference/input.png", createTestImage(64, 64, color.White))

		capture := createTestImage(64, 64, color.White)
		fillRect(capture, image.Rect(20, 18, 21, 28), color.Black)

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "input",
			Screenshot: encode(t, capture),
		})
		require.NoError(t, err)

		require.True(t, outcome.Match)
		require.True(t, outcome.CursorSuppressed)
		require.NoDirExists(t, filepath.Join(dir, "errors"))
	})

	t.Run("CaretReportedWithoutCursorDetection", func(t *testing.T) {
		c, s, _ := newComparator(t, func(c *comparator.Config) {
			c.CursorDetection = false
		})
		putReference(t, s, "reference/input.png", createTestImage(64, 64, color.White))

		capture := createTestImage(64, 64, color.White)
		fillRect(capture, image.Rect(20, 18, 21, 28), color.Black)

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "input",
			Screenshot: encode(t, capture),
		})
		require.NoError(t, err)
		require.False(t, outcome.Match)
	})

	t.Run("EdgeMode", func(t *testing.T) {
		c, s, dir := newComparator(t, func(c *comparator.Config) {
			c.EdgeMode = true
		})
		putReference(t, s, "reference/chart.png", createTestImage(48, 48, color.White))

		capture := createTestImage(48, 48, color.White)
		fillRect(capture, image.Rect(8, 8, 40, 40), color.Black)

		outcome, err := c.Compare(ctx, comparator.Request{
			Identifier: "chart",
			Screenshot: encode(t, capture),
		})
		require.NoError(t, err)

		require.Equal(t, comparator.StatusMismatch, outcome.Status)
		require.FileExists(t, filepath.Join(dir, "errors", "chart_edges.png"))
		require.FileExists(t, filepath.Join(dir, "errors", "chart_target.png"))
	})
}
