package geometry

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"screenshot-comparator/internal/raster"
	"strconv"
	"strings"
)

// Session is the part of a browser session needed to locate the canvas.
type Session interface {
	// Evaluate runs script in the page and returns its result as text.
	Evaluate(ctx context.Context, script string) (string, error)
	// Screenshot returns a base64 encoded image of the whole screen.
	Screenshot(ctx context.Context) (string, error)
}

// CanvasGeometry locates the content area inside a full screenshot.
type CanvasGeometry struct {
	ScreenWidth  int `json:"screenWidth"`
	ScreenHeight int `json:"screenHeight"`
	CanvasWidth  int `json:"canvasWidth"`
	CanvasHeight int `json:"canvasHeight"`
	CanvasX      int `json:"canvasX"`
	CanvasY      int `json:"canvasY"`
}

// Valid is false when the canvas has no area and nothing can be compared.
func (g CanvasGeometry) Valid() bool {
	return g.CanvasWidth > 0 && g.CanvasHeight > 0
}

func (g CanvasGeometry) Rect() image.Rectangle {
	return image.Rect(g.CanvasX, g.CanvasY, g.CanvasX+g.CanvasWidth, g.CanvasY+g.CanvasHeight)
}

const (
	// stripLength is the size of the pixel window compared while refining the origin.
	stripLength = 10
	// canvasYGuess is a row that lies inside the canvas when the window sits at the top of the screen.
	canvasYGuess = 0.95
	// borderCorrection compensates for the border reported by Internet Explorer.
	borderCorrection = 2
)

var (
	canvasWidthScripts = []string{
		"window.innerWidth",
		"document.body.clientWidth",
		"document.documentElement.clientWidth",
	}
	canvasHeightScripts = []string{
		"window.innerHeight",
		"document.body.clientHeight",
		"document.documentElement.clientHeight",
	}
)

type Resolver struct {
	session Session
	logger  *slog.Logger
}

func NewResolver(session Session, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		session: session,
		logger:  logger,
	}
}

// Resolve computes the canvas geometry. Values the browser cannot report degrade to 0;
// an error is only returned when ctx is done.
func (r *Resolver) Resolve(ctx context.Context) (CanvasGeometry, error) {
	var g CanvasGeometry

	g.ScreenWidth = r.number(ctx, "screen.availWidth")
	g.ScreenHeight = r.number(ctx, "screen.availHeight")
	g.CanvasWidth = r.firstPositive(ctx, canvasWidthScripts)
	g.CanvasHeight = r.firstPositive(ctx, canvasHeightScripts)

	left, hasLeft := r.lookup(ctx, "window.screenLeft")
	top, hasTop := r.lookup(ctx, "window.screenTop")
	if err := ctx.Err(); err != nil {
		return CanvasGeometry{}, fmt.Errorf("failed to resolve canvas geometry: %w", err)
	}

	if hasLeft || hasTop {
		correction := 0
		if r.hasBorderQuirk(ctx) {
			correction = borderCorrection
		}

		if hasLeft {
			g.CanvasX = left + correction
		} else {
			g.CanvasX = r.derivedX(ctx)
		}
		if hasTop {
			g.CanvasY = top + correction
		} else {
			g.CanvasY = int(float64(g.CanvasHeight) * canvasYGuess)
		}

		r.logger.Debug("resolved canvas geometry", slog.Any("geometry", g))
		return g, nil
	}

	g.CanvasX = r.derivedX(ctx)
	g.CanvasY = int(float64(g.CanvasHeight) * canvasYGuess)

	screenshot, err := r.session.Screenshot(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return CanvasGeometry{}, fmt.Errorf("failed to resolve canvas geometry: %w", ctxErr)
		}
		r.logger.Warn("failed to take screenshot for canvas position", slog.String("error", err.Error()))
		return g, nil
	}

	screen, err := raster.Decode(screenshot)
	if err != nil {
		r.logger.Warn("failed to decode screenshot for canvas position", slog.String("error", err.Error()))
		return g, nil
	}

	g.CanvasX, g.CanvasY = RefineOrigin(screen, g)

	r.logger.Debug("resolved canvas geometry", slog.Any("geometry", g))
	return g, nil
}

// RefineOrigin finds the top edge of the canvas by scanning upward from the guessed row with
// vertical strips, then the left edge on that row by scanning leftward with horizontal strips.
// Each scan stops at the first strip that differs from the one it started with.
func RefineOrigin(screen *raster.Raster, g CanvasGeometry) (int, int) {
	canvasX := g.CanvasX
	canvasY := g.CanvasY
	xPosition := canvasX + g.CanvasWidth/2

	start := verticalStrip(screen, xPosition, canvasY+stripLength)
	for y := canvasY + stripLength; y > 0; y-- {
		if verticalStrip(screen, xPosition, y) != start {
			canvasY = y + 1
			break
		}
	}

	yPosition := canvasY + stripLength
	start = horizontalStrip(screen, xPosition, yPosition)
	for x := xPosition; x > 0; x-- {
		if horizontalStrip(screen, x, yPosition) != start {
			canvasX = x + 1
			break
		}
	}

	return canvasX, canvasY
}

func verticalStrip(screen *raster.Raster, x int, y int) [stripLength]uint32 {
	var strip [stripLength]uint32
	for i := range strip {
		strip[i] = screen.RGB(x, y+i)
	}
	return strip
}

func horizontalStrip(screen *raster.Raster, x int, y int) [stripLength]uint32 {
	var strip [stripLength]uint32
	for i := range strip {
		strip[i] = screen.RGB(x+i, y)
	}
	return strip
}

// derivedX assumes the window decorations are split evenly between left and right.
func (r *Resolver) derivedX(ctx context.Context) int {
	outer := r.number(ctx, "window.outerWidth")
	inner := r.number(ctx, "window.innerWidth")
	screenX := r.number(ctx, "window.screenX")
	return (outer-inner)/2 + screenX
}

func (r *Resolver) hasBorderQuirk(ctx context.Context) bool {
	ua, err := r.session.Evaluate(ctx, "navigator.userAgent")
	if err != nil {
		return false
	}
	return strings.Contains(ua, "MSIE") || strings.Contains(ua, "Trident/")
}

func (r *Resolver) firstPositive(ctx context.Context, scripts []string) int {
	for _, script := range scripts {
		if v, ok := r.lookup(ctx, script); ok && v > 0 {
			return v
		}
	}
	return 0
}

func (r *Resolver) number(ctx context.Context, script string) int {
	v, _ := r.lookup(ctx, script)
	return v
}

func (r *Resolver) lookup(ctx context.Context, script string) (int, bool) {
	if ctx.Err() != nil {
		return 0, false
	}

	result, err := r.session.Evaluate(ctx, script)
	if err != nil {
		r.logger.Debug("failed to evaluate script", slog.String("script", script), slog.String("error", err.Error()))
		return 0, false
	}

	v, ok := ParseNumber(result)
	if !ok {
		r.logger.Debug("script did not return a number", slog.String("script", script), slog.String("result", result))
	}
	return v, ok
}

// ParseNumber truncates a numeric script result to an int. Anything else yields 0, false.
func ParseNumber(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
