package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"path"
	diffimage "screenshot-comparator/internal/diff/image"
	"screenshot-comparator/internal/raster"
	"screenshot-comparator/internal/storage"

	"golang.org/x/sync/errgroup"
)

const DefaultPrefix = "errors"

// Artifacts holds the storage URLs of everything written for one comparison.
type Artifacts struct {
	Clean     string `json:"clean,omitempty"`
	Diff      string `json:"diff,omitempty"`
	HTML      string `json:"html,omitempty"`
	Log       string `json:"log,omitempty"`
	Reference string `json:"reference,omitempty"`
	Edges     string `json:"edges,omitempty"`
	Target    string `json:"target,omitempty"`
}

type Failure struct {
	Identifier string
	// Capture is the clean captured image, uncropped when the sizes differ.
	Capture   *raster.Raster
	Reference *raster.Raster
	// Diff is the capture with the regions outlined.
	Diff        *image.RGBA
	Regions     []diffimage.Region
	SizesDiffer bool
	Log         string
	// EdgeCapture and EdgeReference are the edge masks compared in edge mode.
	EdgeCapture   *raster.Raster
	EdgeReference *raster.Raster
}

type Generator struct {
	storage storage.Storage
	prefix  string
	debug   bool
}

func NewGenerator(s storage.Storage, prefix string, debug bool) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Generator{
		storage: s,
		prefix:  prefix,
		debug:   debug,
	}
}

func (g *Generator) key(identifier string, suffix string) string {
	return path.Join(g.prefix, identifier+suffix)
}

// WriteCandidate stores a capture that has no reference yet as <prefix>/<identifier>.png.
func (g *Generator) WriteCandidate(ctx context.Context, identifier string, capture *raster.Raster) (string, error) {
	data, err := raster.EncodePNG(capture)
	if err != nil {
		return "", err
	}

	url, err := g.storage.Put(ctx, g.key(identifier, ".png"), data)
	if err != nil {
		return "", fmt.Errorf("failed to write reference candidate: %w", err)
	}
	return url, nil
}

// Write persists the clean capture, the diff image, the HTML report, the debug log and,
// in edge mode, the compared edge masks. When the sizes differ the reference is written too
// and the report has no region overlays.
func (g *Generator) Write(ctx context.Context, f Failure) (*Artifacts, error) {
	cleanPNG, err := raster.EncodePNG(f.Capture)
	if err != nil {
		return nil, err
	}
	diffPNG, err := raster.EncodePNG(f.Diff)
	if err != nil {
		return nil, err
	}
	referencePNG, err := raster.EncodePNG(f.Reference)
	if err != nil {
		return nil, err
	}

	html, err := renderPage(f, diffPNG, referencePNG)
	if err != nil {
		return nil, err
	}

	var edgesPNG, targetPNG []byte
	if f.EdgeCapture != nil && f.EdgeReference != nil {
		if edgesPNG, err = raster.EncodePNG(f.EdgeCapture); err != nil {
			return nil, err
		}
		if targetPNG, err = raster.EncodePNG(f.EdgeReference); err != nil {
			return nil, err
		}
	}

	artifacts := &Artifacts{}
	{
		eg, ctx := errgroup.WithContext(ctx)

		put := func(key string, data []byte, url *string) {
			eg.Go(func() error {
				u, err := g.storage.Put(ctx, key, data)
				if err != nil {
					return fmt.Errorf("failed to write %s: %w", key, err)
				}
				*url = u
				return nil
			})
		}

		put(g.key(f.Identifier, ".png"), cleanPNG, &artifacts.Clean)
		put(g.key(f.Identifier, "_diff.png"), diffPNG, &artifacts.Diff)
		put(g.key(f.Identifier, ".html"), html, &artifacts.HTML)

		if f.SizesDiffer {
			put(g.key(f.Identifier, "_reference.png"), referencePNG, &artifacts.Reference)
		}

		if g.debug {
			put(g.key(f.Identifier, ".log"), []byte(fmt.Sprintf("Exceptions for %s\n\n%s", f.Identifier, f.Log)), &artifacts.Log)
		}

		if edgesPNG != nil && targetPNG != nil {
			put(g.key(f.Identifier, "_edges.png"), edgesPNG, &artifacts.Edges)
			put(g.key(f.Identifier, "_target.png"), targetPNG, &artifacts.Target)
		}

		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	return artifacts, nil
}

func renderPage(f Failure, diffPNG []byte, referencePNG []byte) ([]byte, error) {
	p := page{
		Identifier: f.Identifier,
		Diff:       dataURL(diffPNG),
		Reference:  dataURL(referencePNG),
	}

	if f.SizesDiffer {
		p.Notice = "Images are of different size"
	} else {
		p.Overlays = overlays(f.Regions)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

func overlays(regions []diffimage.Region) []overlay {
	result := make([]overlay, 0, len(regions))
	for i, r := range regions {
		offsetX := 0
		offsetY := 0
		if r.X > 0 {
			offsetX = 1
		}
		if r.Y > 0 {
			offsetY = 1
		}

		result = append(result, overlay{
			ID:     fmt.Sprintf("popUpDiv_%d_%d", r.X+i, r.Y+i),
			Top:    r.Y - offsetY,
			Right:  r.X + r.XBlocks*diffimage.BlockSize + 1,
			Bottom: r.Y + r.YBlocks*diffimage.BlockSize + 1,
			Left:   r.X - offsetX,
			ZIndex: 99 + i,
		})
	}
	return result
}

func dataURL(png []byte) template.URL {
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
}
