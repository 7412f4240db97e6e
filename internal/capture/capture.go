package capture

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"screenshot-comparator/internal/geometry"
	"strconv"
	"time"
)

// Session is an open browser page.
type Session interface {
	geometry.Session
	Open(ctx context.Context, url string) error
	// Mask covers every element matching the selectors with a black overlay.
	Mask(ctx context.Context, selectors []string) error
	Close() error
}

type Config struct {
	ViewportWidth  int
	ViewportHeight int

	Timeout time.Duration
	Delay   time.Duration

	Headless                  bool
	ChromeDevtoolsProtocolURL string
}

func DefaultConfig() Config {
	return Config{
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Timeout:        30 * time.Second,
		Delay:          3 * time.Second,
		Headless:       true,
	}
}

type Options struct {
	MaskSelectors []string
}

type Result struct {
	// Screenshot is a base64 encoded PNG of the viewport.
	Screenshot string
	Geometry   geometry.CanvasGeometry
}

// Capture navigates to url, waits for delay, masks the selectors and returns the screenshot
// together with the resolved canvas geometry.
func Capture(ctx context.Context, s Session, url string, delay time.Duration, opts Options, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := s.Open(ctx, url); err != nil {
		return nil, err
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if len(opts.MaskSelectors) > 0 {
		if err := s.Mask(ctx, opts.MaskSelectors); err != nil {
			return nil, err
		}
	}

	g, err := geometry.NewResolver(s, logger).Resolve(ctx)
	if err != nil {
		return nil, err
	}

	screenshot, err := s.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}

	logger.Debug("captured page", slog.String("url", url), slog.Any("geometry", g))

	return &Result{
		Screenshot: screenshot,
		Geometry:   g,
	}, nil
}

// maskScript returns a function expression taking the selector list as its only argument.
func maskScript() (string, error) {
	unique := make([]byte, 8)
	if _, err := rand.Read(unique); err != nil {
		return "", fmt.Errorf("failed to generate unique identifier: %w", err)
	}
	maskClassName := fmt.Sprintf("mask-%s", hex.EncodeToString(unique))

	maskCSS := fmt.Sprintf(`
.%s {
  position: relative !important;
}
.%s::after {
  content: "" !important;
  position: absolute !important;
  top: 0 !important;
  left: 0 !important;
  right: 0 !important;
  bottom: 0 !important;
  background-color: black !important;
  z-index: 2147483646 !important;
  pointer-events: none !important;
}
`, maskClassName, maskClassName)

	return fmt.Sprintf(`(selectors) => {
		const style = document.createElement('style');
		style.textContent = %q;
		document.head.appendChild(style);

		selectors.forEach(selector => {
			const elements = document.querySelectorAll(selector);
			elements.forEach(element => {
				const computedStyle = window.getComputedStyle(element);
				if (computedStyle.position === 'static') {
					element.style.position = 'relative';
				}
				element.classList.add(%q);
			});
		});
	}`, maskCSS, maskClassName), nil
}

// stringify renders a script result the way the page would print it.
func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return "undefined"
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
