package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path"
	"screenshot-comparator/internal/capture"
	"screenshot-comparator/internal/comparator"
	"screenshot-comparator/internal/geometry"
	"screenshot-comparator/internal/raster"
	"screenshot-comparator/internal/storage"
	"screenshot-comparator/internal/telemetry"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ReferenceResult struct {
	Identifier string                  `json:"identifier"`
	Path       string                  `json:"path"`
	Geometry   geometry.CanvasGeometry `json:"geometry"`
}

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

func main() {
	_ = godotenv.Load()

	var directory string
	var storageBackend string
	var s3Bucket string
	var s3Prefix string
	var referencePrefix string
	var alternative int
	var browser string
	var maskSelectors string
	var delay time.Duration
	var viewportWidth int
	var viewportHeight int
	var chromeDevtoolsProtocolURL string
	var debug bool
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "."), "Root directory of the file storage")
	flag.StringVar(&storageBackend, "storage", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&s3Bucket, "s3-bucket", envOrDefaultValue("S3_BUCKET", ""), "S3 bucket of the s3 storage")
	flag.StringVar(&s3Prefix, "s3-prefix", envOrDefaultValue("S3_PREFIX", ""), "Key prefix inside the S3 bucket")
	flag.StringVar(&referencePrefix, "reference-prefix", envOrDefaultValue("REFERENCE_PREFIX", comparator.DefaultReferencePrefix), "Storage prefix of the reference images")
	flag.IntVar(&alternative, "alternative", envOrDefaultValue("ALTERNATIVE", 0), "Store as alternative reference <identifier>_<n>.png when greater than 0")
	flag.StringVar(&browser, "browser", envOrDefaultValue("BROWSER", "playwright"), "Browser driver (playwright or rod)")
	flag.StringVar(&maskSelectors, "mask-selectors", envOrDefaultValue("MASK_SELECTORS", ""), "Comma-separated list of CSS selectors to mask during capture")
	flag.DurationVar(&delay, "delay", envOrDefaultValue("DELAY", 3*time.Second), "Delay before capturing")
	flag.IntVar(&viewportWidth, "viewport-width", envOrDefaultValue("VIEWPORT_WIDTH", 1920), "Viewport width in pixels")
	flag.IntVar(&viewportHeight, "viewport-height", envOrDefaultValue("VIEWPORT_HEIGHT", 1080), "Viewport height in pixels")
	flag.StringVar(&chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.BoolVar(&debug, "debug", envOrDefaultValue("DEBUG", false), "Use a text log handler")

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		log.Fatalf("usage: %s [flags] <identifier> <url>", os.Args[0])
	}
	identifier := args[0]
	url := args[1]

	ctx := context.Background()

	logger, err := telemetry.NewLogger(debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	var s storage.Storage
	switch storageBackend {
	case "file":
		s, err = storage.NewFileStorage(ctx, storage.FileConfig{Directory: directory})
	case "s3":
		s, err = storage.NewS3Storage(ctx, storage.S3Config{Bucket: s3Bucket, Prefix: s3Prefix})
	default:
		err = fmt.Errorf("unknown storage backend: %s", storageBackend)
	}
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	config := capture.DefaultConfig()
	config.ChromeDevtoolsProtocolURL = chromeDevtoolsProtocolURL
	if display := os.Getenv("DISPLAY"); display != "" {
		config.Headless = false
	}
	if viewportWidth > 0 {
		config.ViewportWidth = viewportWidth
	}
	if viewportHeight > 0 {
		config.ViewportHeight = viewportHeight
	}

	var session capture.Session
	switch browser {
	case "playwright":
		session, err = capture.NewPlaywrightSession(ctx, config)
	case "rod":
		session, err = capture.NewRodSession(ctx, config)
	default:
		err = fmt.Errorf("unknown browser: %s", browser)
	}
	if err != nil {
		log.Fatalf("Failed to create browser session: %v", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close browser session", slog.String("error", err.Error()))
		}
	}()

	var selectors []string
	if maskSelectors != "" {
		selectors = strings.Split(maskSelectors, ",")
		for i := range selectors {
			selectors[i] = strings.TrimSpace(selectors[i])
		}
	}

	result, err := capture.Capture(ctx, session, url, delay, capture.Options{MaskSelectors: selectors}, logger)
	if err != nil {
		log.Fatalf("Failed to capture screenshot: %v", err)
	}
	if !result.Geometry.Valid() {
		log.Fatalf("Failed to locate canvas: %+v", result.Geometry)
	}

	screen, err := raster.Decode(result.Screenshot)
	if err != nil {
		log.Fatalf("Failed to decode screenshot: %v", err)
	}
	canvas := screen
	if screen.Width() > result.Geometry.CanvasWidth || screen.Height() > result.Geometry.CanvasHeight {
		canvas = screen.Crop(result.Geometry.CanvasX, result.Geometry.CanvasY, result.Geometry.CanvasWidth, result.Geometry.CanvasHeight)
	}

	data, err := raster.EncodePNG(canvas)
	if err != nil {
		log.Fatalf("Failed to encode reference: %v", err)
	}

	name := identifier + ".png"
	if alternative > 0 {
		name = fmt.Sprintf("%s_%d.png", identifier, alternative)
	}

	p, err := s.Put(ctx, path.Join(referencePrefix, name), data)
	if err != nil {
		log.Fatalf("Failed to store reference: %v", err)
	}

	logger.Info("stored reference", slog.String("identifier", identifier), slog.String("path", p))

	if err := json.NewEncoder(os.Stdout).Encode(ReferenceResult{
		Identifier: identifier,
		Path:       p,
		Geometry:   result.Geometry,
	}); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}
