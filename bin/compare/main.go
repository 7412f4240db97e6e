package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"screenshot-comparator/internal/capture"
	"screenshot-comparator/internal/comparator"
	"screenshot-comparator/internal/geometry"
	"screenshot-comparator/internal/raster"
	"screenshot-comparator/internal/retry"
	"screenshot-comparator/internal/storage"
	"screenshot-comparator/internal/telemetry"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/xerrors"
)

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
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
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

type options struct {
	directory       string
	storageBackend  string
	s3Bucket        string
	s3Prefix        string
	referencePrefix string
	errorPrefix     string

	tolerance       float64
	cursorDetection bool
	edgeMode        bool
	debug           bool

	browser                   string
	chromeDevtoolsProtocolURL string
	viewportWidth             int
	viewportHeight            int
	delay                     time.Duration
	maskSelectors             string
	geometryFile              string

	retries       uint
	retryDelay    time.Duration
	retryMaxDelay time.Duration

	schedule    string
	metricsFile string
}

func main() {
	_ = godotenv.Load()

	var o options
	flag.StringVar(&o.directory, "directory", envOrDefaultValue("DIRECTORY", "."), "Root directory of the file storage")
	flag.StringVar(&o.storageBackend, "storage", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend (file or s3)")
	flag.StringVar(&o.s3Bucket, "s3-bucket", envOrDefaultValue("S3_BUCKET", ""), "S3 bucket of the s3 storage")
	flag.StringVar(&o.s3Prefix, "s3-prefix", envOrDefaultValue("S3_PREFIX", ""), "Key prefix inside the S3 bucket")
	flag.StringVar(&o.referencePrefix, "reference-prefix", envOrDefaultValue("REFERENCE_PREFIX", comparator.DefaultReferencePrefix), "Storage prefix of the reference images")
	flag.StringVar(&o.errorPrefix, "error-prefix", envOrDefaultValue("ERROR_PREFIX", "errors"), "Storage prefix of the failure artifacts")
	flag.Float64Var(&o.tolerance, "tolerance", envOrDefaultValue("TOLERANCE", 0.025), "Allowed divergence per 16x16 block (0 to 1)")
	flag.BoolVar(&o.cursorDetection, "cursor-detection", envOrDefaultValue("CURSOR_DETECTION", true), "Ignore differences caused by a blinking text caret")
	flag.BoolVar(&o.edgeMode, "edge-mode", envOrDefaultValue("EDGE_MODE", false), "Compare edge masks instead of raw pixels")
	flag.BoolVar(&o.debug, "debug", envOrDefaultValue("DEBUG", false), "Write block logs and use a text log handler")
	flag.StringVar(&o.browser, "browser", envOrDefaultValue("BROWSER", "playwright"), "Browser driver for URL captures (playwright or rod)")
	flag.StringVar(&o.chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.IntVar(&o.viewportWidth, "viewport-width", envOrDefaultValue("VIEWPORT_WIDTH", 1920), "Viewport width in pixels")
	flag.IntVar(&o.viewportHeight, "viewport-height", envOrDefaultValue("VIEWPORT_HEIGHT", 1080), "Viewport height in pixels")
	flag.DurationVar(&o.delay, "delay", envOrDefaultValue("DELAY", 3*time.Second), "Delay before capturing")
	flag.StringVar(&o.maskSelectors, "mask-selectors", envOrDefaultValue("MASK_SELECTORS", ""), "Comma-separated list of CSS selectors to mask during capture")
	flag.StringVar(&o.geometryFile, "geometry", envOrDefaultValue("GEOMETRY", ""), "JSON file with the canvas geometry of a file input")
	flag.UintVar(&o.retries, "retries", envOrDefaultValue("RETRIES", uint(0)), "Re-capture and compare a URL this many times until it matches")
	flag.DurationVar(&o.retryDelay, "retry-delay", envOrDefaultValue("RETRY_DELAY", time.Second), "Delay between retries")
	flag.DurationVar(&o.retryMaxDelay, "retry-max-delay", envOrDefaultValue("RETRY_MAX_DELAY", time.Duration(0)), "Use exponential back-off capped at this delay")
	flag.StringVar(&o.schedule, "schedule", envOrDefaultValue("SCHEDULE", ""), "Cron schedule for repeated comparisons (e.g., */5 * * * *)")
	flag.StringVar(&o.metricsFile, "metrics-file", envOrDefaultValue("METRICS_FILE", ""), "Write prometheus metrics to this file after each run")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <identifier> <file|url>\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(2)
	}

	matched, err := run(o, args[0], args[1])
	if err != nil {
		log.Fatalf("Failed to compare: %v", err)
	}
	if !matched {
		os.Exit(1)
	}
}

func run(o options, identifier string, input string) (bool, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, "screenshot-comparator", o.debug)
	if err != nil {
		return false, xerrors.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			tel.Logger.Error("failed to shutdown telemetry", slog.String("error", err.Error()))
		}
	}()

	s, err := newStorage(ctx, o)
	if err != nil {
		return false, err
	}

	c, err := comparator.New(s, comparator.Config{
		ReferencePrefix: o.referencePrefix,
		ErrorPrefix:     o.errorPrefix,
		Tolerance:       o.tolerance,
		CursorDetection: o.cursorDetection,
		Debug:           o.debug,
		EdgeMode:        o.edgeMode,
		Logger:          tel.Logger,
		Meter:           tel.Meter,
		Tracer:          tel.Tracer,
	})
	if err != nil {
		return false, xerrors.Errorf("failed to create comparator: %w", err)
	}

	job := func(ctx context.Context) (bool, error) {
		outcome, err := compareWithRetry(ctx, o, c, tel.Logger, identifier, input)
		if outcome != nil {
			if err := json.NewEncoder(os.Stdout).Encode(outcome); err != nil {
				return false, xerrors.Errorf("failed to encode outcome: %w", err)
			}
		}
		if o.metricsFile != "" {
			if err := tel.WriteMetrics(o.metricsFile); err != nil {
				tel.Logger.Error("failed to write metrics", slog.String("error", err.Error()))
			}
		}
		if err != nil {
			return false, err
		}
		return outcome.Match, nil
	}

	if o.schedule == "" {
		return job(ctx)
	}

	scheduler := newScheduler()
	if _, err := scheduler.AddFunc(o.schedule, func() {
		if _, err := job(ctx); err != nil {
			tel.Logger.Error("scheduled comparison failed", slog.String("identifier", identifier), slog.String("error", err.Error()))
		}
	}); err != nil {
		return false, xerrors.Errorf("failed to parse schedule %s: %w", o.schedule, err)
	}

	tel.Logger.Info("scheduled comparisons", slog.String("identifier", identifier), slog.String("schedule", o.schedule))
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()

	return true, nil
}

// newScheduler skips a tick while the previous comparison still runs, since both would write
// the same artifacts.
func newScheduler() *cron.Cron {
	return cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
}

// compareWithRetry re-captures a URL until it matches or the retry strategy gives up.
// File inputs are compared once.
func compareWithRetry(ctx context.Context, o options, c *comparator.Comparator, logger *slog.Logger, identifier string, input string) (*comparator.Outcome, error) {
	var strategy retry.Strategy = retry.NewNever()
	if isURL(input) && o.retries > 0 {
		if o.retryMaxDelay > 0 {
			strategy = retry.NewExponentialBackOff(o.retryDelay, o.retryMaxDelay, o.retries, nil)
		} else {
			strategy = retry.NewConstant(o.retryDelay, o.retries)
		}
	}

	var outcome *comparator.Outcome
	err := retry.Do(ctx, strategy, func(ctx context.Context, attempt uint) (bool, error) {
		req, err := newRequest(ctx, o, logger, identifier, input)
		if err != nil {
			return false, err
		}

		outcome, err = c.Compare(ctx, req)
		if err != nil {
			return errors.Is(err, comparator.ErrReport), err
		}
		if !outcome.Match && outcome.Status != comparator.StatusNoBaseline {
			logger.Info("comparison failed", slog.String("identifier", identifier), slog.Uint64("attempt", uint64(attempt)))
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return outcome, xerrors.Errorf("failed to compare %s: %w", identifier, err)
	}
	return outcome, nil
}

func newRequest(ctx context.Context, o options, logger *slog.Logger, identifier string, input string) (comparator.Request, error) {
	if isURL(input) {
		return captureRequest(ctx, o, logger, identifier, input)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return comparator.Request{}, xerrors.Errorf("failed to read %s: %w", input, err)
	}

	req := comparator.Request{Identifier: identifier}
	if _, err := raster.DecodeBytes(data); err == nil {
		req.Screenshot = base64.StdEncoding.EncodeToString(data)
	} else {
		req.Screenshot = strings.TrimSpace(string(data))
	}

	if o.geometryFile != "" {
		raw, err := os.ReadFile(o.geometryFile)
		if err != nil {
			return comparator.Request{}, xerrors.Errorf("failed to read geometry %s: %w", o.geometryFile, err)
		}
		var g geometry.CanvasGeometry
		if err := json.Unmarshal(raw, &g); err != nil {
			return comparator.Request{}, xerrors.Errorf("failed to parse geometry %s: %w", o.geometryFile, err)
		}
		req.Geometry = &g
	}

	return req, nil
}

func captureRequest(ctx context.Context, o options, logger *slog.Logger, identifier string, url string) (comparator.Request, error) {
	session, err := newSession(ctx, o)
	if err != nil {
		return comparator.Request{}, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close browser session", slog.String("error", err.Error()))
		}
	}()

	result, err := capture.Capture(ctx, session, url, o.delay, capture.Options{
		MaskSelectors: splitSelectors(o.maskSelectors),
	}, logger)
	if err != nil {
		return comparator.Request{}, xerrors.Errorf("failed to capture %s: %w", url, err)
	}

	return comparator.Request{
		Identifier: identifier,
		Screenshot: result.Screenshot,
		Geometry:   &result.Geometry,
	}, nil
}

func newSession(ctx context.Context, o options) (capture.Session, error) {
	config := capture.DefaultConfig()
	config.ChromeDevtoolsProtocolURL = o.chromeDevtoolsProtocolURL
	if display := os.Getenv("DISPLAY"); display != "" {
		config.Headless = false
	}
	if o.viewportWidth > 0 {
		config.ViewportWidth = o.viewportWidth
	}
	if o.viewportHeight > 0 {
		config.ViewportHeight = o.viewportHeight
	}

	switch o.browser {
	case "playwright":
		s, err := capture.NewPlaywrightSession(ctx, config)
		if err != nil {
			return nil, xerrors.Errorf("failed to create playwright session: %w", err)
		}
		return s, nil
	case "rod":
		s, err := capture.NewRodSession(ctx, config)
		if err != nil {
			return nil, xerrors.Errorf("failed to create rod session: %w", err)
		}
		return s, nil
	default:
		return nil, xerrors.Errorf("unknown browser: %s", o.browser)
	}
}

func newStorage(ctx context.Context, o options) (storage.Storage, error) {
	switch o.storageBackend {
	case "file":
		s, err := storage.NewFileStorage(ctx, storage.FileConfig{Directory: o.directory})
		if err != nil {
			return nil, xerrors.Errorf("failed to create file storage: %w", err)
		}
		return s, nil
	case "s3":
		s, err := storage.NewS3Storage(ctx, storage.S3Config{Bucket: o.s3Bucket, Prefix: o.s3Prefix})
		if err != nil {
			return nil, xerrors.Errorf("failed to create s3 storage: %w", err)
		}
		return s, nil
	default:
		return nil, xerrors.Errorf("unknown storage backend: %s", o.storageBackend)
	}
}

func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

func splitSelectors(s string) []string {
	if s == "" {
		return nil
	}
	selectors := strings.Split(s, ",")
	for i := range selectors {
		selectors[i] = strings.TrimSpace(selectors[i])
	}
	return selectors
}
