package comparator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	diffimage "screenshot-comparator/internal/diff/image"
	"screenshot-comparator/internal/geometry"
	"screenshot-comparator/internal/raster"
	"screenshot-comparator/internal/report"
	"screenshot-comparator/internal/storage"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrReport means the comparison finished but its artifacts could not be written.
	ErrReport = errors.New("failed to write report")
	// ErrInvalidGeometry means the canvas has no area.
	ErrInvalidGeometry = errors.New("invalid canvas geometry")
)

type Status string

const (
	StatusMatch             Status = "match"
	StatusMismatch          Status = "mismatch"
	StatusDimensionMismatch Status = "dimension_mismatch"
	StatusNoBaseline        Status = "no_baseline"
	StatusDecodeFailure     Status = "decode_failure"
)

const DefaultReferencePrefix = "reference"

type Config struct {
	ReferencePrefix string
	ErrorPrefix     string
	Tolerance       float64
	CursorDetection bool
	Debug           bool
	EdgeMode        bool

	Logger *slog.Logger
	Meter  metric.Meter
	Tracer trace.Tracer
}

func DefaultConfig() Config {
	return Config{
		ReferencePrefix: DefaultReferencePrefix,
		ErrorPrefix:     report.DefaultPrefix,
		Tolerance:       diffimage.DefaultTolerance,
		CursorDetection: true,
	}
}

type Request struct {
	Identifier string
	// Screenshot is base64 encoded PNG or JPEG.
	Screenshot string
	// Geometry crops the screenshot to the canvas when it is larger. Nil compares the whole screenshot.
	Geometry *geometry.CanvasGeometry
}

type Outcome struct {
	Identifier       string             `json:"identifier"`
	Match            bool               `json:"match"`
	Status           Status             `json:"status"`
	Reference        string             `json:"reference,omitempty"`
	Regions          []diffimage.Region `json:"regions,omitempty"`
	SizesDiffer      bool               `json:"sizesDiffer"`
	CursorSuppressed bool               `json:"cursorSuppressed"`
	DiffAmount       float64            `json:"diffAmount"`
	Log              string             `json:"log,omitempty"`
	Artifacts        *report.Artifacts  `json:"artifacts,omitempty"`
}

type Comparator struct {
	config  Config
	storage storage.Storage
	report  *report.Generator
	differ  diffimage.Differ
	logger  *slog.Logger
	tracer  trace.Tracer

	comparisons metric.Int64Counter
	duration    metric.Int64Histogram
}

func New(s storage.Storage, c Config) (*Comparator, error) {
	if c.ReferencePrefix == "" {
		c.ReferencePrefix = DefaultReferencePrefix
	}
	if c.ErrorPrefix == "" {
		c.ErrorPrefix = report.DefaultPrefix
	}
	c.Tolerance = diffimage.NormalizeTolerance(c.Tolerance)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Meter == nil {
		c.Meter = metricnoop.NewMeterProvider().Meter("")
	}
	if c.Tracer == nil {
		c.Tracer = tracenoop.NewTracerProvider().Tracer("")
	}

	comparisons, err := c.Meter.Int64Counter("screenshot_comparisons", metric.WithDescription("Number of screenshot comparisons by status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	duration, err := c.Meter.Int64Histogram("screenshot_comparison_duration_micro_seconds")
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	return &Comparator{
		config:  c,
		storage: s,
		report:  report.NewGenerator(s, c.ErrorPrefix, c.Debug),
		differ: diffimage.NewMacroblockDiff(
			c.Tolerance,
			diffimage.WithCursorDetection(c.CursorDetection),
			diffimage.WithEdgeMode(c.EdgeMode),
		),
		logger:      c.Logger,
		tracer:      c.Tracer,
		comparisons: comparisons,
		duration:    duration,
	}, nil
}

// Compare decodes the screenshot, compares it with every stored reference for the identifier
// and writes a report when none of them matches.
// Artifact write failures are returned as ErrReport together with the outcome.
func (c *Comparator) Compare(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "Compare", trace.WithAttributes(attribute.String("identifier", req.Identifier)))
	defer span.End()

	outcome, err := c.compare(ctx, req)
	if outcome != nil {
		span.SetAttributes(attribute.String("status", string(outcome.Status)), attribute.Int("regions", len(outcome.Regions)))
		c.comparisons.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(outcome.Status))))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.duration.Record(ctx, time.Since(start).Microseconds())

	return outcome, err
}

func (c *Comparator) compare(ctx context.Context, req Request) (*Outcome, error) {
	logger := c.logger.With(slog.String("identifier", req.Identifier))

	capture, err := raster.Decode(req.Screenshot)
	if err != nil {
		logger.Error("failed to decode screenshot", slog.String("error", err.Error()))
		return &Outcome{
			Identifier: req.Identifier,
			Status:     StatusDecodeFailure,
			Log:        err.Error(),
		}, nil
	}

	if req.Geometry != nil {
		if !req.Geometry.Valid() {
			return nil, fmt.Errorf("failed to compare %s: %w", req.Identifier, ErrInvalidGeometry)
		}
		capture = cropToCanvas(capture, *req.Geometry)
	}

	var primary *diffimage.DiffResult
	var primaryReference *raster.Raster
	var primaryKey string

	for i := 0; ; i++ {
		key := c.referenceKey(req.Identifier, i)

		data, err := c.storage.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("failed to load reference %s: %w", key, err)
		}

		reference, err := raster.DecodeBytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode reference %s: %w", key, err)
		}

		result := c.differ.Calculate(reference, capture)
		if result.Match() {
			if result.CursorSuppressed {
				logger.Info("ignored difference caused by a blinking caret", slog.String("reference", key))
			}
			logger.Debug("screenshot matches reference", slog.String("reference", key))
			return &Outcome{
				Identifier:       req.Identifier,
				Match:            true,
				Status:           StatusMatch,
				Reference:        key,
				CursorSuppressed: result.CursorSuppressed,
				DiffAmount:       result.DiffAmount,
			}, nil
		}

		logger.Debug("screenshot differs from reference", slog.String("reference", key), slog.Int("regions", len(result.Regions)))
		if primary == nil {
			primary = result
			primaryReference = reference
			primaryKey = key
		}
	}

	if primary == nil {
		return c.noBaseline(ctx, logger, req.Identifier, capture)
	}

	outcome := &Outcome{
		Identifier:  req.Identifier,
		Status:      StatusMismatch,
		Reference:   primaryKey,
		Regions:     primary.Regions,
		SizesDiffer: primary.SizesDiffer,
		DiffAmount:  primary.DiffAmount,
	}

	var log strings.Builder
	log.WriteString(primary.Log)
	switch {
	case primary.SizesDiffer && len(primary.Regions) == 0:
		outcome.Status = StatusDimensionMismatch
		fmt.Fprintf(&log, "Images are of different size (%s).\n", req.Identifier)
	case primary.SizesDiffer:
		outcome.Status = StatusDimensionMismatch
		fmt.Fprintf(&log, "Images differ and are of different size (%s).\n", req.Identifier)
	default:
		fmt.Fprintf(&log, "Screenshot (%s) differs from reference image.\n", req.Identifier)
	}
	outcome.Log = log.String()

	failure := report.Failure{
		Identifier:  req.Identifier,
		Capture:     capture,
		Reference:   primaryReference,
		Diff:        primary.DiffImage(capture),
		Regions:     primary.Regions,
		SizesDiffer: primary.SizesDiffer,
		Log:         outcome.Log,
	}
	if c.config.EdgeMode {
		failure.EdgeCapture = raster.EdgeMask(capture)
		failure.EdgeReference = raster.EdgeMask(primaryReference)
	}

	artifacts, err := c.report.Write(ctx, failure)
	if err != nil {
		logger.Error("failed to write report", slog.String("error", err.Error()))
		return outcome, fmt.Errorf("%w for %s: %w", ErrReport, req.Identifier, err)
	}
	outcome.Artifacts = artifacts

	logger.Info("screenshot differs from reference",
		slog.String("status", string(outcome.Status)),
		slog.String("reference", primaryKey),
		slog.Int("regions", len(outcome.Regions)),
		slog.String("report", artifacts.HTML),
	)

	return outcome, nil
}

func (c *Comparator) noBaseline(ctx context.Context, logger *slog.Logger, identifier string, capture *raster.Raster) (*Outcome, error) {
	outcome := &Outcome{
		Identifier: identifier,
		Status:     StatusNoBaseline,
		Log:        fmt.Sprintf("No reference found for %s in %s\n", identifier, c.config.ReferencePrefix),
	}

	url, err := c.report.WriteCandidate(ctx, identifier, capture)
	if err != nil {
		logger.Error("failed to write reference candidate", slog.String("error", err.Error()))
		return outcome, fmt.Errorf("%w for %s: %w", ErrReport, identifier, err)
	}
	outcome.Artifacts = &report.Artifacts{Clean: url}

	logger.Warn("no reference found", slog.String("candidate", url))
	return outcome, nil
}

// referenceKey returns <prefix>/<identifier>.png for the first reference and <prefix>/<identifier>_<n>.png after it.
func (c *Comparator) referenceKey(identifier string, n int) string {
	if n == 0 {
		return path.Join(c.config.ReferencePrefix, identifier+".png")
	}
	return path.Join(c.config.ReferencePrefix, fmt.Sprintf("%s_%d.png", identifier, n))
}

// cropToCanvas cuts the canvas out of a screenshot that is larger than it.
func cropToCanvas(capture *raster.Raster, g geometry.CanvasGeometry) *raster.Raster {
	if capture.Width() <= g.CanvasWidth && capture.Height() <= g.CanvasHeight {
		return capture
	}
	return capture.Crop(g.CanvasX, g.CanvasY, g.CanvasWidth, g.CanvasHeight)
}
