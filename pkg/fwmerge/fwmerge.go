// Package fwmerge builds and inspects segmented firmware containers.
//
// A container packs up to three typed payloads (system image, user
// application, network information) into one file for a device
// programmer. Every segment carries a 16-byte header with a CRC-16 over
// the header and payload, so a container can be verified after the fact.
//
// Example usage:
//
//	tool, err := fwmerge.New(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Merge payloads already in memory
//	container, err := tool.Merge([]fwmerge.Input{
//	    {Type: fwmerge.SystemImage, Payload: system},
//	    {Type: fwmerge.Application, Payload: app},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Verify and list
//	descs, err := tool.List(container)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range descs {
//	    fmt.Printf("%s: %d bytes\n", d.Type, d.Length)
//	}
package fwmerge

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vnykmshr/fwmerge/internal/fileio"
	"github.com/vnykmshr/fwmerge/internal/format"
	"github.com/vnykmshr/fwmerge/internal/logging"
	"github.com/vnykmshr/fwmerge/internal/metrics"
	"github.com/vnykmshr/fwmerge/internal/segment"
)

// Version is the current version of fwmerge.
// This is the single source of truth for the application version.
const Version = "1.0.0"

// SegmentType identifies the kind of payload a segment carries.
type SegmentType = format.SegmentType

const (
	// SystemImage is the device system image.
	SystemImage = format.SegmentTypeSystemImage

	// Application is the user application image.
	Application = format.SegmentTypeApplication

	// NetworkInfo is the network configuration data.
	NetworkInfo = format.SegmentTypeNetworkInfo
)

// HeaderSize is the size of every segment header in bytes.
const HeaderSize = format.SegmentHeaderSize

// Input is one typed payload to merge.
type Input = segment.Input

// Descriptor describes one verified segment of a container.
type Descriptor = segment.Descriptor

// Segment is a verified header and its payload.
type Segment = format.Segment

// FormatError carries the error kind and the offending segment index.
type FormatError = format.FormatError

// Errors returned by fwmerge operations. Match them with errors.Is.
var (
	// ErrTruncated indicates a header or payload runs past the end of the
	// container, or trailing bytes do not form a full segment.
	ErrTruncated = format.ErrTruncated

	// ErrUnknownType indicates a segment type outside the known set.
	ErrUnknownType = format.ErrUnknownType

	// ErrChecksumMismatch indicates a segment failed CRC verification.
	ErrChecksumMismatch = format.ErrChecksumMismatch

	// ErrPayloadTooLarge indicates a payload exceeds the 32-bit length field.
	ErrPayloadTooLarge = format.ErrPayloadTooLarge

	// ErrContainerTooLarge indicates a container exceeds Options.MaxContainerSize.
	ErrContainerTooLarge = fileio.ErrContainerTooLarge
)

// FailureKind classifies a failed operation for metrics and exit codes.
type FailureKind = metrics.FailureKind

// Failure kinds
const (
	FailureTruncated       = metrics.FailureTruncated
	FailureUnknownType     = metrics.FailureUnknownType
	FailureChecksum        = metrics.FailureChecksum
	FailurePayloadTooLarge = metrics.FailurePayloadTooLarge
	FailureTooLarge        = metrics.FailureTooLarge
	FailureIO              = metrics.FailureIO
)

// Classify maps an error to its failure kind. Returns false for nil.
// Errors that are not format errors are classified as FailureIO.
func Classify(err error) (FailureKind, bool) {
	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, ErrTruncated):
		return FailureTruncated, true
	case errors.Is(err, ErrUnknownType):
		return FailureUnknownType, true
	case errors.Is(err, ErrChecksumMismatch):
		return FailureChecksum, true
	case errors.Is(err, ErrPayloadTooLarge):
		return FailurePayloadTooLarge, true
	case errors.Is(err, ErrContainerTooLarge):
		return FailureTooLarge, true
	default:
		return FailureIO, true
	}
}

// SegmentIndex returns the index of the segment an error refers to, or -1.
func SegmentIndex(err error) int {
	return format.IndexOf(err)
}

// ParseSegmentType parses "system", "application" or "network".
func ParseSegmentType(s string) (SegmentType, error) {
	return format.ParseSegmentType(s)
}

// Options configures tool behavior.
type Options struct {
	// MaxContainerSize is the largest container ListFile will load, in bytes.
	// Set to 0 for no limit.
	// Default: 64 MB
	MaxContainerSize int64

	// FileMode is the permission for containers written by MergeFiles
	// Default: 0644
	FileMode os.FileMode

	// Logger for structured logging (nil = no logging)
	// Default: no logging
	Logger Logger

	// MetricsCollector for collecting tool metrics (nil = no metrics)
	// Default: no metrics
	MetricsCollector MetricsCollector
}

// DefaultOptions returns sensible defaults for tool configuration.
func DefaultOptions() *Options {
	return &Options{
		MaxContainerSize: 64 * 1024 * 1024, // 64 MB
		FileMode:         fileio.DefaultFileMode,
		Logger:           nil, // No logging
		MetricsCollector: nil, // No metrics
	}
}

// Validate checks the options for invalid values.
func (o *Options) Validate() error {
	if o.MaxContainerSize < 0 {
		return fmt.Errorf("MaxContainerSize must be >= 0, got %d", o.MaxContainerSize)
	}
	if o.FileMode&^os.ModePerm != 0 {
		return fmt.Errorf("FileMode must only contain permission bits, got %v", o.FileMode)
	}
	return nil
}

// MetricsCollector defines the interface for recording tool metrics.
type MetricsCollector interface {
	RecordMerge(segments int, containerSize int, duration time.Duration)
	RecordList(segments int, containerSize int, duration time.Duration)
	RecordFailure(kind FailureKind)
}

// MetricsSnapshot is a point-in-time view of tool metrics.
type MetricsSnapshot = metrics.Snapshot

// NewMetricsCollector creates a new metrics collector.
// The name identifies metrics from this tool instance.
func NewMetricsCollector(name string) *metrics.Collector {
	return metrics.NewCollector(name)
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, fields ...LogField)
	Info(msg string, fields ...LogField)
	Warn(msg string, fields ...LogField)
	Error(msg string, fields ...LogField)
}

// LogField represents a structured log field.
type LogField struct {
	Key   string
	Value interface{}
}

// NewStderrLogger returns a Logger writing "[LEVEL] msg key=value" lines to
// stderr, dropping messages below level ("debug", "info", "warn", "error").
func NewStderrLogger(level string) (Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return &publicLogger{l: logging.NewDefaultLogger(lvl)}, nil
}

// Tool merges and lists containers. A Tool holds no per-operation state
// and is safe for concurrent use.
type Tool struct {
	opts    Options
	logger  logging.Logger
	metrics MetricsCollector
}

// New creates a tool. If opts is nil, default options are used.
func New(opts *Options) (*Tool, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	collector := opts.MetricsCollector
	if collector == nil {
		collector = metrics.NoopCollector{}
	}

	return &Tool{
		opts:    *opts,
		logger:  convertLogger(opts.Logger),
		metrics: collector,
	}, nil
}

// Merge builds a container from inputs in the order given.
// Zero inputs produce an empty container.
func (t *Tool) Merge(inputs []Input) ([]byte, error) {
	start := time.Now()

	container, err := segment.Merge(inputs)
	if err != nil {
		t.fail("merge failed", err)
		return nil, err
	}

	t.metrics.RecordMerge(len(inputs), len(container), time.Since(start))
	t.logger.Debug("merged container",
		logging.F("segments", len(inputs)),
		logging.F("bytes", len(container)),
	)
	return container, nil
}

// List verifies every segment of a container and describes it. The first
// invalid segment aborts the scan and its error is returned instead.
func (t *Tool) List(container []byte) ([]Descriptor, error) {
	if err := t.checkSize(int64(len(container))); err != nil {
		t.fail("list failed", err)
		return nil, err
	}

	start := time.Now()
	descs, err := segment.List(container)
	if err != nil {
		t.fail("list failed", err)
		return nil, err
	}

	t.metrics.RecordList(len(descs), len(container), time.Since(start))
	t.logger.Debug("listed container",
		logging.F("segments", len(descs)),
		logging.F("bytes", len(container)),
	)
	return descs, nil
}

// Verify is like List but returns the segments themselves.
// Payloads alias the container buffer.
func (t *Tool) Verify(container []byte) ([]Segment, error) {
	if err := t.checkSize(int64(len(container))); err != nil {
		t.fail("verify failed", err)
		return nil, err
	}

	start := time.Now()
	segs, err := segment.Verify(container)
	if err != nil {
		t.fail("verify failed", err)
		return nil, err
	}

	t.metrics.RecordList(len(segs), len(container), time.Since(start))
	return segs, nil
}

// Stats returns a metrics snapshot when the configured collector is the
// built-in one, nil otherwise.
func (t *Tool) Stats() *MetricsSnapshot {
	if c, ok := t.metrics.(*metrics.Collector); ok {
		return c.GetSnapshot()
	}
	return nil
}

func (t *Tool) checkSize(size int64) error {
	if t.opts.MaxContainerSize > 0 && size > t.opts.MaxContainerSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrContainerTooLarge, size, t.opts.MaxContainerSize)
	}
	return nil
}

func (t *Tool) fail(msg string, err error) {
	kind, _ := Classify(err)
	t.metrics.RecordFailure(kind)
	t.logger.Warn(msg,
		logging.F("error", err),
		logging.F("segment", SegmentIndex(err)),
	)
}

// Merge builds a container from inputs using default options.
func Merge(inputs []Input) ([]byte, error) {
	return segment.Merge(inputs)
}

// List verifies and describes a container using default options.
func List(container []byte) ([]Descriptor, error) {
	return segment.List(container)
}

func convertLogger(l Logger) logging.Logger {
	if l == nil {
		return logging.NoopLogger{}
	}
	if p, ok := l.(*publicLogger); ok {
		return p.l
	}
	return &loggerAdapter{l: l}
}

// loggerAdapter adapts public Logger to internal logging.Logger
type loggerAdapter struct {
	l Logger
}

func (a *loggerAdapter) Debug(msg string, fields ...logging.Field) {
	a.l.Debug(msg, convertFields(fields)...)
}

func (a *loggerAdapter) Info(msg string, fields ...logging.Field) {
	a.l.Info(msg, convertFields(fields)...)
}

func (a *loggerAdapter) Warn(msg string, fields ...logging.Field) {
	a.l.Warn(msg, convertFields(fields)...)
}

func (a *loggerAdapter) Error(msg string, fields ...logging.Field) {
	a.l.Error(msg, convertFields(fields)...)
}

func convertFields(fields []logging.Field) []LogField {
	result := make([]LogField, len(fields))
	for i, f := range fields {
		result[i] = LogField{Key: f.Key, Value: f.Value}
	}
	return result
}

// publicLogger exposes an internal logger through the public interface.
type publicLogger struct {
	l logging.Logger
}

func (p *publicLogger) Debug(msg string, fields ...LogField) { p.l.Debug(msg, internalFields(fields)...) }
func (p *publicLogger) Info(msg string, fields ...LogField)  { p.l.Info(msg, internalFields(fields)...) }
func (p *publicLogger) Warn(msg string, fields ...LogField)  { p.l.Warn(msg, internalFields(fields)...) }
func (p *publicLogger) Error(msg string, fields ...LogField) { p.l.Error(msg, internalFields(fields)...) }

func internalFields(fields []LogField) []logging.Field {
	result := make([]logging.Field, len(fields))
	for i, f := range fields {
		result[i] = logging.F(f.Key, f.Value)
	}
	return result
}
