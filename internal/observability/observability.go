// Package observability installs the process-wide slog logger.
//
// Logs go to stderr as text or JSON by default. When an exporter is
// configured, records are bridged into an OpenTelemetry LoggerProvider
// instead, filtered by the same minimum level.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/captorfm/gqlbroker"

// Exporter selects where log records are shipped.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPGRPC Exporter = "otlpgrpc"
	ExporterOTLPHTTP Exporter = "otlphttp"
)

// ShutdownFunc flushes and stops the logging pipeline.
type ShutdownFunc func(context.Context) error

// Instrument installs the default slog logger and returns its shutdown hook.
// format is "text" or "json" and only applies when exporter is none.
// OTLP exporters read their endpoint from the standard OTEL_EXPORTER_OTLP_* variables.
func Instrument(ctx context.Context, level slog.Level, format string, exporter Exporter) (ShutdownFunc, error) {
	if exporter == "" || exporter == ExporterNone {
		handler, err := newHandler(os.Stderr, level, format)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(slog.New(handler))
		return func(context.Context) error { return nil }, nil
	}

	logExporter, err := newExporter(ctx, exporter)
	if err != nil {
		return nil, fmt.Errorf("creating %s log exporter: %w", exporter, err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(logExporter), severity(level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	global.SetLoggerProvider(provider)

	slog.SetDefault(otelslog.NewLogger(instrumentationName, otelslog.WithLoggerProvider(provider)))

	return provider.Shutdown, nil
}

func newHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func newExporter(ctx context.Context, exporter Exporter) (sdklog.Exporter, error) {
	switch exporter {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(os.Stderr))
	case ExporterOTLPGRPC:
		return otlploggrpc.New(ctx)
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	default:
		return nil, errors.New("unsupported exporter")
	}
}

// severity maps a slog level onto the OpenTelemetry severity scale.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
