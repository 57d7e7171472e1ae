package interceptor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

const (
	unknown   = "unknown"
	anonymous = "anonymous"
)

// Record is the structured summary of one request, emitted once by Log.
type Record struct {
	CorrelationID  string `json:"correlation_id"`
	Method         string `json:"method"`
	Path           string `json:"path"`
	ClientIP       string `json:"client_ip"`
	Route          string `json:"route"`
	Consumer       string `json:"consumer"`
	Status         int    `json:"status"`
	DurationMillis int64  `json:"duration_ms"`
	BodyBytes      int64  `json:"body_bytes"`
	BodyOutOfRange bool   `json:"body_out_of_range"`
	Timestamp      string `json:"timestamp"`
}

// Severity maps a response status to the level its record is logged at.
// A status of 0 (no response observed) is informational.
func Severity(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// severityLabel is the lower-case level name used as a metric label.
func severityLabel(level slog.Level) string {
	return strings.ToLower(level.String())
}

func (r Record) attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("correlation_id", r.CorrelationID),
		slog.String("method", r.Method),
		slog.String("path", r.Path),
		slog.String("client_ip", r.ClientIP),
		slog.String("route", r.Route),
		slog.String("consumer", r.Consumer),
		slog.Int("status", r.Status),
		slog.Int64("duration_ms", r.DurationMillis),
		slog.Int64("body_bytes", r.BodyBytes),
		slog.Bool("body_out_of_range", r.BodyOutOfRange),
		slog.String("timestamp", r.Timestamp),
	}
}

// emit writes the record at its severity and, when full is set, a second
// line carrying the JSON encoding of the whole record.
func emit(ctx context.Context, logger *slog.Logger, rec Record, full bool) {
	level := Severity(rec.Status)
	logger.LogAttrs(ctx, level, "request completed", rec.attrs()...)

	if !full {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "request record marshal failed",
			slog.String("correlation_id", rec.CorrelationID),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.LogAttrs(ctx, level, "request record",
		slog.String("correlation_id", rec.CorrelationID),
		slog.String("record", string(data)),
	)
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
