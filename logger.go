package vecstore

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecstore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// WithProvider adds a provider field to the logger.
func (l *Logger) WithProvider(provider string) *Logger {
	return &Logger{
		Logger: l.Logger.With("provider", provider),
	}
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, id string, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"id", id,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"id", id,
			"dimension", dimension,
		)
	}
}

// LogBatchInsert logs a batch insert operation.
func (l *Logger) LogBatchInsert(ctx context.Context, count, committed int, err error) {
	if err != nil {
		l.WarnContext(ctx, "batch insert stopped",
			"total", count,
			"committed", committed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "batch insert completed",
			"count", count,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"id", id,
		)
	}
}

// LogUpdate logs an update operation.
func (l *Logger) LogUpdate(ctx context.Context, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "update completed",
			"id", id,
		)
	}
}

// LogSnapshot logs a save operation.
func (l *Logger) LogSnapshot(ctx context.Context, collection string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"collection", collection,
			"records", records,
		)
	}
}

// LogLoad logs a load operation.
func (l *Logger) LogLoad(ctx context.Context, collection string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot load failed",
			"collection", collection,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot loaded",
			"collection", collection,
			"records", records,
		)
	}
}

// LogCompress logs a compression operation.
func (l *Logger) LogCompress(ctx context.Context, bits int, ratio float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compression failed",
			"bits", bits,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "vectors compressed",
			"bits", bits,
			"ratio", ratio,
		)
	}
}
