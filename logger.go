package sliceset

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with sliceset-specific helpers.
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

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// It is the library default.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithDir adds the dataset directory to the logger.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dir", dir),
	}
}

// LogBlockWritten logs one persisted block.
func (l *Logger) LogBlockWritten(block, items int) {
	l.Debug("block written",
		"block", block,
		"items", items,
	)
}

// LogBlockSkipped logs a block that was kept from a previous run.
func (l *Logger) LogBlockSkipped(block int) {
	l.Debug("block skipped, already on disk",
		"block", block,
	)
}

// LogBuildDone logs a completed build.
func (l *Logger) LogBuildDone(length, blockSize, blockCount int, resumed bool) {
	l.Info("build completed",
		"length", length,
		"block_size", blockSize,
		"block_count", blockCount,
		"resumed", resumed,
	)
}

// LogStalePruned logs removal of a block file beyond the final layout.
func (l *Logger) LogStalePruned(block int) {
	l.Info("stale block pruned",
		"block", block,
	)
}

// LogOpen logs an opened dataset.
func (l *Logger) LogOpen(length, blockCount, maxCachedBlocks int) {
	l.Info("dataset opened",
		"length", length,
		"block_count", blockCount,
		"max_cached_blocks", maxCachedBlocks,
	)
}

// LogEvict logs an evicted block.
func (l *Logger) LogEvict(block int) {
	l.Debug("block evicted",
		"block", block,
	)
}
