// Package logger provides a structured logging solution using the Zap logging library.
// It exposes a process-wide, context-aware logger for the CLI layer and the Logger
// interface that library components receive by injection instead of reaching for
// global state. *zap.SugaredLogger satisfies Logger, so a named child of the
// process logger can be passed straight into a Fetcher.
package logger
