// Package logx configures pewcron's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An error channel (warn/error lines on stderr or a file, rate limited)
//
// Template renders the per-task message and failure report formats.
package logx
