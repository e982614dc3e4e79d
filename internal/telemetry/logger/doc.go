// Package logger provides structured logging for SigMesh.
//
// This package wraps log/slog for structured JSON logging:
//
//   - logger.go: Logger interface, slog handler setup, level control
//   - context.go: Context-aware logging with request/trace IDs
//   - redact.go: Sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Log level filtering
//   - Automatic sensitive data masking
//   - Context propagation for request tracing
package logger
