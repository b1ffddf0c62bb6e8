// Package logging configures the process logger: JSON records through
// log/slog, written to a size-rotated file under ~/.mediadex/logs and,
// outside of MCP serving, mirrored to stderr.
//
// The "logs" command reads the same files back through Viewer.
package logging
