package logging

import (
	"log/slog"
)

// SetupServeMode installs a file-only default logger for the MCP server.
// Stdout carries JSON-RPC and stderr may be captured by the client, so no
// record goes to either.
func SetupServeMode(level, path string) (func(), error) {
	if path == "" {
		path = DefaultLogPath()
	}
	cfg := Config{
		Level:         level,
		FilePath:      path,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("serve_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", level))
	return cleanup, nil
}
