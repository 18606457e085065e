package logging

import (
	"log/slog"
)

// SetupServeMode initializes logging for the MCP stdio server.
// stdout is reserved for JSON-RPC, so logs go only to the file and never to
// stdout or stderr. Zero values in cfg take DefaultConfig values.
func SetupServeMode(cfg Config) (func(), error) {
	def := DefaultConfig()
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.FilePath == "" {
		cfg.FilePath = def.FilePath
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = def.MaxSizeMB
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	slog.Info("serve_logging_initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
