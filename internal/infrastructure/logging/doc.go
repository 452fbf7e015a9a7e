// Package logging provides structured logging for the hwmc daemon.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across every session and component.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error (or syslog priority 0-7)
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file: "/var/log/hwmc/hwmc.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	ant := logger.With("component", "session", "antenna", 5)
//	ant.Error("register read failed", "error", err)
package logging
