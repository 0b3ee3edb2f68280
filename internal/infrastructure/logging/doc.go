// Package logging provides structured logging for rrdc.
//
// This package wraps Go's standard log/slog package so the CLI, the MQTT
// bridge and the rrdcached connection all log the same way.
//
// # Features
//
//   - JSON output for machines, text output for terminals
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stderr"   # stdout, stderr, discard
//
// stderr is the default so command output on stdout stays clean.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	client.Conn().SetLogger(logger.With("component", "rrdcached"))
//
// # Security
//
// Never log secrets. The MQTT password and InfluxDB token stay out of every
// log call.
package logging
