// Package logging provides structured logging for mqttremote.
//
// This package wraps Go's standard log/slog package so the daemon, the
// connection supervisor and the MQTT transports all log the same way.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	r, err := remote.New(transport, remote.Options{Logger: logger.Component("remote")})
//
// Never log broker passwords or InfluxDB tokens.
package logging
