// Package pkg provides shared utilities for the softrndis protocol engine.
//
// This package contains functionality used by every other package in the
// module:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for the RNDIS error taxonomy
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with per-component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentRNDIS, "instance initialized", "id", 0)
//
// Levels and formats can be parsed from configuration strings with
// [ParseLogLevel] and [ParseLogFormat].
//
// # Errors
//
// Protocol failures are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrNoNetworkDevice) {
//	    // Bind a network device before initializing
//	}
package pkg
