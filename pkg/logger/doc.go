// Package logger provides the structured logging interface used across favsync.
//
// It wraps zerolog behind the Logger interface so core packages can emit
// events (item skipped, page retry, store quarantined) without knowing where
// they end up. The console writer drops ANSI colors when stderr is not a
// terminal; when a log file is configured, JSON lines are written to it as
// well.
//
// Basic usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log, runID := logger.WithRunID(logger.GetLogger())
//	log.WithField("item_id", id).Info("item completed")
//
// Tests use NewNopLogger or NewTestLogger, which records every message for
// assertions.
package logger
