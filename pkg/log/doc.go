/*
Package log provides structured logging for filebox using zerolog.

A single package-level zerolog.Logger is shared by every component. Until Init
is called it is a no-op logger, so library code and tests stay quiet.

# Configuration

  - Level: debug, info, warn or error (unknown names fall back to info)
  - JSONOutput: JSON lines instead of the human console writer
  - Output: destination writer, stderr by default so command output on
    stdout stays clean

# Component Loggers

	storageLog := log.WithComponent("storage")
	storageLog.Info().Int("schema_version", 4).Msg("store ready")

	fileLog := log.WithFileID(entry.ID)
	fileLog.Debug().Msg("cascade cleanup")

Console output looks like:

	2025-01-02T10:30:00Z INF store ready component=storage schema_version=4
*/
package log
