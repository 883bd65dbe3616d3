// Package logging builds the gateway's slog-based structured logger.
//
// Every entry carries service and version fields. Subsystems tag their
// entries with Component, and the connection handler tags a client's
// entries with Session so one connection's lifecycle can be followed by
// session_id.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Command outcomes go through Logger.Command: successful statements at
// debug, failed ones at warn with the engine's message. Statement text can
// contain passwords and is never logged.
package logging
