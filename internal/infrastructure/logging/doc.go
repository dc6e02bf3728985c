// Package logging builds the log/slog logger every neolinkd component
// shares.
//
// Output is JSON or text, to stdout, stderr or nowhere, and every record
// carries the service name and build version. Components derive a child
// logger with Component:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("mqtt").Info("connected", "broker", uri)
//
// Attributes named password, rtsp_password, token or jwt_secret are
// replaced with "[redacted]" before they are written.
package logging
