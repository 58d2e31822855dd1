// Package logging is the daemon's ambient logging stack: named component
// loggers backed by logrus, rotated to disk via lumberjack, rendered
// through a Formatter that enforces the daemon's wire log-line shape
//
//	YYYY-MM-DD HH:MM:SS,mmm LEVEL [HOSTNAME] component.path.identifier message
//
// and redacts credentials (Authorization headers, password/secret/token/
// apikey fields, <wsse:Password> bodies) before anything reaches a sink.
package logging
