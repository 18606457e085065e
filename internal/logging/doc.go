// Package logging provides structured file logging with rotation for addresolve.
// With --debug, debug-level logs are written to ~/.addresolve/logs/ in JSON form.
// The serve command always logs to file only, since stdout carries the MCP stream.
package logging
