// Package logging provides a simple leveled logging interface for the
// photo tagger.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The level defaults to the LOG_LEVEL (or DEBUG) environment variable and can
// be overridden with Configure, which also enables JSON output and a rotated
// log file.
package logging
