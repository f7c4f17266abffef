// Package logging builds the process-wide slog handler.
package logging
