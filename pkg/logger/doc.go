// Package logger constructs the application's slog.Logger with the
// configured level and an output format suited to the environment.
package logger
