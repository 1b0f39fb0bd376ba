// Package logger wraps hclog behind a small interface and carries loggers through contexts.
package logger
