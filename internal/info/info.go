// Package info holds application version information.
package info

var (
	// AppName is the name of the application.
	AppName = "dummy-etl"
	// Version is overridden at build time through -ldflags.
	Version = "DEV"
	// BuildDate is overridden at build time through -ldflags.
	BuildDate = "" // YYYY-MM-DD
)
