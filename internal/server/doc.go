// Package server exposes the status endpoints of a scheduled pipeline over HTTP using Fiber:
// liveness and readiness probes under /-/ and the latest run state under /status.
package server
