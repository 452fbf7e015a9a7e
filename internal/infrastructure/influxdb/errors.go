package influxdb

import "errors"

// Sentinel errors for the monitor archive connection.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false;
	// the daemon then runs without an archive.
	ErrDisabled = errors.New("influxdb: archive disabled in configuration")

	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrUnhealthy is returned by HealthCheck when the server answers
	// the ping but reports itself not ready, or does not answer.
	ErrUnhealthy = errors.New("influxdb: server unhealthy")

	// ErrWriteFailed wraps the asynchronous batch errors passed to the
	// SetOnError callback. A failed batch is dropped, not retried.
	ErrWriteFailed = errors.New("influxdb: batch write failed")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("influxdb: client closed")
)
