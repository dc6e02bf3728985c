package influxdb

import "errors"

var (
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
	// ErrWriteFailed wraps errors from the async write API.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
