package hub

import "errors"

// ErrSlowConsumer is returned when a connection's outbound buffer is full.
var ErrSlowConsumer = errors.New("slow consumer")

// ErrTransportClosed is returned for sends on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

type connectionNotFoundError struct{ id string }

func (e connectionNotFoundError) Error() string { return "connection not found: " + e.id }

// IsConnectionNotFound reports whether err names an unknown connection id.
func IsConnectionNotFound(err error) bool {
	var e connectionNotFoundError
	return errors.As(err, &e)
}

type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// IsModelNotFound reports whether err indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}
