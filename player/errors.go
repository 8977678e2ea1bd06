package player

import "errors"

var (
	// ErrInvalidOperation is returned by lifecycle calls on a session that
	// cannot accept them
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrAlreadyPreparing is returned when a synchronous prepare is in progress
	ErrAlreadyPreparing = errors.New("prepare already in progress")

	// ErrStopped is returned by blocking waits released by a shutdown
	ErrStopped = errors.New("stopped")

	// ErrEndOfStream is returned by a source that has no more packets
	ErrEndOfStream = errors.New("end of stream")

	// ErrNoData is returned by a source that has nothing to read yet
	ErrNoData = errors.New("no data available yet")

	// ErrDrained is returned by a decoder with no buffered frames left
	ErrDrained = errors.New("decoder drained")

	// ErrNoStreams is returned when neither an audio nor a video stream opens
	ErrNoStreams = errors.New("could not open any stream")

	errUnderrun = errors.New("audio queue empty")
)
