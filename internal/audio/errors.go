package audio

import "errors"

var (
	// ErrUnsupportedFormat is returned when no decoder handles a MIME type.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrDecode wraps any failure of a decoder while integrating data.
	ErrDecode = errors.New("audio decode error")

	// ErrSinkClosed is returned by Append after Close or Abort.
	ErrSinkClosed = errors.New("sink closed")

	// ErrTooLong is returned when decoded audio outgrows the buffer cap.
	ErrTooLong = errors.New("audio too long to buffer")

	// ErrReleased is returned by readers of a buffer that has been released.
	ErrReleased = errors.New("audio buffer released")
)
