package decoder

import "errors"

// Sentinel kinds for decoding errors.
var (
	ErrUnsupportedChannels = errors.New("recording is not two-channel")
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrEmptyAudio          = errors.New("empty audio payload")
)
