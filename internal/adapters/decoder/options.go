package decoder

import "github.com/okian/turnlat/pkg/logger"

// Option applies a configuration option to the BeepDecoder.
type Option func(*BeepDecoder)

// WithFrameStep sets the energy frame width in milliseconds.
func WithFrameStep(ms int) Option {
	return func(d *BeepDecoder) {
		if ms > 0 {
			d.stepMS = ms
		}
	}
}

// WithLogger sets the decoder logger.
func WithLogger(l logger.Logger) Option {
	return func(d *BeepDecoder) {
		if l != nil {
			d.log = l
		}
	}
}
