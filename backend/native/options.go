//go:build !nogpu

package native

import (
	"time"

	"github.com/gogpu/gputypes"
)

type options struct {
	backend      gputypes.Backend
	submitTimeout time.Duration
}

func defaultOptions() options {
	return options{
		backend:      gputypes.BackendVulkan,
		submitTimeout: defaultSubmitTimeout,
	}
}

// Option configures a Device.
type Option func(*options)

// WithBackend selects the HAL backend Open acquires. The default is Vulkan.
func WithBackend(b gputypes.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithSubmitTimeout bounds the wait for each submission. Values below 1
// keep the default of five seconds.
func WithSubmitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.submitTimeout = d
		}
	}
}
