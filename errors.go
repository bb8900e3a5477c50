package orb

import (
	"errors"

	"github.com/gogpu/orb/readback"
	"github.com/gogpu/orb/registry"
)

// Construction errors. They are wrapped in a *ConfigError that names the
// offending resource.
var (
	ErrDuplicateLabel = registry.ErrDuplicateLabel
	ErrLabelNotFound  = registry.ErrLabelNotFound
	ErrSizeMismatch   = registry.ErrSizeMismatch
	ErrLayoutMismatch = registry.ErrLayoutMismatch
	ErrClosed         = registry.ErrClosed
)

// ErrDescriptorsDisabled is returned by Descriptors when the pipeline was
// built without the descriptor stage.
var ErrDescriptorsDisabled = errors.New("orb: descriptors disabled")

// ConfigError reports a resource that could not be created or wired.
type ConfigError = registry.ConfigError

// DeviceError reports a failed submission, device loss or failed map.
type DeviceError = readback.DeviceError
