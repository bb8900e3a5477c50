//go:build !nogpu

package native

import "errors"

// Package errors for the native device.
var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrBackendUnavailable is returned when the requested HAL backend is
	// not registered.
	ErrBackendUnavailable = errors.New("native: backend not available")

	// ErrProvider is returned by FromProvider when the provider does not
	// expose HAL types.
	ErrProvider = errors.New("native: provider does not expose HAL device and queue")

	// ErrDeviceLost is returned when the GPU device is lost.
	ErrDeviceLost = errors.New("native: GPU device lost")

	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("native: unknown resource")

	// ErrInvalidDescriptor is returned for malformed descriptors.
	ErrInvalidDescriptor = errors.New("native: invalid descriptor")

	// ErrUsage is returned when a buffer lacks the usage flag an operation
	// requires.
	ErrUsage = errors.New("native: missing usage flag")

	// ErrBufferMapped is returned when a mapped or pending buffer is mapped
	// again.
	ErrBufferMapped = errors.New("native: buffer is mapped or mapping is pending")

	// ErrBufferNotMapped is returned by MappedRange and Unmap on an
	// unmapped buffer.
	ErrBufferNotMapped = errors.New("native: buffer is not mapped")

	// ErrEncoderState is returned for out-of-order recording calls.
	ErrEncoderState = errors.New("native: invalid encoder state")

	// ErrTimeout is returned when a submission does not complete in time.
	ErrTimeout = errors.New("native: GPU wait timed out")
)
