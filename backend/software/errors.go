package software

import "errors"

// Software device errors.
var (
	// ErrDeviceLost is returned by every operation after Lose or Destroy.
	ErrDeviceLost = errors.New("software: device lost")

	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("software: unknown resource")

	// ErrInvalidDescriptor is returned for malformed descriptors.
	ErrInvalidDescriptor = errors.New("software: invalid descriptor")

	// ErrEntryPointNotFound is returned when a program declares an entry
	// point the kernel table does not provide.
	ErrEntryPointNotFound = errors.New("software: entry point not found")

	// ErrBindingMismatch is returned when a bind group does not match the
	// layout it is created against or used with.
	ErrBindingMismatch = errors.New("software: binding mismatch")

	// ErrUsage is returned when a resource lacks the usage flag an
	// operation requires.
	ErrUsage = errors.New("software: missing usage flag")

	// ErrOutOfRange is returned for offsets or sizes outside a resource.
	ErrOutOfRange = errors.New("software: range out of bounds")

	// ErrBufferMapped is returned when a mapped or pending buffer is used
	// by the device or mapped again.
	ErrBufferMapped = errors.New("software: buffer is mapped or mapping is pending")

	// ErrBufferNotMapped is returned by MappedRange and Unmap on an
	// unmapped buffer.
	ErrBufferNotMapped = errors.New("software: buffer is not mapped")

	// ErrEncoderState is returned for out-of-order recording calls.
	ErrEncoderState = errors.New("software: invalid encoder state")

	// ErrKernelPanic wraps a panic raised inside a kernel.
	ErrKernelPanic = errors.New("software: kernel panic")
)
