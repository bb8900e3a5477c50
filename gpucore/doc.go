// Package gpucore provides the device abstraction shared by the orb pipeline
// and its backends.
//
// This package defines the [Device] interface, which abstracts over compute
// backends so that the same pipeline runs on:
//   - gogpu/wgpu HAL (backend/native, Vulkan)
//   - a CPU device executing Go kernels (backend/software)
//
// # Architecture
//
//	               +-----------------+
//	               |   orb.Pipeline  |
//	               +--------+--------+
//	                        |
//	               +--------+--------+
//	               |    registry     |
//	               +--------+--------+
//	                        |
//	               +--------+--------+
//	               | gpucore.Device  |
//	               +--------+--------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------+--------+          +---------+-------+
//	| backend/native  |          | backend/software|
//	|  (wgpu HAL)     |          |  (Go kernels)   |
//	+-----------------+          +-----------------+
//
// Resources are addressed through opaque uint64 IDs. Descriptors reuse the
// gputypes vocabulary for usage flags, formats and sampler modes so that
// backends can pass them through unchanged.
package gpucore
