// Package readback copies small device results back to the host.
//
// A readback is five steps: copy the source buffer into its staging
// buffer inside a command batch, submit, request a map of the staging
// buffer, poll the device until the map completes, then copy the mapped
// bytes out and unmap. Record covers the first step so the copy can ride
// along in the caller's batch; Await covers the last three. ReadBytes and
// ReadU32 run all five in a batch of their own.
//
// Staging buffers are allocated by Prepare at construction time and are
// registered as label+"/staging" in the owning registry.
package readback

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/internal/logger"
	"github.com/gogpu/orb/registry"
)

// ErrNotPrepared is returned when a readback names a buffer without a
// staging buffer.
var ErrNotPrepared = errors.New("readback: buffer not prepared")

// ErrMapFailed is wrapped by a DeviceError when a map completes with a
// status other than success.
var ErrMapFailed = errors.New("readback: map failed")

// DeviceError reports a failed submission or map.
type DeviceError struct {
	Op     string            // "submit", "map" or "read"
	Label  string            // buffer being read back
	Status gpucore.MapStatus // map status, Success for submission failures
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Status != gpucore.MapStatusSuccess {
		return fmt.Sprintf("readback: %s %q: %s: %v", e.Op, e.Label, e.Status, e.Err)
	}
	return fmt.Sprintf("readback: %s %q: %v", e.Op, e.Label, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// StagingLabel returns the label of the staging buffer for label.
func StagingLabel(label string) string { return label + "/staging" }

type pair struct {
	src     *registry.Buffer
	staging *registry.Buffer
}

// Reader performs readbacks of buffers owned by one registry.
type Reader struct {
	reg *registry.Registry
	dev gpucore.Device

	mu    sync.Mutex
	pairs map[string]pair
}

// New creates a Reader for buffers in reg.
func New(reg *registry.Registry) *Reader {
	return &Reader{
		reg:   reg,
		dev:   reg.Device(),
		pairs: make(map[string]pair),
	}
}

// Prepare allocates the staging buffer for label. The source buffer must
// have CopySrc usage. Preparing a label twice is a no-op.
func (r *Reader) Prepare(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pairs[label]; ok {
		return nil
	}
	src, err := r.reg.Buffer(label)
	if err != nil {
		return err
	}
	if src.Usage&gputypes.BufferUsageCopySrc == 0 {
		return &registry.ConfigError{
			Op:    "prepare readback of",
			Kind:  registry.KindBuffer,
			Label: label,
			Err:   fmt.Errorf("%w: buffer has no copy-source usage", registry.ErrLayoutMismatch),
		}
	}
	staging, err := r.reg.CreateBuffer(StagingLabel(label), src.Size,
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	r.pairs[label] = pair{src: src, staging: staging}
	return nil
}

func (r *Reader) pair(label string) (pair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairs[label]
	if !ok {
		return pair{}, fmt.Errorf("%w: %q", ErrNotPrepared, label)
	}
	return p, nil
}

// Record records the copy of label into its staging buffer.
func (r *Reader) Record(enc gpucore.CommandEncoder, label string) error {
	p, err := r.pair(label)
	if err != nil {
		return err
	}
	enc.CopyBufferToBuffer(p.src.ID, 0, p.staging.ID, 0, p.src.Size)
	return nil
}

// Await maps the staging buffer of label and polls the device until the
// map completes, then returns a copy of its contents. It never returns
// before the completion signal unless ctx is done first.
func (r *Reader) Await(ctx context.Context, label string) ([]byte, error) {
	p, err := r.pair(label)
	if err != nil {
		return nil, err
	}
	id, size := p.staging.ID, p.staging.Size

	done := make(chan gpucore.MapStatus, 1)
	if err := r.dev.MapAsync(id, gpucore.MapModeRead, 0, size, func(s gpucore.MapStatus) {
		done <- s
	}); err != nil {
		return nil, &DeviceError{Op: "map", Label: label, Status: gpucore.MapStatusValidationError, Err: err}
	}

	polls := 0
	for {
		select {
		case status := <-done:
			logger.L().Debug("readback: map complete", "label", label, "status", status, "polls", polls)
			if status != gpucore.MapStatusSuccess {
				return nil, &DeviceError{Op: "map", Label: label, Status: status, Err: ErrMapFailed}
			}
			return r.copyOut(label, id, size)
		case <-ctx.Done():
			// Cancels the pending map; its callback lands in the buffered
			// channel on a later poll.
			_ = r.dev.Unmap(id)
			return nil, fmt.Errorf("readback: await %q: %w", label, ctx.Err())
		default:
		}
		r.dev.Poll(true)
		polls++
	}
}

func (r *Reader) copyOut(label string, id gpucore.BufferID, size uint64) ([]byte, error) {
	mapped, err := r.dev.MappedRange(id, 0, size)
	if err != nil {
		_ = r.dev.Unmap(id)
		return nil, &DeviceError{Op: "read", Label: label, Err: err}
	}
	out := bytes.Clone(mapped)
	if err := r.dev.Unmap(id); err != nil {
		return nil, &DeviceError{Op: "read", Label: label, Err: err}
	}
	return out, nil
}

// ReadBytes reads label back in a batch of its own.
func (r *Reader) ReadBytes(ctx context.Context, label string) ([]byte, error) {
	enc, err := r.dev.CreateCommandEncoder("readback " + label)
	if err != nil {
		return nil, &DeviceError{Op: "submit", Label: label, Err: err}
	}
	if err := r.Record(enc, label); err != nil {
		return nil, err
	}
	cmd, err := enc.Finish()
	if err != nil {
		return nil, &DeviceError{Op: "submit", Label: label, Err: err}
	}
	if err := r.dev.Submit(cmd); err != nil {
		return nil, &DeviceError{Op: "submit", Label: label, Err: err}
	}
	return r.Await(ctx, label)
}

// ReadU32 reads the first 32-bit word of label.
func (r *Reader) ReadU32(ctx context.Context, label string) (uint32, error) {
	var v uint32
	if err := r.ReadInto(ctx, label, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// ReadInto reads label back and decodes its leading bytes little-endian
// into out, which must be a pointer to a fixed-size value or a slice of
// them (see encoding/binary).
func (r *Reader) ReadInto(ctx context.Context, label string, out any) error {
	data, err := r.ReadBytes(ctx, label)
	if err != nil {
		return err
	}
	return Decode(data, out)
}

// Decode decodes little-endian data into out.
func Decode(data []byte, out any) error {
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, out); err != nil {
		return fmt.Errorf("readback: decode %d bytes into %T: %w", len(data), out, err)
	}
	return nil
}
