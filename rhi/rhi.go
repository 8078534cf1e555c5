// Copyright 2023 The Halcyon Authors. All rights reserved.

// Package rhi defines the rendering hardware interface consumed
// by the frame graph: a capability set for creating GPU resources,
// recording command lists and submitting them across queues.
// It is designed so that platform-specific APIs can be implemented
// in a mostly straightforward manner; the frame graph itself never
// touches an underlying API directly.
package rhi

import "errors"

// ErrNoDeviceMemory means that device memory could not be
// allocated.
var ErrNoDeviceMemory = errors.New("rhi: out of device memory")

// ErrNoHostMemory means that host memory could not be allocated.
var ErrNoHostMemory = errors.New("rhi: out of host memory")

// ErrFatal means that the driver is in an unrecoverable state.
// Upon encountering such an error the frame must be abandoned.
var ErrFatal = errors.New("rhi: fatal error")

// Queue identifies a hardware submission queue.
// Queues are distinct; ordering across queues is established
// with semaphores only.
type Queue int

// Queues.
const (
	QueueGraphics Queue = iota
	QueueCompute
	QueueTransfer
)

// Resource is the common type of every RHI handle that can be
// attached to a frame-graph node by name. The concrete value is
// a Texture, a *Surface, a Buffer or a *Mesh.
type Resource interface{}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be called
// explicitly.
type Destroyer interface {
	Destroy()
}

// Texture is a GPU image of any dimensionality, addressable as
// a shader resource or an attachment.
type Texture interface {
	Destroyer

	// Extent returns the width and height of mip level 0.
	Extent() (width, height int)

	// Depth returns the depth of the image; 1 for 2D images.
	Depth() int

	Format() Format

	// DefaultLayout is the layout the image is expected to be
	// in between uses. Nodes that transition an image away from
	// it must transition it back before returning.
	DefaultLayout() ImageLayout

	// Size returns the byte size of the image contents,
	// used to size host readback buffers.
	Size() int64
}

// RenderTarget is a texture with individually addressable
// mip levels.
type RenderTarget interface {
	Texture

	MipLevels() int

	// MipLayer returns the given mip level as a standalone
	// 2D texture view.
	MipLayer(level int) Texture
}

// Cubemap is a texture with six faces and individually
// addressable mip levels.
type Cubemap interface {
	Texture

	MipLevels() int

	// MipLevel returns the given mip level as a cubemap view.
	MipLevel(level int) Cubemap

	// Face returns one face of one mip level as a 2D texture
	// view.
	Face(face, level int) Texture
}

// Surface pairs an MSAA color target with its single-sample
// resolve target. Both are addressable under one frame-graph
// name; consumers that sample the result use Resolved.
type Surface struct {
	Target       Texture
	Resolved     Texture
	NeedsResolve bool
}

// Buffer is a GPU buffer. The size is fixed; when a larger
// buffer is necessary, a new one must be created.
type Buffer interface {
	Destroyer

	Size() int64

	// Offset is the suballocation offset of this buffer within
	// its backing storage, in bytes.
	Offset() int64

	// CompatibilityHash is a stable hash of the buffer's backing
	// storage identity; two buffers with equal hashes can share
	// a vertex/index binding.
	CompatibilityHash() uint64
}

// Fence is a single-fire device-to-host synchronization
// primitive.
type Fence interface {
	Destroyer

	// Wait blocks until the submission the fence was attached
	// to completes.
	Wait() error
}

// Semaphore is a GPU-GPU ordering primitive used to chain
// submissions across queues.
type Semaphore interface {
	Destroyer
}

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	StageVertex Stage = 1 << iota
	StageFragment
	StageCompute
)

// Shader is a single compiled shader module.
type Shader interface {
	Stage() Stage
	Name() string
}

// ShaderSet groups the shader modules of one effect. A set
// whose required stages are not yet compiled reports Ready
// false; nodes skip the frame and retry.
type ShaderSet struct {
	Vertex   Shader
	Fragment Shader
	Compute  Shader
}

// Ready reports whether the compute stage, or both the vertex
// and fragment stages, are available.
func (s *ShaderSet) Ready() bool {
	if s == nil {
		return false
	}
	return s.Compute != nil || s.Vertex != nil && s.Fragment != nil
}

// Material is a pipeline object keyed by vertex description,
// render state, shaders and binding layout.
type Material interface {
	Destroyer

	VertexDescription() *VertexDescription
	Topology() Topology
	RenderState() RenderState
	VertexShader() Shader
	FragmentShader() Shader

	// Bindings returns the material's own binding set
	// (descriptor slot holding per-material resources).
	Bindings() ShaderBindingSet

	// Ready reports whether the pipeline can be bound.
	Ready() bool
}

// Driver is the main interface to an underlying implementation.
// It is used to create resources and to submit command lists.
type Driver interface {
	Destroyer

	// Name returns the name of the driver.
	Name() string

	// BackBuffer and DepthBuffer are the final presentation
	// targets owned by the swapchain.
	BackBuffer() Texture
	DepthBuffer() Texture

	// MSAASamples returns the configured sample count;
	// 1 means multisampling is disabled.
	MSAASamples() int

	NewCommandList(queue Queue, secondary bool) CommandList
	NewSemaphore() Semaphore
	NewFence() Fence

	NewBuffer(size int64, usage BufferUsage, props MemoryProps) (Buffer, error)

	// NewBufferOn creates a buffer and records its upload on the
	// given command list. data is the typed payload and size its
	// byte length.
	NewBufferOn(cmd CommandList, data any, size int64, usage BufferUsage) (Buffer, error)

	// NewBufferImmediate creates a buffer and uploads data
	// synchronously, outside any frame command list.
	NewBufferImmediate(data any, size int64, usage BufferUsage) (Buffer, error)

	// NewIndirectBuffer creates a device-local buffer usable as
	// the source of indirect draw commands.
	NewIndirectBuffer(size int64) (Buffer, error)

	NewTexture(data any, size int64, extent [3]int, typ TextureType, format Format, filter Filtration, clamp Clamping, usage TextureUsage) (Texture, error)

	NewRenderTarget(width, height, mips int, format Format, filter Filtration, clamp Clamping, usage TextureUsage) (RenderTarget, error)

	// NewSurface creates an MSAA color target paired with its
	// resolve target.
	NewSurface(width, height int, format Format, filter Filtration, clamp Clamping) (*Surface, error)

	NewCubemap(size, mips int, format Format, filter Filtration, clamp Clamping, usage TextureUsage) (Cubemap, error)

	NewBindingSet() ShaderBindingSet

	NewMaterial(vd *VertexDescription, topology Topology, state RenderState, shaders *ShaderSet, bindings ShaderBindingSet) (Material, error)

	// Submit commits a command list for execution. fence, signal
	// and wait may be nil. Submit is not safe for concurrent use;
	// callers serialize submissions per driver.
	Submit(cmd CommandList, fence Fence, signal, wait Semaphore) error

	// SetDebugName attaches a human-readable label to a resource
	// or command list for capture tooling.
	SetDebugName(res Resource, name string)
}
