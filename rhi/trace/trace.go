// Copyright 2023 The Halcyon Authors. All rights reserved.

// Package trace implements the rhi contract with an in-memory
// driver that records every command into an inspectable stream.
// It backs the test suite and headless capture tooling: the
// recorded stream is the ground truth for pass nesting, layout
// walks and submission ordering.
package trace

import (
	"fmt"
	"sync"
	"sync/atomic"

	"halcyon/engine/rhi"
)

// Driver is a recording implementation of rhi.Driver.
type Driver struct {
	mu    sync.Mutex
	msaa  int
	back  *Target
	depth *Target

	nextID atomic.Uint64

	// Submissions holds every Submit call in order.
	Submissions []Submission
}

// Submission is one recorded Submit call.
type Submission struct {
	Cmd    *CommandList
	Fence  rhi.Fence
	Signal rhi.Semaphore
	Wait   rhi.Semaphore
}

// New creates a driver with a back buffer and depth buffer of
// the given size. msaaSamples of 1 disables multisampling.
func New(width, height, msaaSamples int) *Driver {
	d := &Driver{msaa: msaaSamples}
	d.back = d.newTarget(width, height, 1, rhi.FormatBGRA8SRGB, rhi.LayoutColorAttachment)
	d.depth = d.newTarget(width, height, 1, rhi.FormatD32SFloat, rhi.LayoutDepthStencilAttachment)
	return d
}

func (d *Driver) id() uint64 { return d.nextID.Add(1) }

func (d *Driver) Name() string { return "trace" }

func (d *Driver) Destroy() {}

func (d *Driver) BackBuffer() rhi.Texture  { return d.back }
func (d *Driver) DepthBuffer() rhi.Texture { return d.depth }
func (d *Driver) MSAASamples() int         { return d.msaa }

func (d *Driver) NewCommandList(queue rhi.Queue, secondary bool) rhi.CommandList {
	return &CommandList{drv: d, queue: queue, secondary: secondary}
}

func (d *Driver) NewSemaphore() rhi.Semaphore { return &Semaphore{ID: d.id()} }
func (d *Driver) NewFence() rhi.Fence         { return &Fence{} }

func (d *Driver) NewBuffer(size int64, usage rhi.BufferUsage, props rhi.MemoryProps) (rhi.Buffer, error) {
	return &Buffer{ID: d.id(), Sz: size, Usage: usage, Props: props}, nil
}

func (d *Driver) NewBufferOn(cmd rhi.CommandList, data any, size int64, usage rhi.BufferUsage) (rhi.Buffer, error) {
	buf := &Buffer{ID: d.id(), Sz: size, Usage: usage, Data: data}
	cmd.UpdateBuffer(buf, data, size, 0)
	return buf, nil
}

func (d *Driver) NewBufferImmediate(data any, size int64, usage rhi.BufferUsage) (rhi.Buffer, error) {
	return &Buffer{ID: d.id(), Sz: size, Usage: usage, Data: data}, nil
}

func (d *Driver) NewIndirectBuffer(size int64) (rhi.Buffer, error) {
	return &Buffer{ID: d.id(), Sz: size, Usage: rhi.UsageIndirectBuffer | rhi.UsageBufferTransferDst}, nil
}

func (d *Driver) NewTexture(data any, size int64, extent [3]int, typ rhi.TextureType, format rhi.Format, filter rhi.Filtration, clamp rhi.Clamping, usage rhi.TextureUsage) (rhi.Texture, error) {
	img := &Image{ID: d.id(), W: extent[0], H: extent[1], D: extent[2], Fmt: format, Layout: rhi.LayoutShaderReadOnly}
	if img.D == 0 {
		img.D = 1
	}
	img.Data = data
	_ = size
	return img, nil
}

func (d *Driver) newTarget(width, height, mips int, format rhi.Format, layout rhi.ImageLayout) *Target {
	t := &Target{
		Image: Image{ID: d.id(), W: width, H: height, D: 1, Fmt: format, Layout: layout},
	}
	t.mips = make([]*Image, mips)
	for i := range t.mips {
		w, h := width>>i, height>>i
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		t.mips[i] = &Image{ID: d.id(), W: w, H: h, D: 1, Fmt: format, Layout: layout, parent: t}
	}
	return t
}

func (d *Driver) NewRenderTarget(width, height, mips int, format rhi.Format, filter rhi.Filtration, clamp rhi.Clamping, usage rhi.TextureUsage) (rhi.RenderTarget, error) {
	layout := rhi.LayoutShaderReadOnly
	if format.IsDepth() {
		layout = rhi.LayoutDepthStencilAttachment
	} else if usage&rhi.UsageColorAttachment != 0 {
		layout = rhi.LayoutColorAttachment
	}
	return d.newTarget(width, height, mips, format, layout), nil
}

func (d *Driver) NewSurface(width, height int, format rhi.Format, filter rhi.Filtration, clamp rhi.Clamping) (*rhi.Surface, error) {
	target := d.newTarget(width, height, 1, format, rhi.LayoutColorAttachment)
	resolved := d.newTarget(width, height, 1, format, rhi.LayoutColorAttachment)
	return &rhi.Surface{Target: target, Resolved: resolved, NeedsResolve: d.msaa > 1}, nil
}

func (d *Driver) NewCubemap(size, mips int, format rhi.Format, filter rhi.Filtration, clamp rhi.Clamping, usage rhi.TextureUsage) (rhi.Cubemap, error) {
	return d.newCube(size, mips, format), nil
}

func (d *Driver) newCube(size, mips int, format rhi.Format) *Cube {
	c := &Cube{Image: Image{ID: d.id(), W: size, H: size, D: 1, Fmt: format, Layout: rhi.LayoutShaderReadOnly}}
	if mips > 1 {
		c.levels = make([]*Cube, mips)
		c.levels[0] = c
		for i := 1; i < mips; i++ {
			s := size >> i
			if s < 1 {
				s = 1
			}
			c.levels[i] = &Cube{Image: Image{ID: d.id(), W: s, H: s, D: 1, Fmt: format, Layout: rhi.LayoutShaderReadOnly}}
		}
	}
	return c
}

func (d *Driver) NewBindingSet() rhi.ShaderBindingSet {
	return &BindingSet{drv: d}
}

func (d *Driver) NewMaterial(vd *rhi.VertexDescription, topology rhi.Topology, state rhi.RenderState, shaders *rhi.ShaderSet, bindings rhi.ShaderBindingSet) (rhi.Material, error) {
	if bindings == nil {
		bindings = d.NewBindingSet()
	}
	return &Material{vd: vd, topology: topology, state: state, shaders: shaders, bindings: bindings}, nil
}

func (d *Driver) Submit(cmd rhi.CommandList, fence rhi.Fence, signal, wait rhi.Semaphore) error {
	cl, ok := cmd.(*CommandList)
	if !ok {
		return fmt.Errorf("trace: foreign command list %T", cmd)
	}
	if !cl.ended {
		return fmt.Errorf("trace: submit of open command list")
	}
	d.mu.Lock()
	d.Submissions = append(d.Submissions, Submission{Cmd: cl, Fence: fence, Signal: signal, Wait: wait})
	d.mu.Unlock()
	return nil
}

func (d *Driver) SetDebugName(res rhi.Resource, name string) {
	switch r := res.(type) {
	case *Image:
		r.DebugName = name
	case *Target:
		r.DebugName = name
	case *Cube:
		r.DebugName = name
	case *CommandList:
		r.DebugName = name
	case *Buffer:
		r.DebugName = name
	}
}

// Semaphore is a recorded GPU-GPU ordering primitive.
type Semaphore struct {
	ID uint64
}

func (s *Semaphore) Destroy() {}

// Fence is a single-fire fence; in the trace driver every
// submission completes as soon as it is recorded.
type Fence struct{}

func (f *Fence) Wait() error { return nil }
func (f *Fence) Destroy()    {}

// Buffer is a recorded GPU buffer.
type Buffer struct {
	ID        uint64
	Sz        int64
	Usage     rhi.BufferUsage
	Props     rhi.MemoryProps
	Data      any
	DebugName string
}

func (b *Buffer) Size() int64               { return b.Sz }
func (b *Buffer) Offset() int64             { return 0 }
func (b *Buffer) CompatibilityHash() uint64 { return b.ID }
func (b *Buffer) Destroy()                  {}

// Image is a recorded texture.
type Image struct {
	ID        uint64
	W, H, D   int
	Fmt       rhi.Format
	Layout    rhi.ImageLayout
	Data      any
	DebugName string
	parent    *Target
}

func (t *Image) Extent() (int, int)             { return t.W, t.H }
func (t *Image) Depth() int                     { return t.D }
func (t *Image) Format() rhi.Format             { return t.Fmt }
func (t *Image) DefaultLayout() rhi.ImageLayout { return t.Layout }
func (t *Image) Size() int64 {
	return int64(t.W) * int64(t.H) * int64(t.D) * t.Fmt.TexelSize()
}
func (t *Image) Destroy() {}

// Target is a recorded render target with addressable mips.
type Target struct {
	Image
	mips []*Image
}

func (t *Target) MipLevels() int { return len(t.mips) }

func (t *Target) MipLayer(level int) rhi.Texture { return t.mips[level] }

// Cube is a recorded cubemap.
type Cube struct {
	Image
	levels []*Cube
}

func (c *Cube) MipLevels() int {
	if len(c.levels) == 0 {
		return 1
	}
	return len(c.levels)
}

func (c *Cube) MipLevel(level int) rhi.Cubemap {
	if len(c.levels) == 0 && level == 0 {
		return c
	}
	return c.levels[level]
}

func (c *Cube) Face(face, level int) rhi.Texture {
	lv := c.MipLevel(level).(*Cube)
	return &lv.Image
}

// Material is a recorded pipeline object.
type Material struct {
	vd       *rhi.VertexDescription
	topology rhi.Topology
	state    rhi.RenderState
	shaders  *rhi.ShaderSet
	bindings rhi.ShaderBindingSet
}

func (m *Material) VertexDescription() *rhi.VertexDescription { return m.vd }
func (m *Material) Topology() rhi.Topology                    { return m.topology }
func (m *Material) RenderState() rhi.RenderState              { return m.state }
func (m *Material) VertexShader() rhi.Shader                  { return m.shaders.Vertex }
func (m *Material) FragmentShader() rhi.Shader                { return m.shaders.Fragment }
func (m *Material) Bindings() rhi.ShaderBindingSet            { return m.bindings }
func (m *Material) Ready() bool                               { return m.shaders.Ready() }
func (m *Material) Destroy()                                  {}
