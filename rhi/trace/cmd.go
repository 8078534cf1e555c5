// Copyright 2023 The Halcyon Authors. All rights reserved.

package trace

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/rhi"
)

// Op names one recorded command kind.
type Op string

// Recorded command kinds.
const (
	OpBeginDebugRegion    Op = "BeginDebugRegion"
	OpEndDebugRegion      Op = "EndDebugRegion"
	OpBeginRenderPass     Op = "BeginRenderPass"
	OpEndRenderPass       Op = "EndRenderPass"
	OpRenderSecondary     Op = "RenderSecondary"
	OpImageBarrier        Op = "ImageBarrier"
	OpBlitImage           Op = "BlitImage"
	OpClearImage          Op = "ClearImage"
	OpDispatch            Op = "Dispatch"
	OpBindMaterial        Op = "BindMaterial"
	OpBindBindingSets     Op = "BindBindingSets"
	OpBindVertexBuffer    Op = "BindVertexBuffer"
	OpBindIndexBuffer     Op = "BindIndexBuffer"
	OpSetViewport         Op = "SetViewport"
	OpDrawIndexed         Op = "DrawIndexed"
	OpDrawIndexedIndirect Op = "DrawIndexedIndirect"
	OpUpdateBuffer        Op = "UpdateBuffer"
	OpUpdateBinding       Op = "UpdateBinding"
	OpPushConstants       Op = "PushConstants"
	OpCopyImageToBuf      Op = "CopyImageToBuffer"
	OpGenerateMipmaps     Op = "GenerateMipmaps"
	OpEquirectToCube      Op = "EquirectToCubemap"
)

// Command is one recorded command with the subset of fields its
// Op uses.
type Command struct {
	Op    Op
	Label string

	Colors     []rhi.Texture
	Surfaces   []*rhi.Surface
	Depth      rhi.Texture
	Area       rhi.Region
	Clear      bool
	ClearColor mgl32.Vec4
	StoreDepth bool
	Lists      []rhi.CommandList

	Img                  rhi.Texture
	OldLayout, NewLayout rhi.ImageLayout

	Src, Dst             rhi.Texture
	SrcRegion, DstRegion rhi.Region
	Cubemap              rhi.Cubemap

	Shader   rhi.Shader
	Groups   [3]int
	Sets     []rhi.ShaderBindingSet
	Push     any
	PushSize int

	Material rhi.Material
	Buf      rhi.Buffer
	Binding  rhi.ShaderBinding
	Data     any
	Size     int64
	Offset   int64

	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  uint32
	FirstInstance uint32
	DrawCount     uint32
	Stride        uint32

	Viewport [4]float32
}

// CommandList is a recording command list. It tracks the pass
// and debug-region nesting depth so that End can reject
// unbalanced recordings.
type CommandList struct {
	drv       *Driver
	queue     rhi.Queue
	secondary bool
	DebugName string

	Commands []Command

	begun, ended bool
	passDepth    int
	regionDepth  int

	numCommands int
	gpuCost     int
}

func (c *CommandList) Queue() rhi.Queue  { return c.queue }
func (c *CommandList) IsSecondary() bool { return c.secondary }
func (c *CommandList) Destroy()          {}

func (c *CommandList) Begin(oneTimeSubmit bool) error {
	if c.begun && !c.ended {
		return fmt.Errorf("trace: Begin on open command list")
	}
	c.begun, c.ended = true, false
	c.Commands = c.Commands[:0]
	c.numCommands, c.gpuCost = 0, 0
	c.passDepth, c.regionDepth = 0, 0
	return nil
}

func (c *CommandList) End() error {
	if !c.begun || c.ended {
		return fmt.Errorf("trace: End without Begin")
	}
	if c.passDepth != 0 {
		return fmt.Errorf("trace: unbalanced render pass (depth %d)", c.passDepth)
	}
	if c.regionDepth != 0 {
		return fmt.Errorf("trace: unbalanced debug region (depth %d)", c.regionDepth)
	}
	c.ended = true
	return nil
}

// record appends cmd with the given GPU cost. Debug regions are
// free: they contribute neither commands nor cost.
func (c *CommandList) record(cmd Command, cost int) {
	c.Commands = append(c.Commands, cmd)
	if cmd.Op != OpBeginDebugRegion && cmd.Op != OpEndDebugRegion {
		c.numCommands++
		c.gpuCost += cost
	}
}

func (c *CommandList) BeginDebugRegion(label string, color mgl32.Vec4) {
	c.regionDepth++
	c.record(Command{Op: OpBeginDebugRegion, Label: label, ClearColor: color}, 0)
}

func (c *CommandList) EndDebugRegion() {
	c.regionDepth--
	c.record(Command{Op: OpEndDebugRegion}, 0)
}

func (c *CommandList) BeginRenderPass(colors []rhi.Texture, depth rhi.Texture, area rhi.Region, clear bool, clearColor mgl32.Vec4, storeDepth bool) {
	c.passDepth++
	c.record(Command{
		Op: OpBeginRenderPass, Colors: colors, Depth: depth, Area: area,
		Clear: clear, ClearColor: clearColor, StoreDepth: storeDepth,
	}, 2)
}

func (c *CommandList) BeginRenderPassMSAA(colors []*rhi.Surface, depth rhi.Texture, area rhi.Region, clear bool, clearColor mgl32.Vec4, storeDepth bool) {
	c.passDepth++
	c.record(Command{
		Op: OpBeginRenderPass, Surfaces: colors, Depth: depth, Area: area,
		Clear: clear, ClearColor: clearColor, StoreDepth: storeDepth,
	}, 2)
}

func (c *CommandList) EndRenderPass() {
	c.passDepth--
	c.record(Command{Op: OpEndRenderPass}, 2)
}

func (c *CommandList) RenderSecondary(lists []rhi.CommandList, colors []rhi.Texture, depth rhi.Texture, area rhi.Region, clear bool, clearColor mgl32.Vec4) {
	c.record(Command{
		Op: OpRenderSecondary, Lists: lists, Colors: colors, Depth: depth,
		Area: area, Clear: clear, ClearColor: clearColor,
	}, 10)
}

func (c *CommandList) ImageBarrier(img rhi.Texture, oldLayout, newLayout rhi.ImageLayout) {
	c.record(Command{Op: OpImageBarrier, Img: img, OldLayout: oldLayout, NewLayout: newLayout}, 1)
}

func (c *CommandList) BlitImage(src, dst rhi.Texture, srcRegion, dstRegion rhi.Region) {
	c.record(Command{Op: OpBlitImage, Src: src, Dst: dst, SrcRegion: srcRegion, DstRegion: dstRegion}, 5)
}

func (c *CommandList) ClearImage(dst rhi.Texture, color mgl32.Vec4) {
	c.record(Command{Op: OpClearImage, Dst: dst, ClearColor: color}, 5)
}

func (c *CommandList) Dispatch(shader rhi.Shader, groupsX, groupsY, groupsZ int, sets []rhi.ShaderBindingSet, push any, pushSize int) {
	c.record(Command{
		Op: OpDispatch, Shader: shader, Groups: [3]int{groupsX, groupsY, groupsZ},
		Sets: sets, Push: push, PushSize: pushSize,
	}, 10)
}

func (c *CommandList) BindMaterial(m rhi.Material) {
	c.record(Command{Op: OpBindMaterial, Material: m}, 1)
}

func (c *CommandList) BindBindingSets(m rhi.Material, sets []rhi.ShaderBindingSet) {
	c.record(Command{Op: OpBindBindingSets, Material: m, Sets: sets}, 1)
}

func (c *CommandList) BindVertexBuffer(buf rhi.Buffer, offset int64) {
	c.record(Command{Op: OpBindVertexBuffer, Buf: buf, Offset: offset}, 1)
}

func (c *CommandList) BindIndexBuffer(buf rhi.Buffer, offset int64) {
	c.record(Command{Op: OpBindIndexBuffer, Buf: buf, Offset: offset}, 1)
}

func (c *CommandList) SetViewport(x, y, width, height float32, scissorOffset, scissorExtent mgl32.Vec2, minDepth, maxDepth float32) {
	c.record(Command{Op: OpSetViewport, Viewport: [4]float32{x, y, width, height}}, 1)
}

func (c *CommandList) SetDefaultViewport() {
	w, h := c.drv.back.Extent()
	c.record(Command{Op: OpSetViewport, Viewport: [4]float32{0, 0, float32(w), float32(h)}}, 1)
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance uint32) {
	c.record(Command{
		Op: OpDrawIndexed, IndexCount: indexCount, InstanceCount: instanceCount,
		FirstIndex: firstIndex, VertexOffset: vertexOffset, FirstInstance: firstInstance,
	}, 10)
}

func (c *CommandList) DrawIndexedIndirect(buf rhi.Buffer, offset int64, drawCount, stride uint32) {
	c.record(Command{Op: OpDrawIndexedIndirect, Buf: buf, Offset: offset, DrawCount: drawCount, Stride: stride}, 10)
}

func (c *CommandList) UpdateBuffer(buf rhi.Buffer, data any, size, offset int64) {
	c.record(Command{Op: OpUpdateBuffer, Buf: buf, Data: data, Size: size, Offset: offset}, 2)
}

func (c *CommandList) UpdateBinding(b rhi.ShaderBinding, data any, size, offset int64) {
	c.record(Command{Op: OpUpdateBinding, Binding: b, Data: data, Size: size, Offset: offset}, 2)
}

func (c *CommandList) PushConstants(m rhi.Material, push any, pushSize int) {
	c.record(Command{Op: OpPushConstants, Material: m, Push: push, PushSize: pushSize}, 1)
}

func (c *CommandList) CopyImageToBuffer(src rhi.Texture, dst rhi.Buffer) {
	c.record(Command{Op: OpCopyImageToBuf, Src: src, Buf: dst}, 5)
}

func (c *CommandList) GenerateMipmaps(img rhi.Texture) {
	c.record(Command{Op: OpGenerateMipmaps, Img: img}, 5)
}

func (c *CommandList) EquirectToCubemap(src rhi.Texture, dst rhi.Cubemap) {
	c.record(Command{Op: OpEquirectToCube, Src: src, Cubemap: dst}, 5)
}

func (c *CommandList) NumRecordedCommands() int { return c.numCommands }
func (c *CommandList) GPUCost() int             { return c.gpuCost }

// Ops returns the recorded command kinds in order, a convenience
// for tests.
func (c *CommandList) Ops() []Op {
	ops := make([]Op, len(c.Commands))
	for i := range c.Commands {
		ops[i] = c.Commands[i].Op
	}
	return ops
}

// Find returns the recorded commands of the given kind.
func (c *CommandList) Find(op Op) []Command {
	var out []Command
	for _, cmd := range c.Commands {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}
