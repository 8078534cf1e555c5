// Copyright 2023 The Halcyon Authors. All rights reserved.

package rhi

import "github.com/go-gl/mathgl/mgl32"

// CommandList records GPU work for later submission. Recording
// is single-threaded per list; distinct lists may be recorded in
// parallel. The usage is: Begin, record, End, Driver.Submit.
//
// Render passes and debug regions must nest correctly: every
// BeginRenderPass has a matching EndRenderPass and every
// BeginDebugRegion a matching EndDebugRegion before End.
type CommandList interface {
	Destroyer

	Queue() Queue
	IsSecondary() bool

	Begin(oneTimeSubmit bool) error
	End() error

	BeginDebugRegion(label string, color mgl32.Vec4)
	EndDebugRegion()

	// BeginRenderPass begins a render pass with the given color
	// attachments and optional depth attachment. When clear is
	// set, color attachments are cleared to clearColor and the
	// depth attachment to 1.0. storeDepth controls whether depth
	// writes are kept after the pass.
	BeginRenderPass(colors []Texture, depth Texture, renderArea Region, clear bool, clearColor mgl32.Vec4, storeDepth bool)

	// BeginRenderPassMSAA is the Surface-attachment variant of
	// BeginRenderPass; resolve targets are written at pass end
	// for surfaces whose NeedsResolve flag is set.
	BeginRenderPassMSAA(colors []*Surface, depth Texture, renderArea Region, clear bool, clearColor mgl32.Vec4, storeDepth bool)

	EndRenderPass()

	// RenderSecondary executes pre-recorded secondary command
	// lists inside an implicit render pass over the given
	// attachments.
	RenderSecondary(lists []CommandList, colors []Texture, depth Texture, renderArea Region, clear bool, clearColor mgl32.Vec4)

	// ImageBarrier transitions the layout of an entire image.
	ImageBarrier(img Texture, oldLayout, newLayout ImageLayout)

	BlitImage(src, dst Texture, srcRegion, dstRegion Region)
	ClearImage(dst Texture, color mgl32.Vec4)

	// Dispatch records a compute dispatch with the given binding
	// sets and an optional push-constant block.
	Dispatch(shader Shader, groupsX, groupsY, groupsZ int, sets []ShaderBindingSet, push any, pushSize int)

	BindMaterial(m Material)
	BindBindingSets(m Material, sets []ShaderBindingSet)
	BindVertexBuffer(buf Buffer, offset int64)
	BindIndexBuffer(buf Buffer, offset int64)

	SetViewport(x, y, width, height float32, scissorOffset, scissorExtent mgl32.Vec2, minDepth, maxDepth float32)
	SetDefaultViewport()

	DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance uint32)
	DrawIndexedIndirect(buf Buffer, offset int64, drawCount, stride uint32)

	// UpdateBuffer records a buffer write. data is the typed
	// payload and size its byte length.
	UpdateBuffer(buf Buffer, data any, size, offset int64)

	// UpdateBinding records a write into the buffer backing a
	// shader binding.
	UpdateBinding(b ShaderBinding, data any, size, offset int64)

	PushConstants(m Material, push any, pushSize int)

	CopyImageToBuffer(src Texture, dst Buffer)
	GenerateMipmaps(img Texture)

	// EquirectToCubemap converts an equirectangular 2D texture
	// into the faces of mip 0 of a cubemap.
	EquirectToCubemap(src Texture, dst Cubemap)

	// NumRecordedCommands and GPUCost drive the runtime's
	// chaining budget. GPUCost is an opaque estimate attached to
	// each recorded command by the implementation.
	NumRecordedCommands() int
	GPUCost() int
}
