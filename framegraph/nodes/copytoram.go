// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"sync/atomic"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("CopyTextureToRam", func() framegraph.Node { return &CopyTextureToRamNode{} })
}

// CopyTextureToRamNode copies the "src" attachment into a
// host-visible readback buffer on request. Capture fires once
// per call to Capture; frames without a pending request record
// nothing.
type CopyTextureToRamNode struct {
	framegraph.BaseNode

	capture atomic.Bool

	texture   rhi.Texture
	cpuBuffer rhi.Buffer
}

func (n *CopyTextureToRamNode) Name() string { return "CopyTextureToRam" }

// Capture requests a one-shot readback on the next frame.
func (n *CopyTextureToRamNode) Capture() { n.capture.Store(true) }

// Readback returns the buffer holding the last captured image,
// nil before the first capture completes.
func (n *CopyTextureToRamNode) Readback() rhi.Buffer { return n.cpuBuffer }

func (n *CopyTextureToRamNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	if !n.capture.Swap(false) {
		return
	}

	src := n.ResolvedAttachment("src")
	if src == nil {
		return
	}
	n.texture = src

	graphics.ImageBarrier(src, src.DefaultLayout(), rhi.LayoutTransferSrc)

	if n.cpuBuffer == nil || n.cpuBuffer.Size() < src.Size() {
		if n.cpuBuffer != nil {
			n.cpuBuffer.Destroy()
		}
		buf, err := fg.Driver().NewBuffer(src.Size()+512,
			rhi.UsageBufferTransferDst,
			rhi.MemoryHostVisible|rhi.MemoryHostCoherent)
		if err != nil {
			graphics.ImageBarrier(src, rhi.LayoutTransferSrc, src.DefaultLayout())
			return
		}
		n.cpuBuffer = buf
	}

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdTransfer)
	graphics.CopyImageToBuffer(src, n.cpuBuffer)
	graphics.EndDebugRegion()

	graphics.ImageBarrier(src, rhi.LayoutTransferSrc, src.DefaultLayout())
}

func (n *CopyTextureToRamNode) Clear() {
	if n.cpuBuffer != nil {
		n.cpuBuffer.Destroy()
		n.cpuBuffer = nil
	}
}
