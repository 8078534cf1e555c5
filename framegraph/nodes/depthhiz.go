// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"math"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("DepthHighZ", func() framegraph.Node { return &DepthHighZNode{} })
}

// DepthHighZNode downsamples a depth texture into the mip
// pyramid of a dedicated render target with a compute chain;
// the pyramid feeds GPU occlusion culling.
type DepthHighZNode struct {
	framegraph.BaseNode

	shader          *rhi.ShaderSet
	mipBindings     []rhi.ShaderBindingSet
	prepassBindings rhi.ShaderBindingSet
}

type highZPush struct {
	OutputW float32
	OutputH float32
}

func (n *DepthHighZNode) Name() string { return "DepthHighZ" }

func groups8(size int) int {
	return int(math.Ceil(float64(size) / 8))
}

func (n *DepthHighZNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	depth := n.ResolvedAttachment("src")
	if depth == nil {
		depth = fg.RenderTarget("DepthBuffer")
	}
	highZ, _ := n.ResolvedAttachment("dst").(rhi.RenderTarget)
	if depth == nil || highZ == nil {
		return
	}

	if n.shader == nil {
		n.shader, _ = fg.Shaders().LoadShader("Shaders/ComputeDepthHighZ.shader")
	}
	if !n.shader.Ready() {
		return
	}

	if len(n.mipBindings) == 0 {
		n.mipBindings = make([]rhi.ShaderBindingSet, highZ.MipLevels()-1)
		for i := 0; i < highZ.MipLevels()-1; i++ {
			set := drv.NewBindingSet()
			set.AddSampler("inputDepth", highZ.MipLayer(i), 0)
			set.AddStorageImage("outputDepth", highZ.MipLayer(i+1), 1)
			n.mipBindings[i] = set
		}
		n.prepassBindings = drv.NewBindingSet()
		n.prepassBindings.AddSampler("inputDepth", depth, 0)
		n.prepassBindings.AddStorageImage("outputDepth", highZ.MipLayer(0), 1)
	}

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdCompute)
	graphics.ImageBarrier(highZ, highZ.DefaultLayout(), rhi.LayoutGeneral)

	for i := -1; i < highZ.MipLevels()-1; i++ {
		first := i == -1

		read := depth
		set := n.prepassBindings
		if !first {
			read = highZ.MipLayer(i)
			set = n.mipBindings[i]
		}
		write := highZ.MipLayer(i + 1)

		w, h := write.Extent()

		graphics.ImageBarrier(read, read.DefaultLayout(), rhi.LayoutComputeRead)
		graphics.ImageBarrier(write, write.DefaultLayout(), rhi.LayoutComputeWrite)

		graphics.Dispatch(n.shader.Compute, groups8(w), groups8(h), 1,
			[]rhi.ShaderBindingSet{set},
			highZPush{OutputW: float32(w), OutputH: float32(h)}, 8)

		graphics.ImageBarrier(read, rhi.LayoutComputeRead, read.DefaultLayout())
		graphics.ImageBarrier(write, rhi.LayoutComputeWrite, write.DefaultLayout())
	}

	graphics.ImageBarrier(highZ, rhi.LayoutGeneral, highZ.DefaultLayout())
	graphics.EndDebugRegion()
}

func (n *DepthHighZNode) Clear() {
	n.shader = nil
	n.mipBindings = nil
	n.prepassBindings = nil
}
