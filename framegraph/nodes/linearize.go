// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("LinearizeDepth", func() framegraph.Node { return &LinearizeDepthNode{} })
}

// LinearizeDepthNode converts post-projection depth into linear
// view-space depth, written to the "target" color attachment by
// a fullscreen pass.
type LinearizeDepthNode struct {
	framegraph.BaseNode

	shader   *rhi.ShaderSet
	bindings rhi.ShaderBindingSet
	material rhi.Material
}

func (n *LinearizeDepthNode) Name() string { return "LinearizeDepth" }

func (n *LinearizeDepthNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	depth := depthAttachment(&n.BaseNode, fg)
	target := n.TextureParam("target")
	if depth == nil || target == nil {
		return
	}

	if n.shader == nil {
		n.shader, _ = fg.Shaders().LoadShader("Shaders/LinearizeDepth.shader")
	}
	if !n.shader.Ready() {
		return
	}

	if n.bindings == nil {
		n.bindings = drv.NewBindingSet()
		n.bindings.AddSampler("depthSampler", depth, 0)
	}
	if n.material == nil {
		state := rhi.RenderState{Cull: rhi.CullBack, Fill: rhi.FillSolid}
		n.material, _ = drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList, state, n.shader, nil)
	}
	if n.material == nil {
		return
	}

	graphics.ImageBarrier(depth, depth.DefaultLayout(), rhi.LayoutShaderReadOnly)
	graphics.ImageBarrier(target, target.DefaultLayout(), rhi.LayoutColorAttachment)

	mesh := fg.FullscreenQuad()
	graphics.BindMaterial(n.material)
	graphics.BindVertexBuffer(mesh.VertexBuffer, 0)
	graphics.BindIndexBuffer(mesh.IndexBuffer, 0)
	graphics.BindBindingSets(n.material, []rhi.ShaderBindingSet{snap.FrameBindings, n.bindings})

	graphics.BeginRenderPass([]rhi.Texture{target}, nil, fullExtent(target), false, clearNone, false)
	graphics.DrawIndexed(6, 1, mesh.FirstIndex(), mesh.VertexOffset(), 0)
	graphics.EndRenderPass()

	graphics.ImageBarrier(target, rhi.LayoutColorAttachment, target.DefaultLayout())
	graphics.ImageBarrier(depth, rhi.LayoutShaderReadOnly, depth.DefaultLayout())
}

func (n *LinearizeDepthNode) Clear() {
	n.shader = nil
	n.material = nil
	n.bindings = nil
}
