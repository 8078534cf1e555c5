// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("PostProcess", func() framegraph.Node { return &PostProcessNode{} })
}

// PostProcessNode is the generic fullscreen fragment pass: it
// loads the shader named by the "shader" parameter (with
// optional "defines"), builds a depth- and cull-free material,
// uploads the node's vector parameters into a uniform buffer and
// binds every resource parameter by name. Read barriers wrap
// each sampled image around the draw.
type PostProcessNode struct {
	framegraph.BaseNode

	shader   *rhi.ShaderSet
	material rhi.Material
	bindings rhi.ShaderBindingSet
}

func (n *PostProcessNode) Name() string { return "PostProcess" }

func (n *PostProcessNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	target := n.ResolvedAttachment("color")
	targetMSAA := n.SurfaceParam("color")
	useMSAA := targetMSAA != nil && targetMSAA.NeedsResolve
	if target == nil {
		target = fg.RenderTarget("BackBuffer")
	}
	if target == nil {
		return
	}

	if n.shader == nil {
		path := n.String("shader")
		if path == "" {
			return
		}
		defines := strings.Fields(n.String("defines"))
		n.shader, _ = fg.Shaders().LoadShader(path, defines...)
	}
	if !n.shader.Ready() {
		return
	}

	graphics.BeginDebugRegion(n.Name()+":"+n.String("shader"), framegraph.ColorCmdPostProcess)
	defer graphics.EndDebugRegion()

	if n.material == nil {
		n.bindings = drv.NewBindingSet()
		n.bindings.AddUniformBuffer("data", uniformBlockSize(n.NumVec4()), 0)

		slot := 1
		n.EachResource(func(name string, _ rhi.Resource) {
			if tex := n.ResolvedAttachment(name); tex != nil {
				n.bindings.AddSampler(name, tex, slot)
				slot++
			}
		})

		state := rhi.RenderState{Cull: rhi.CullNone, Fill: rhi.FillSolid, MSAA: useMSAA}
		material, err := drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList, state, n.shader, n.bindings)
		if err != nil {
			return
		}
		n.material = material
		writeVectorParams(transfer, &n.BaseNode, n.bindings)
	}

	// Transition every combined image sampler for reading,
	// restoring afterwards.
	sampled := make([]rhi.Texture, 0, 4)
	for _, b := range n.bindings.Bindings() {
		if b.Type() == rhi.BindingCombinedImageSampler && b.IsBound() {
			sampled = append(sampled, b.TextureBinding())
		}
	}
	for _, t := range sampled {
		graphics.ImageBarrier(t, t.DefaultLayout(), rhi.LayoutShaderReadOnly)
	}
	graphics.ImageBarrier(target, target.DefaultLayout(), rhi.LayoutColorAttachment)

	mesh := fg.FullscreenQuad()
	graphics.BindMaterial(n.material)
	graphics.BindVertexBuffer(mesh.VertexBuffer, 0)
	graphics.BindIndexBuffer(mesh.IndexBuffer, 0)
	graphics.BindBindingSets(n.material, []rhi.ShaderBindingSet{snap.FrameBindings, n.bindings})

	w, h := target.Extent()
	graphics.SetViewport(0, 0, float32(w), float32(h),
		mgl32.Vec2{0, 0}, mgl32.Vec2{float32(w), float32(h)}, 0, 1)

	if useMSAA {
		graphics.BeginRenderPassMSAA([]*rhi.Surface{targetMSAA}, nil, fullExtent(target), false, clearNone, false)
	} else {
		graphics.BeginRenderPass([]rhi.Texture{target}, nil, fullExtent(target), false, clearNone, false)
	}
	graphics.DrawIndexed(6, 1, mesh.FirstIndex(), mesh.VertexOffset(), 0)
	graphics.EndRenderPass()

	for _, t := range sampled {
		graphics.ImageBarrier(t, rhi.LayoutShaderReadOnly, t.DefaultLayout())
	}
	graphics.ImageBarrier(target, rhi.LayoutColorAttachment, target.DefaultLayout())
}

func (n *PostProcessNode) Clear() {
	n.shader = nil
	n.material = nil
	n.bindings = nil
}
