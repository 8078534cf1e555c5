// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("EyeAdaptation", func() framegraph.Node { return &EyeAdaptationNode{} })
}

// Eye adaptation constants.
const (
	// HistogramShades is the number of luminance bins.
	HistogramShades = 256

	minLogLuminance = -8.0
	maxLogLuminance = 3.0
	eyeReaction     = 1.8
)

// EyeAdaptationNode implements auto-exposure in three
// sub-passes: a histogram compute pass over a quarter-resolution
// HDR sampler, a single-workgroup reduction into a 1×1 average
// luminance texture with temporal smoothing, and a fullscreen
// tonemap pass onto the color attachment.
type EyeAdaptationNode struct {
	framegraph.BaseNode

	tonemapShader   *rhi.ShaderSet
	histogramShader *rhi.ShaderSet
	averageShader   *rhi.ShaderSet

	material          rhi.Material
	bindings          rhi.ShaderBindingSet
	histogramBindings rhi.ShaderBindingSet
	averageBindings   rhi.ShaderBindingSet

	averageLuminance rhi.Texture
}

func (n *EyeAdaptationNode) Name() string { return "EyeAdaptation" }

func (n *EyeAdaptationNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	target := n.ResolvedAttachment("color")
	depth := fg.RenderTarget("DepthBuffer")
	quarter := n.ResolvedAttachment("hdrColor")
	full := n.ResolvedAttachment("colorSampler")
	if target == nil || depth == nil || quarter == nil || full == nil {
		return
	}

	if n.histogramShader == nil {
		n.histogramShader, _ = fg.Shaders().LoadShader("Shaders/ComputeHistogram.shader")
	}
	if n.averageShader == nil {
		n.averageShader, _ = fg.Shaders().LoadShader("Shaders/ComputeAverageLuminance.shader")
	}
	if n.tonemapShader == nil {
		path := n.String("toneMappingShader")
		if path == "" {
			return
		}
		defines := strings.Fields(n.String("toneMappingDefines"))
		n.tonemapShader, _ = fg.Shaders().LoadShader(path, defines...)
	}
	if !n.histogramShader.Ready() || !n.averageShader.Ready() || !n.tonemapShader.Ready() {
		return
	}

	if n.histogramBindings == nil {
		n.histogramBindings = drv.NewBindingSet()
		histogram := n.histogramBindings.AddSSBO("histogram", 4, HistogramShades, 0, true)
		n.histogramBindings.AddStorageImage("s_texColor", quarter, 1)

		// The histogram accumulates across frames; zero it once
		// on the first transfer command list.
		transfer.UpdateBinding(histogram, make([]uint32, HistogramShades), 4*HistogramShades, 0)
	}

	if n.averageLuminance == nil {
		rt, err := drv.NewRenderTarget(1, 1, 1, rhi.FormatR16SFloat, rhi.FilterNearest, rhi.ClampRepeat,
			rhi.UsageStorage|rhi.UsageTransferDst|rhi.UsageSampled)
		if err != nil {
			return
		}
		drv.SetDebugName(rt, "averageLuminance")
		n.averageLuminance = rt
	}

	if n.averageBindings == nil {
		n.averageBindings = drv.NewBindingSet()
		n.averageBindings.AddBinding(n.histogramBindings.Binding("histogram"), "histogram", 0)
		n.averageBindings.AddStorageImage("s_texColor", n.averageLuminance, 1)
	}

	if n.material == nil {
		n.bindings = drv.NewBindingSet()
		n.bindings.AddUniformBuffer("data", uniformBlockSize(n.NumVec4()), 0)
		n.bindings.AddSampler("colorSampler", full, 1)
		n.bindings.AddSampler("averageLuminanceSampler", n.averageLuminance, 2)

		state := rhi.RenderState{Cull: rhi.CullNone, Fill: rhi.FillSolid}
		material, err := drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList, state, n.tonemapShader, n.bindings)
		if err != nil {
			return
		}
		n.material = material
		writeVectorParams(transfer, &n.BaseNode, n.bindings)
	}

	graphics.BeginDebugRegion(n.Name(), mgl32.Vec4{1, 0.65, 0, 0.25})
	defer graphics.EndDebugRegion()

	const logLuminanceRange = maxLogLuminance - minLogLuminance

	histogramPush := [2]float32{minLogLuminance, 1.0 / logLuminanceRange}

	timeCoeff := clamp01(1 - exp2f(-snap.DeltaTime*eyeReaction))

	qw, qh := quarter.Extent()
	averagePush := [4]float32{
		minLogLuminance,
		logLuminanceRange,
		float32(qw * qh),
		timeCoeff,
	}

	graphics.ImageBarrier(quarter, quarter.DefaultLayout(), rhi.LayoutComputeRead)
	graphics.Dispatch(n.histogramShader.Compute, qw/16, qh/16, 1,
		[]rhi.ShaderBindingSet{n.histogramBindings}, histogramPush, 8)
	graphics.ImageBarrier(quarter, rhi.LayoutComputeRead, quarter.DefaultLayout())

	graphics.ImageBarrier(n.averageLuminance, n.averageLuminance.DefaultLayout(), rhi.LayoutComputeWrite)
	graphics.Dispatch(n.averageShader.Compute, 1, 1, 1,
		[]rhi.ShaderBindingSet{n.averageBindings}, averagePush, 16)
	graphics.ImageBarrier(n.averageLuminance, rhi.LayoutComputeWrite, rhi.LayoutShaderReadOnly)

	graphics.ImageBarrier(depth, depth.DefaultLayout(), rhi.LayoutShaderReadOnly)
	graphics.ImageBarrier(target, target.DefaultLayout(), rhi.LayoutColorAttachment)
	graphics.ImageBarrier(full, full.DefaultLayout(), rhi.LayoutShaderReadOnly)

	mesh := fg.FullscreenQuad()
	graphics.BindMaterial(n.material)
	graphics.BindVertexBuffer(mesh.VertexBuffer, 0)
	graphics.BindIndexBuffer(mesh.IndexBuffer, 0)
	graphics.BindBindingSets(n.material, []rhi.ShaderBindingSet{snap.FrameBindings, n.bindings})

	tw, th := target.Extent()
	graphics.SetViewport(0, 0, float32(tw), float32(th),
		mgl32.Vec2{0, 0}, mgl32.Vec2{float32(tw), float32(th)}, 0, 1)

	graphics.BeginRenderPass([]rhi.Texture{target}, depth, fullExtent(target), false, clearNone, false)
	graphics.DrawIndexed(6, 1, mesh.FirstIndex(), mesh.VertexOffset(), 0)
	graphics.EndRenderPass()

	graphics.ImageBarrier(full, rhi.LayoutShaderReadOnly, full.DefaultLayout())
	graphics.ImageBarrier(target, rhi.LayoutColorAttachment, target.DefaultLayout())
	graphics.ImageBarrier(depth, rhi.LayoutShaderReadOnly, depth.DefaultLayout())
	graphics.ImageBarrier(n.averageLuminance, rhi.LayoutShaderReadOnly, n.averageLuminance.DefaultLayout())
}

func (n *EyeAdaptationNode) Clear() {
	n.tonemapShader = nil
	n.histogramShader = nil
	n.averageShader = nil
	n.material = nil
	n.bindings = nil
	n.histogramBindings = nil
	n.averageBindings = nil
	if n.averageLuminance != nil {
		n.averageLuminance.Destroy()
		n.averageLuminance = nil
	}
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func exp2f(v float32) float32 { return float32(math.Exp2(float64(v))) }
