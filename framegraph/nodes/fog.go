// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("VolumetricFog", func() framegraph.Node { return &VolumetricFogNode{} })
}

// VolumetricFogNode ray-marches a 3D density volume into the
// "target" image with a compute pass. When no volume is
// supplied, a constant-density placeholder volume is built once.
type VolumetricFogNode struct {
	framegraph.BaseNode

	shader        *rhi.ShaderSet
	bindings      rhi.ShaderBindingSet
	densityVolume rhi.Texture
}

type fogPush struct {
	StepSize float32
	FogColor mgl32.Vec3
}

func (n *VolumetricFogNode) Name() string { return "VolumetricFog" }

func (n *VolumetricFogNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdCompute)
	defer graphics.EndDebugRegion()

	if n.shader == nil {
		n.shader, _ = fg.Shaders().LoadShader("Shaders/ComputeVolumetricFog.shader")
	}
	if !n.shader.Ready() {
		return
	}

	if n.densityVolume == nil {
		const size = 64
		// ~0.1 encoded as half float.
		data := make([]uint16, size*size*size)
		for i := range data {
			data[i] = 0x2E66
		}
		vol, err := drv.NewTexture(data, int64(len(data))*2,
			[3]int{size, size, size}, rhi.Texture3D, rhi.FormatR16SFloat,
			rhi.FilterLinear, rhi.ClampToEdge,
			rhi.UsageSampled|rhi.UsageTransferDst)
		if err != nil {
			return
		}
		drv.SetDebugName(vol, "VolumetricFogVolume")
		n.densityVolume = vol
	}

	density := n.ResolvedAttachment("densityVolume")
	if density == nil {
		density = n.densityVolume
	}
	target := n.ResolvedAttachment("target")
	if target == nil {
		return
	}

	if n.bindings == nil {
		n.bindings = drv.NewBindingSet()
	}
	n.bindings.AddSampler("u_densityVolume", density, 0)
	n.bindings.AddStorageImage("u_output_image", target, 1)
	n.bindings.RecalculateCompatibility()

	push := fogPush{
		StepSize: n.Float("stepSize"),
		FogColor: n.Vec4("fogColor").Vec3(),
	}

	w, h := target.Extent()

	graphics.ImageBarrier(density, density.DefaultLayout(), rhi.LayoutComputeRead)
	graphics.ImageBarrier(target, target.DefaultLayout(), rhi.LayoutComputeWrite)

	graphics.Dispatch(n.shader.Compute,
		int(math.Ceil(float64(w)/16)), int(math.Ceil(float64(h)/16)), 1,
		[]rhi.ShaderBindingSet{n.bindings, snap.FrameBindings},
		push, 16)

	graphics.ImageBarrier(target, rhi.LayoutComputeWrite, target.DefaultLayout())
	graphics.ImageBarrier(density, rhi.LayoutComputeRead, density.DefaultLayout())
}

func (n *VolumetricFogNode) Clear() {
	n.shader = nil
	n.bindings = nil
	if n.densityVolume != nil {
		n.densityVolume.Destroy()
		n.densityVolume = nil
	}
}
