// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("Bloom", func() framegraph.Node { return &BloomNode{} })
}

type bloomDownscalePush struct {
	// Threshold packs (threshold, threshold-knee, 2*knee,
	// 0.25*knee).
	Threshold    mgl32.Vec4
	UseThreshold uint32
}

type bloomUpscalePush struct {
	MipLevel       uint32
	BloomIntensity float32
	DirtIntensity  float32
}

// BloomNode runs a two-pass mip-chain compute filter over the
// "bloom" render target: a thresholded downscale walk from mip 0
// to the smallest mip, then an additive upscale walk back, with
// a lens-dirt sampler applied at mip 0.
type BloomNode struct {
	framegraph.BaseNode

	downscaleShader *rhi.ShaderSet
	upscaleShader   *rhi.ShaderSet

	downscaleBindings []rhi.ShaderBindingSet
	upscaleBindings   []rhi.ShaderBindingSet

	layouts map[rhi.Texture]rhi.ImageLayout
}

func (n *BloomNode) Name() string { return "Bloom" }

// transition flips a mip layer between compute layouts, keeping
// the recorded walk consistent across iterations.
func (n *BloomNode) transition(cmd rhi.CommandList, t rhi.Texture, to rhi.ImageLayout) {
	if n.layouts == nil {
		n.layouts = make(map[rhi.Texture]rhi.ImageLayout)
	}
	from, ok := n.layouts[t]
	if !ok {
		from = t.DefaultLayout()
	}
	if from == to {
		return
	}
	cmd.ImageBarrier(t, from, to)
	n.layouts[t] = to
}

func (n *BloomNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	bloom, _ := n.ResolvedAttachment("bloom").(rhi.RenderTarget)
	if bloom == nil || bloom.MipLevels() < 2 {
		return
	}

	if n.downscaleShader == nil {
		n.downscaleShader, _ = fg.Shaders().LoadShader("Shaders/ComputeBloomDownscale.shader")
	}
	if n.upscaleShader == nil {
		n.upscaleShader, _ = fg.Shaders().LoadShader("Shaders/ComputeBloomUpscale.shader")
	}
	if !n.downscaleShader.Ready() || !n.upscaleShader.Ready() {
		return
	}

	drv := fg.Driver()
	mips := bloom.MipLevels()

	if len(n.downscaleBindings) == 0 {
		n.downscaleBindings = make([]rhi.ShaderBindingSet, mips-1)
		for i := 0; i < mips-1; i++ {
			set := drv.NewBindingSet()
			set.AddStorageImage("u_input_texture", bloom.MipLayer(i), 0)
			set.AddStorageImage("u_output_image", bloom.MipLayer(i+1), 1)
			n.downscaleBindings[i] = set
		}
	}
	if len(n.upscaleBindings) == 0 {
		dirt := fg.Sampler("g_lensDirtSampler")
		n.upscaleBindings = make([]rhi.ShaderBindingSet, mips)
		for i := mips - 1; i >= 1; i-- {
			set := drv.NewBindingSet()
			if dirt != nil {
				set.AddSampler("u_dirt_texture", dirt, 2)
			}
			set.AddStorageImage("u_input_texture", bloom.MipLayer(i), 0)
			set.AddStorageImage("u_output_image", bloom.MipLayer(i-1), 1)
			n.upscaleBindings[i] = set
		}
	}

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdCompute)
	defer graphics.EndDebugRegion()

	threshold := n.Vec4("threshold").X()
	knee := n.Vec4("knee").X()

	graphics.ImageBarrier(bloom, bloom.DefaultLayout(), rhi.LayoutGeneral)

	down := bloomDownscalePush{
		Threshold: mgl32.Vec4{threshold, threshold - knee, 2 * knee, 0.25 * knee},
	}
	for i := 0; i < mips-1; i++ {
		down.UseThreshold = 0
		if i == 0 {
			down.UseThreshold = 1
		}
		read, write := bloom.MipLayer(i), bloom.MipLayer(i+1)
		w, h := write.Extent()

		n.transition(graphics, read, rhi.LayoutComputeRead)
		n.transition(graphics, write, rhi.LayoutComputeWrite)
		graphics.Dispatch(n.downscaleShader.Compute, groups8(w), groups8(h), 1,
			[]rhi.ShaderBindingSet{n.downscaleBindings[i]}, down, 20)
	}

	up := bloomUpscalePush{
		BloomIntensity: n.Vec4("bloomIntensity").X(),
		DirtIntensity:  n.Vec4("dirtIntensity").X(),
	}
	for i := mips - 1; i >= 1; i-- {
		read, write := bloom.MipLayer(i), bloom.MipLayer(i-1)
		w, h := write.Extent()
		up.MipLevel = uint32(i)

		n.transition(graphics, read, rhi.LayoutComputeRead)
		n.transition(graphics, write, rhi.LayoutComputeWrite)
		graphics.Dispatch(n.upscaleShader.Compute, groups8(w), groups8(h), 1,
			[]rhi.ShaderBindingSet{n.upscaleBindings[i]}, up, 12)
	}

	for i := 0; i < mips; i++ {
		layer := bloom.MipLayer(i)
		n.transition(graphics, layer, layer.DefaultLayout())
	}
	graphics.ImageBarrier(bloom, rhi.LayoutGeneral, bloom.DefaultLayout())
	n.layouts = nil
}

func (n *BloomNode) Clear() {
	n.downscaleShader = nil
	n.upscaleShader = nil
	n.downscaleBindings = nil
	n.upscaleBindings = nil
	n.layouts = nil
}
