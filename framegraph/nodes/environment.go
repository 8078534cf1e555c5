// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"github.com/puzpuzpuz/xsync/v3"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("Environment", func() framegraph.Node { return &EnvironmentNode{} })
}

// Environment map dimensions.
const (
	envMapSize   = 512
	envMapLevels = 10

	irradianceMapSize = 32
	brdfLutSize       = 256
)

type envSpecularPush struct {
	Level     int32
	Roughness float32
}

// EnvironmentNode derives the image-based-lighting inputs on a
// dirty tick: a BRDF LUT (once per node instance, not shared
// between nodes, and dropped by Clear), a pre-filtered
// specular cubemap and a diffuse irradiance cubemap. Both
// cubemaps are cached by the sky-parameter hash, so a dynamic
// sky re-derives them while a static sky computes them once.
type EnvironmentNode struct {
	framegraph.BaseNode

	irradianceShader *rhi.ShaderSet
	specularShader   *rhi.ShaderSet
	brdfShader       *rhi.ShaderSet

	irradianceBindings rhi.ShaderBindingSet
	specularBindings   rhi.ShaderBindingSet
	brdfBindings       rhi.ShaderBindingSet

	envCubemaps        *xsync.MapOf[uint64, rhi.Cubemap]
	irradianceCubemaps *xsync.MapOf[uint64, rhi.Cubemap]
	brdfSampler        rhi.Texture

	envMapTexture rhi.Texture

	dirty  bool
	inited bool
}

func (n *EnvironmentNode) Name() string { return "Environment" }

// SetDirty schedules a re-derivation of the environment maps.
func (n *EnvironmentNode) SetDirty() { n.dirty = true }

func (n *EnvironmentNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	if !n.inited {
		n.inited = true
		n.dirty = true
		n.envCubemaps = xsync.NewMapOf[uint64, rhi.Cubemap]()
		n.irradianceCubemaps = xsync.NewMapOf[uint64, rhi.Cubemap]()
	}

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdCompute)
	defer graphics.EndDebugRegion()

	n.SetTag("Environment")

	if n.brdfShader == nil {
		n.brdfShader, _ = fg.Shaders().LoadShader("Shaders/ComputeBrdfLut.shader")
		n.brdfBindings = drv.NewBindingSet()
	}
	if n.specularShader == nil {
		n.specularShader, _ = fg.Shaders().LoadShader("Shaders/ComputeEnvMap_IBL.shader")
		n.specularBindings = drv.NewBindingSet()
	}
	if n.irradianceShader == nil {
		n.irradianceShader, _ = fg.Shaders().LoadShader("Shaders/ComputeIrradianceMap.shader")
		n.irradianceBindings = drv.NewBindingSet()
	}
	if !n.brdfShader.Ready() || !n.specularShader.Ready() || !n.irradianceShader.Ready() {
		return
	}

	const usage = rhi.UsageColorAttachment | rhi.UsageTransferSrc | rhi.UsageTransferDst |
		rhi.UsageStorage | rhi.UsageSampled

	if n.brdfSampler == nil {
		lut, err := drv.NewRenderTarget(brdfLutSize, brdfLutSize, 1, rhi.FormatRG16SFloat,
			rhi.FilterLinear, rhi.ClampToEdge, usage)
		if err != nil {
			return
		}
		drv.SetDebugName(lut, "g_brdfSampler")
		n.brdfSampler = lut
		fg.SetSampler("g_brdfSampler", lut)

		graphics.BeginDebugRegion("Generate Cook-Torrance BRDF 2D LUT for split-sum approximation", framegraph.ColorCmdCompute)
		n.brdfBindings.AddStorageImage("dst", lut, 0)
		graphics.ImageBarrier(lut, lut.DefaultLayout(), rhi.LayoutComputeWrite)
		graphics.Dispatch(n.brdfShader.Compute, brdfLutSize/32, brdfLutSize/32, 6,
			[]rhi.ShaderBindingSet{n.brdfBindings}, nil, 0)
		graphics.ImageBarrier(lut, rhi.LayoutComputeWrite, rhi.LayoutShaderReadOnly)
		graphics.EndDebugRegion()
	}

	if !n.dirty {
		return
	}

	// The raw cubemap either comes from an equirectangular
	// environment map asset or from the sky pass.
	var raw rhi.Cubemap
	loadedEnvironmentMap := false

	if n.envMapTexture == nil {
		if path, ok := n.TryString("EnvironmentMap"); ok {
			if fg.Textures == nil {
				return
			}
			tex, err := fg.Textures.LoadTexture(path, "")
			if err != nil {
				return
			}
			n.envMapTexture = tex
			return
		}
	}

	if n.envMapTexture != nil {
		loadedEnvironmentMap = true
		cube, err := drv.NewCubemap(envMapSize, envMapLevels, rhi.FormatRGBA16SFloat,
			rhi.FilterLinear, rhi.ClampToEdge, usage)
		if err != nil {
			return
		}
		drv.SetDebugName(cube, "rawEnvCubemap")

		graphics.BeginDebugRegion("Generate Raw Env Cubemap from Equirect", framegraph.ColorCmdCompute)
		graphics.ImageBarrier(cube, cube.DefaultLayout(), rhi.LayoutComputeWrite)
		graphics.EquirectToCubemap(n.envMapTexture, cube)
		graphics.ImageBarrier(cube, rhi.LayoutComputeWrite, rhi.LayoutTransferDst)
		graphics.GenerateMipmaps(cube)
		graphics.EndDebugRegion()

		raw = cube
	} else if sky, ok := fg.Sampler("g_skyCubemap").(rhi.Cubemap); ok {
		raw = sky
	} else {
		return
	}

	var skyHash uint64
	if node := fg.Node("Sky"); node != nil && !loadedEnvironmentMap {
		if sky, ok := node.(*SkyNode); ok {
			skyHash = sky.SkyParams().Hash()
		}
	}

	envCubemap, _ := n.envCubemaps.Load(skyHash)
	irradianceCubemap, _ := n.irradianceCubemaps.Load(skyHash)

	if envCubemap != nil && irradianceCubemap != nil {
		fg.SetSampler("g_envCubemap", envCubemap)
		fg.SetSampler("g_irradianceCubemap", irradianceCubemap)
		n.dirty = false
		return
	}

	if envCubemap == nil {
		cube, err := drv.NewCubemap(envMapSize, envMapLevels, rhi.FormatRGBA16SFloat,
			rhi.FilterLinear, rhi.ClampToEdge, usage)
		if err != nil {
			return
		}
		drv.SetDebugName(cube, "g_envCubemap")
		n.envCubemaps.Store(skyHash, cube)
		envCubemap = cube
		fg.SetSampler("g_envCubemap", cube)

		graphics.BeginDebugRegion("Compute pre-filtered specular environment map", framegraph.ColorCmdCompute)
		{
			graphics.ImageBarrier(raw, raw.DefaultLayout(), rhi.LayoutTransferSrc)
			graphics.ImageBarrier(cube, cube.DefaultLayout(), rhi.LayoutTransferDst)

			rw, rh := raw.Extent()
			cw, ch := cube.Extent()
			graphics.BlitImage(raw, cube,
				rhi.Region{W: int32(rw), H: int32(rh)},
				rhi.Region{W: int32(cw), H: int32(ch)})

			graphics.ImageBarrier(raw, rhi.LayoutTransferSrc, rhi.LayoutShaderReadOnly)
			graphics.ImageBarrier(cube, rhi.LayoutTransferDst, rhi.LayoutComputeWrite)

			// Pre-filter the rest of the mip chain.
			mips := make([]rhi.Texture, 0, envMapLevels-1)
			for level := 1; level < envMapLevels; level++ {
				mips = append(mips, cube.MipLevel(level))
			}
			n.specularBindings.AddSampler("rawEnvMap", raw, 0)
			n.specularBindings.AddStorageImageArray("envMap", mips, 1)
			n.specularBindings.RecalculateCompatibility()

			deltaRoughness := 1.0 / float32(envMapLevels-1)
			for level, size := 1, envMapSize/2; level < envMapLevels; level, size = level+1, size/2 {
				groups := size / 32
				if groups < 1 {
					groups = 1
				}
				push := envSpecularPush{Level: int32(level - 1), Roughness: float32(level) * deltaRoughness}
				graphics.Dispatch(n.specularShader.Compute, groups, groups, 6,
					[]rhi.ShaderBindingSet{n.specularBindings}, push, 8)
			}

			graphics.ImageBarrier(cube, rhi.LayoutComputeWrite, cube.DefaultLayout())
		}
		graphics.EndDebugRegion()
	}

	if irradianceCubemap == nil {
		cube, err := drv.NewCubemap(irradianceMapSize, 1, rhi.FormatRGBA16SFloat,
			rhi.FilterLinear, rhi.ClampToEdge, usage)
		if err != nil {
			return
		}
		drv.SetDebugName(cube, "g_irradianceCubemap")
		n.irradianceCubemaps.Store(skyHash, cube)
		fg.SetSampler("g_irradianceCubemap", cube)

		graphics.BeginDebugRegion("Compute diffuse irradiance cubemap", framegraph.ColorCmdCompute)
		{
			graphics.ImageBarrier(envCubemap, envCubemap.DefaultLayout(), rhi.LayoutShaderReadOnly)
			graphics.ImageBarrier(cube, cube.DefaultLayout(), rhi.LayoutComputeWrite)

			n.irradianceBindings.AddSampler("envMap", envCubemap, 0)
			n.irradianceBindings.AddStorageImage("irradianceMap", cube, 1)
			n.irradianceBindings.RecalculateCompatibility()

			graphics.Dispatch(n.irradianceShader.Compute,
				irradianceMapSize/32, irradianceMapSize/32, 6,
				[]rhi.ShaderBindingSet{n.irradianceBindings}, nil, 0)

			graphics.ImageBarrier(envCubemap, rhi.LayoutShaderReadOnly, envCubemap.DefaultLayout())
			graphics.ImageBarrier(cube, rhi.LayoutComputeWrite, rhi.LayoutShaderReadOnly)
		}
		graphics.EndDebugRegion()
	}

	n.dirty = false
}

func (n *EnvironmentNode) Clear() {
	n.irradianceShader, n.specularShader, n.brdfShader = nil, nil, nil
	n.irradianceBindings, n.specularBindings, n.brdfBindings = nil, nil, nil
	n.envCubemaps, n.irradianceCubemaps = nil, nil
	n.brdfSampler = nil
	n.envMapTexture = nil
	n.inited = false
}
