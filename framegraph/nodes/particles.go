// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"bytes"
	"encoding/binary"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("ExperimentalParticles", func() framegraph.Node { return &ParticlesNode{} })
}

// particleInfo is the YAML header of a baked particle
// simulation.
type particleInfo struct {
	ScreenW     uint32  `yaml:"screenW"`
	ScreenH     uint32  `yaml:"screenH"`
	FPS         uint32  `yaml:"fps"`
	Frames      uint32  `yaml:"frames"`
	N           uint32  `yaml:"n"`
	TraceDecay  float32 `yaml:"traceDecay"`
	TraceFrames uint32  `yaml:"traceFrames"`
}

// particleData is one packed record of the companion binary
// file: two keyframes of position, size and color.
type particleData struct {
	Enabled, Size1, Size2, Pad0 float32
	X1, Y1, Z1, W1              float32
	R1, G1, B1, A1              float32
	X2, Y2, Z2, W2              float32
	R2, G2, B2, A2              float32
}

const particleDataSize = 80

// perInstanceParticle is the GPU layout of one particle
// instance, animated in place by the compute pass.
type perInstanceParticle struct {
	Model            mgl32.Mat4
	Color            mgl32.Vec4
	ColorOld         mgl32.Vec4
	MaterialInstance uint32
	IsCulled         uint32
	_                [2]uint32
}

const perInstanceParticleSize = 112

type particlesPush struct {
	NumInstances uint32
	NumFrames    uint32
	FPS          uint32
	TraceFrames  uint32
	TraceDecay   float32
}

// ParticlesNode animates baked particle data with a compute
// pass, then draws the particle mesh twice: into a dedicated
// shadow map and into the main color target. Instances cover
// particle_count × trace_frames trailing copies.
type ParticlesNode struct {
	framegraph.BaseNode

	header particleInfo
	loaded bool
	frames []particleData

	mesh           *rhi.Mesh
	material       rhi.Material
	shadowMaterial rhi.Material

	perInstance  rhi.ShaderBindingSet
	instances    rhi.Buffer
	framesBuf    rhi.Buffer
	numInstances uint32

	shadowMap        rhi.RenderTarget
	shadowMapBinding rhi.ShaderBindingSet

	computeShader *rhi.ShaderSet

	loadOnce sync.Once
}

func (n *ParticlesNode) Name() string { return "ExperimentalParticles" }

// Prepare loads the baked particle files on the worker pool so
// Process finds the CPU-side caches populated.
func (n *ParticlesNode) Prepare(fg *framegraph.FrameGraph, snap *rhi.Snapshot) func() error {
	if n.loaded || fg.Content == nil {
		return nil
	}
	if _, ok := n.TryString("particlesData"); !ok {
		return nil
	}
	return func() error {
		n.loadOnce.Do(func() { n.loadData(fg) })
		return nil
	}
}

// loadData reads the YAML header and the packed keyframe file
// next to it.
func (n *ParticlesNode) loadData(fg *framegraph.FrameGraph) {
	path, ok := n.TryString("particlesData")
	if !ok || fg.Content == nil {
		return
	}
	text, err := fg.Content.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Msg("particles: header unavailable")
		return
	}
	if err := yaml.Unmarshal(text, &n.header); err != nil {
		log.Warn().Err(err).Msg("particles: bad header")
		return
	}

	binPath := strings.TrimSuffix(path, ".yaml") + ".dat"
	raw, err := fg.Content.ReadFile(binPath)
	if err != nil {
		log.Warn().Err(err).Msg("particles: data unavailable")
		return
	}
	count := len(raw) / particleDataSize
	n.frames = make([]particleData, count)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, n.frames); err != nil {
		log.Warn().Err(err).Msg("particles: bad data")
		n.frames = nil
		return
	}
	n.loaded = true
}

func (n *ParticlesNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	if !n.loaded {
		n.loadData(fg)
		if !n.loaded {
			return
		}
	}

	if n.shadowMap == nil {
		const usage = rhi.UsageColorAttachment | rhi.UsageTransferSrc | rhi.UsageTransferDst | rhi.UsageSampled
		rt, err := drv.NewRenderTarget(4096, 4096, 1, rhi.FormatR32SFloat,
			rhi.FilterLinear, rhi.ClampToEdge, usage)
		if err != nil {
			return
		}
		n.shadowMap = rt
		n.shadowMapBinding = drv.NewBindingSet()
		n.shadowMapBinding.AddSampler("shadowMapSampler", rt, 0)
	}

	if n.mesh == nil || n.material == nil {
		if fg.Models == nil {
			return
		}
		path, ok := n.TryString("particleModel")
		if !ok {
			return
		}
		mesh, materials, err := fg.Models.LoadModel(path)
		if err != nil || mesh == nil || len(materials) == 0 {
			return
		}
		n.mesh = mesh
		n.material = materials[0]
	}

	if n.shadowMaterial == nil {
		path := n.String("particleShadowShader")
		if path == "" {
			path = "Experimental/MeshParticles/ParticleShadow.shader"
		}
		shaders, err := fg.Shaders().LoadShader(path)
		if err != nil || !shaders.Ready() {
			return
		}
		state := rhi.RenderState{DepthTest: true, ZWrite: true, Cull: rhi.CullBack, Fill: rhi.FillSolid}
		n.shadowMaterial, _ = drv.NewMaterial(n.mesh.Vertex, rhi.TriangleList, state, shaders, nil)
	}

	if n.computeShader == nil {
		n.computeShader, _ = fg.Shaders().LoadShader("Experimental/MeshParticles/ComputeParticles.shader")
	}

	if !n.mesh.Ready() || n.material == nil || !n.material.Ready() ||
		n.shadowMaterial == nil || !n.computeShader.Ready() {
		return
	}

	if n.instances == nil {
		var materialInstance uint32
		if b := n.material.Bindings().Binding("material"); b != nil {
			materialInstance = uint32(b.StorageIndex())
		}

		total := n.header.N * n.header.TraceFrames
		instances := make([]perInstanceParticle, 0, total)
		for i := uint32(0); i < total; i++ {
			j := i / n.header.TraceFrames
			frame := &n.frames[j]

			model := mgl32.Translate3D(frame.X2, frame.Y2, frame.Z2).
				Mul4(mgl32.Scale3D(frame.Size2, frame.Size2, frame.Size2))

			instances = append(instances, perInstanceParticle{
				Model:            model,
				Color:            mgl32.Vec4{1, 1, 1, 1},
				MaterialInstance: materialInstance,
			})
		}
		n.numInstances = total

		var err error
		n.instances, err = drv.NewBufferImmediate(instances,
			int64(len(instances))*perInstanceParticleSize, rhi.UsageStorageBuffer)
		if err != nil {
			return
		}
		n.framesBuf, err = drv.NewBufferImmediate(n.frames,
			int64(len(n.frames))*particleDataSize, rhi.UsageStorageBuffer)
		if err != nil {
			return
		}

		n.perInstance = drv.NewBindingSet()
		n.perInstance.AddBuffer("data", n.instances, 0)
		n.perInstance.AddBuffer("particlesData", n.framesBuf, 1)

		n.frames = nil
	}

	colorSurface := n.SurfaceParam("color")
	depth := depthAttachment(&n.BaseNode, fg)
	if colorSurface == nil || depth == nil {
		return
	}

	sets := []rhi.ShaderBindingSet{
		snap.FrameBindings, snap.LightsData, n.perInstance,
		n.material.Bindings(), n.shadowMapBinding,
	}

	push := particlesPush{
		NumInstances: n.numInstances,
		NumFrames:    n.header.Frames,
		FPS:          n.header.FPS,
		TraceFrames:  n.header.TraceFrames,
		TraceDecay:   n.header.TraceDecay,
	}

	// Animate instance matrices on the transfer/compute queue.
	transfer.BeginDebugRegion(n.Name(), framegraph.ColorCmdCompute)
	transfer.Dispatch(n.computeShader.Compute, 256, 1, 1,
		[]rhi.ShaderBindingSet{n.perInstance, snap.FrameBindings}, push, 20)
	transfer.EndDebugRegion()

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdGraphics)
	defer graphics.EndDebugRegion()

	// Shadow pass into the dedicated particle shadow map.
	{
		graphics.ImageBarrier(n.shadowMap, n.shadowMap.DefaultLayout(), rhi.LayoutColorAttachment)

		graphics.BeginRenderPass([]rhi.Texture{n.shadowMap}, nil, fullExtent(n.shadowMap), true, clearNone, true)
		graphics.BindMaterial(n.shadowMaterial)
		w, h := n.shadowMap.Extent()
		graphics.SetViewport(0, 0, float32(w), float32(h),
			mgl32.Vec2{0, 0}, mgl32.Vec2{float32(w), float32(h)}, 0, 1)
		graphics.BindBindingSets(n.shadowMaterial, sets)
		graphics.BindVertexBuffer(n.mesh.VertexBuffer, 0)
		graphics.BindIndexBuffer(n.mesh.IndexBuffer, 0)
		graphics.DrawIndexed(n.mesh.IndexCount(), n.numInstances, n.mesh.FirstIndex(), n.mesh.VertexOffset(), 0)
		graphics.EndRenderPass()

		graphics.ImageBarrier(n.shadowMap, rhi.LayoutColorAttachment, n.shadowMap.DefaultLayout())
	}

	// Main pass into the scene color surface.
	{
		target := colorSurface.Target
		w, h := target.Extent()

		graphics.BeginRenderPassMSAA([]*rhi.Surface{colorSurface}, depth, fullExtent(target), false, clearNone, true)
		graphics.BindMaterial(n.material)
		graphics.SetViewport(0, 0, float32(w), float32(h),
			mgl32.Vec2{0, 0}, mgl32.Vec2{float32(w), float32(h)}, 0, 1)
		graphics.BindBindingSets(n.material, sets)
		graphics.BindVertexBuffer(n.mesh.VertexBuffer, 0)
		graphics.BindIndexBuffer(n.mesh.IndexBuffer, 0)
		graphics.DrawIndexed(n.mesh.IndexCount(), n.numInstances, n.mesh.FirstIndex(), n.mesh.VertexOffset(), 0)
		graphics.EndRenderPass()
	}
}

func (n *ParticlesNode) Clear() {
	n.computeShader = nil
	n.material, n.shadowMaterial = nil, nil
	n.mesh = nil
	n.perInstance = nil
	if n.instances != nil {
		n.instances.Destroy()
		n.instances = nil
	}
	if n.framesBuf != nil {
		n.framesBuf.Destroy()
		n.framesBuf = nil
	}
	if n.shadowMap != nil {
		n.shadowMap.Destroy()
		n.shadowMap = nil
	}
	n.shadowMapBinding = nil
	n.loaded = false
}
