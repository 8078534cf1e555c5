// Copyright 2023 The Halcyon Authors. All rights reserved.

// Package lighting owns the scene's light data on the GPU side:
// the light SSBO consumed by shading, the cascaded-shadow-map
// targets, and the per-frame assembly of shadow-map update
// commands handed to the frame graph's shadow prepass.
package lighting

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/rhi"
)

// Light types.
type LightType int32

const (
	Directional LightType = iota
	Point
	Spot
)

// Limits of the light system.
const (
	// LightsMaxNum is the capacity of the light SSBO.
	LightsMaxNum = 65536

	// MaxShadowsInView bounds the shadow-map sampler array.
	MaxShadowsInView = 16
)

// ShadowMapFormat is the depth format of cascade targets.
const ShadowMapFormat = rhi.FormatD16Unorm

// LightShaderData is the GPU layout of one light record.
type LightShaderData struct {
	Position    mgl32.Vec3
	Type        int32
	Direction   mgl32.Vec3
	_           float32
	Intensity   mgl32.Vec3
	_           float32
	Attenuation mgl32.Vec3
	_           float32
	Bounds      mgl32.Vec3
	_           float32
	CutOff      mgl32.Vec2
	_           [2]float32
}

// LightShaderDataSize is the byte stride of light records.
const LightShaderDataSize = 96

// Light is the CPU-side state of one light source.
type Light struct {
	Type        LightType
	Position    mgl32.Vec3
	Direction   mgl32.Vec3
	Intensity   mgl32.Vec3
	Attenuation mgl32.Vec3
	Bounds      mgl32.Vec3
	// CutOff holds the inner and outer spot angles in degrees.
	CutOff mgl32.Vec2

	CastShadows bool
	Active      bool

	dirty bool
}

// WorldMatrix derives the light's world transform from its
// position and direction.
func (l *Light) WorldMatrix() mgl32.Mat4 {
	up := mgl32.Vec3{0, 1, 0}
	if abs32(l.Direction.Normalize().Dot(up)) > 0.999 {
		up = mgl32.Vec3{0, 0, 1}
	}
	return mgl32.LookAtV(l.Position, l.Position.Add(l.Direction), up).Inv()
}

func abs32(v float32) float32 { return float32(math.Abs(float64(v))) }

// Scene traces shadow casters against a cascade frustum.
type Scene interface {
	Trace(f *Frustum) []rhi.ShadowCaster
}

// System owns the light SSBO and the cascade shadow maps.
type System struct {
	drv rhi.Driver

	lights []Light

	lightsData       rhi.ShaderBindingSet
	csmShadowMaps    []rhi.RenderTarget
	defaultShadowMap rhi.RenderTarget
}

// NewSystem creates the light binding set: the light SSBO at
// slot 0 and the shadow-map sampler array at slot 7, padded
// with a default 1×1 map.
func NewSystem(drv rhi.Driver) (*System, error) {
	s := &System{drv: drv}
	s.lightsData = drv.NewBindingSet()
	s.lightsData.AddSSBO("light", LightShaderDataSize, LightsMaxNum, 0, true)

	const usage = rhi.UsageDepthStencilAttachment | rhi.UsageSampled | rhi.UsageTransferSrc | rhi.UsageTransferDst

	var err error
	s.defaultShadowMap, err = drv.NewRenderTarget(1, 1, 1, ShadowMapFormat, rhi.FilterLinear, rhi.ClampToEdge, usage)
	if err != nil {
		return nil, err
	}

	for i := 0; i < NumCascades; i++ {
		res := shadowCascadeResolutions[i]
		rt, err := drv.NewRenderTarget(res, res, 1, ShadowMapFormat, rhi.FilterLinear, rhi.ClampToEdge, usage)
		if err != nil {
			return nil, err
		}
		drv.SetDebugName(rt, fmt.Sprintf("Shadow Map, Cascade: %d", i))
		s.csmShadowMaps = append(s.csmShadowMaps, rt)
	}

	maps := make([]rhi.Texture, MaxShadowsInView)
	for i := range maps {
		if i < len(s.csmShadowMaps) {
			maps[i] = s.csmShadowMaps[i]
		} else {
			maps[i] = s.defaultShadowMap
		}
	}
	s.lightsData.AddSamplerArray("shadowMaps", maps, 7)
	return s, nil
}

// LightsData returns the binding set shared with shading nodes.
func (s *System) LightsData() rhi.ShaderBindingSet { return s.lightsData }

// NumLights returns the number of registered lights.
func (s *System) NumLights() int { return len(s.lights) }

// Add registers a light and returns its index.
func (s *System) Add(l Light) int {
	l.dirty = true
	s.lights = append(s.lights, l)
	return len(s.lights) - 1
}

// Set replaces the light at index, marking it for re-upload.
func (s *System) Set(index int, l Light) {
	l.dirty = true
	s.lights[index] = l
}

// Update writes dirty light records into the light SSBO in
// contiguous batches on the given transfer command list.
func (s *System) Update(cmd rhi.CommandList) {
	binding := s.lightsData.Binding("light")
	if binding == nil {
		return
	}

	cmd.BeginDebugRegion("Lighting:Update Lights", mgl32.Vec4{0.75, 0.75, 1, 0.1})
	defer cmd.EndDebugRegion()

	var batch []LightShaderData
	var start int
	flush := func() {
		if len(batch) == 0 {
			return
		}
		cmd.UpdateBinding(binding, batch,
			int64(len(batch))*LightShaderDataSize,
			binding.BufferOffset()+int64(start)*LightShaderDataSize)
		batch = nil
	}

	for i := range s.lights {
		l := &s.lights[i]
		if !l.Active || !l.dirty {
			flush()
			continue
		}
		if len(batch) == 0 {
			start = i
		}
		batch = append(batch, LightShaderData{
			Position:    l.Position,
			Type:        int32(l.Type),
			Direction:   l.Direction,
			Intensity:   l.Intensity,
			Attenuation: l.Attenuation,
			Bounds:      l.Bounds,
			CutOff: mgl32.Vec2{
				cos32(mgl32.DegToRad(l.CutOff.X())),
				cos32(mgl32.DegToRad(l.CutOff.Y())),
			},
		})
		l.dirty = false
	}
	flush()
}

func cos32(v float32) float32 { return float32(math.Cos(float64(v))) }

// lightProxy is one shadow-casting light sorted by distance to
// the camera.
type lightProxy struct {
	lightMatrix mgl32.Mat4
	distance    float32
	index       int
}

// FillLightingData assembles the per-snapshot shadow-map update
// commands and attaches the light binding set to the view.
// For every active directional light it computes per-cascade
// light matrices, traces the scene against each cascade frustum,
// subtracts geometry already included in smaller cascades, and
// records the cascade index dependencies. Cascades are emitted
// in ascending order.
func (s *System) FillLightingData(view *rhi.SceneView, scene Scene) {
	var directional []lightProxy
	for i := range s.lights {
		l := &s.lights[i]
		if !l.CastShadows || !l.Active {
			continue
		}
		if l.Type == Directional {
			directional = append(directional, lightProxy{
				lightMatrix: l.WorldMatrix().Inv(),
				index:       i,
			})
		}
	}
	sort.SliceStable(directional, func(i, j int) bool { return directional[i].index < directional[j].index })

	for _, snap := range view.Snapshots {
		var updates []rhi.UpdateShadowMap

		for _, light := range directional {
			cam := &snap.Camera
			cascades := CascadeProjections(light.lightMatrix, cam.View, cam.Aspect, cam.Fov, cam.ZNear, cam.ZFar)

			frustums := make([]Frustum, len(cascades))
			base := len(updates)
			for k := range cascades {
				lightMatrix := cascades[k].Mul4(light.lightMatrix)
				frustums[k] = FrustumFromMatrix(lightMatrix)

				update := rhi.UpdateShadowMap{
					ShadowMap:   s.csmShadowMaps[k],
					LightMatrix: lightMatrix,
					Casters:     scene.Trace(&frustums[k]),
				}
				if k > 0 {
					// Geometry already covered by a smaller cascade
					// is not rendered again.
					kept := update.Casters[:0]
					for _, c := range update.Casters {
						covered := false
						for z := 0; z < k; z++ {
							if frustums[z].OverlapsAABB(c.WorldAABB) {
								covered = true
								break
							}
						}
						if !covered {
							kept = append(kept, c)
						}
					}
					update.Casters = kept

					for z := k; z > 0; z-- {
						update.Dependencies = append(update.Dependencies, base+k-z)
					}
				}
				updates = append(updates, update)
			}
		}

		snap.ShadowMaps = updates
		snap.LightsData = s.lightsData
		snap.TotalLights = len(s.lights)
	}
	view.LightsData = s.lightsData
}
