// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("LightCulling", func() framegraph.Node { return &LightCullingNode{} })
}

// Tiled light-culling parameters.
const (
	// TileSize is the screen-space tile edge in pixels.
	TileSize = 16

	// LightsPerTile bounds the number of lights a tile keeps.
	LightsPerTile = 4
)

type lightCullingPush struct {
	InvViewProjection mgl32.Mat4
	ViewportSize      [2]int32
	NumTiles          [2]int32
	LightsNum         int32
}

// LightCullingNode dispatches one compute group per screen tile
// to bin lights against the depth buffer. The culled-lights and
// lights-grid SSBOs are injected into the snapshot's lights
// binding set, so subsequent shading sees the result without
// further wiring.
type LightCullingNode struct {
	framegraph.BaseNode

	shader       *rhi.ShaderSet
	culledLights rhi.ShaderBindingSet
}

func (n *LightCullingNode) Name() string { return "LightCulling" }

func (n *LightCullingNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	if snap.LightsData == nil {
		// No point culling lights without lights in the scene.
		return
	}

	if n.shader == nil {
		n.shader, _ = fg.Shaders().LoadShader("Shaders/ComputeLightCulling.shader")
	}
	if !n.shader.Ready() {
		return
	}

	depth := depthAttachment(&n.BaseNode, fg)
	if depth == nil {
		return
	}

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdCompute)
	defer graphics.EndDebugRegion()

	w, h := depth.Extent()
	push := lightCullingPush{
		InvViewProjection: snap.Camera.InvViewProjection(),
		ViewportSize:      [2]int32{int32(w), int32(h)},
		NumTiles: [2]int32{
			int32((w-1)/TileSize + 1),
			int32((h-1)/TileSize + 1),
		},
		LightsNum: int32(snap.TotalLights),
	}

	if n.culledLights == nil {
		drv := fg.Driver()
		numTiles := int64(push.NumTiles[0]) * int64(push.NumTiles[1])

		n.culledLights = drv.NewBindingSet()
		culled := n.culledLights.AddSSBO("culledLights", 4*numTiles*LightsPerTile, 1, 0, true)
		grid := n.culledLights.AddSSBO("lightsGrid", 4*(numTiles*2+1), 1, 1, true)
		n.culledLights.AddSampler("sceneDepth", depth, 2)

		snap.LightsData.AddBinding(culled, "culledLights", 1)
		snap.LightsData.AddBinding(grid, "lightsGrid", 2)
	}

	graphics.ImageBarrier(depth, depth.DefaultLayout(), rhi.LayoutShaderReadOnly)
	graphics.Dispatch(n.shader.Compute,
		int(push.NumTiles[0]), int(push.NumTiles[1]), 1,
		[]rhi.ShaderBindingSet{snap.LightsData, n.culledLights, snap.FrameBindings},
		push, 64+4*4+4)
	graphics.ImageBarrier(depth, rhi.LayoutShaderReadOnly, depth.DefaultLayout())
}

func (n *LightCullingNode) Clear() {
	n.shader = nil
	n.culledLights = nil
}
