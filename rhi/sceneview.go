// Copyright 2023 The Halcyon Authors. All rights reserved.

package rhi

import "github.com/go-gl/mathgl/mgl32"

// CameraData holds one camera's transforms and projection
// parameters for a frame.
type CameraData struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Position   mgl32.Vec3
	Fov        float32
	Aspect     float32
	ZNear      float32
	ZFar       float32
}

// InvProjection returns the inverse projection matrix.
func (c *CameraData) InvProjection() mgl32.Mat4 {
	return c.Projection.Inv()
}

// ViewProjection returns projection×view.
func (c *CameraData) ViewProjection() mgl32.Mat4 {
	return c.Projection.Mul4(c.View)
}

// InvViewProjection returns the inverse of projection×view.
func (c *CameraData) InvViewProjection() mgl32.Mat4 {
	return c.ViewProjection().Inv()
}

// Proxy is a minimal record of a drawable: a world matrix plus
// parallel mesh and material sequences. Materials may be shorter
// than Meshes; the remaining meshes are skipped.
type Proxy struct {
	WorldMatrix mgl32.Mat4
	Bounds      Sphere
	Meshes      []*Mesh
	Materials   []Material
}

// ShadowCaster is one mesh traced into a shadow cascade's
// frustum.
type ShadowCaster struct {
	WorldMatrix mgl32.Mat4
	Mesh        *Mesh
	WorldAABB   AABB
}

// UpdateShadowMap is one cascade's render request, assembled by
// the lighting system before the frame graph runs. Dependencies
// lists the indices of lower cascades whose geometry was already
// subtracted from Casters.
type UpdateShadowMap struct {
	ShadowMap    RenderTarget
	LightMatrix  mgl32.Mat4
	Casters      []ShadowCaster
	Dependencies []int
}

// Snapshot is an immutable per-frame view of the scene consumed
// by frame-graph nodes.
type Snapshot struct {
	Camera         CameraData
	CameraPosition mgl32.Vec4
	Proxies        []Proxy

	// FrameBindings holds the per-frame uniform block; it is
	// created and populated by the frame-graph runtime before
	// the first node runs.
	FrameBindings ShaderBindingSet

	// LightsData holds the light SSBO, the shadow-map sampler
	// array and, after light culling ran, the culled-lights
	// grid.
	LightsData  ShaderBindingSet
	TotalLights int

	// ShadowMaps lists the cascade updates for this snapshot,
	// in ascending cascade order.
	ShadowMaps []UpdateShadowMap

	// DeltaTime mirrors the view's frame delta for nodes with
	// time-dependent smoothing.
	DeltaTime float32

	// Pre-recorded secondary command lists, nil when absent.
	DebugDraw CommandList
	ImGui     CommandList
}

// SceneView is the per-frame container of camera snapshots
// handed to FrameGraph.Process.
type SceneView struct {
	Snapshots []*Snapshot

	DeltaTime   float32
	CurrentTime float32

	// LightsData is shared by every snapshot; the runtime
	// patches environment samplers into it once per frame.
	LightsData ShaderBindingSet
}
