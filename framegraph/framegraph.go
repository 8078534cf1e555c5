// Copyright 2023 The Halcyon Authors. All rights reserved.

// Package framegraph compiles a declarative render description
// into per-frame GPU work. A FrameGraph owns named transient
// resources (render targets, surfaces, samplers, scalar values)
// and an ordered list of nodes; each frame the runtime walks the
// nodes, records their work into a graphics and a transfer
// command list, and chains submissions across queues under a
// cost budget.
package framegraph

import (
	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/rhi"
)

// ContentSource reads companion asset files (star catalogues,
// particle data) relative to the content root.
type ContentSource interface {
	ReadFile(path string) ([]byte, error)
}

// TextureProvider loads textures through the texture importer,
// by asset id when present, else by path.
type TextureProvider interface {
	LoadTexture(path, uid string) (rhi.Texture, error)
}

// ModelSource loads static meshes with their default materials
// through the model importer.
type ModelSource interface {
	LoadModel(path string) (*rhi.Mesh, []rhi.Material, error)
}

// ShaderLoader resolves effect paths to shader sets. Loading may
// be asynchronous: a returned set reports Ready false until its
// stages are compiled, and nodes retry on a later frame.
type ShaderLoader interface {
	LoadShader(path string, defines ...string) (*rhi.ShaderSet, error)
}

// Limits bounds the amount of work recorded into one
// command-list pair before the runtime chains a new submission.
type Limits struct {
	// MaxGPUCost is the recorded-cost budget per pair.
	MaxGPUCost int

	// MaxRecordedCommands is the command-count budget per pair.
	MaxRecordedCommands int

	// RecordWorkers is the number of parallel recorders used for
	// secondary command lists.
	RecordWorkers int
}

// DefaultLimits returns the budgets used by a new frame graph.
func DefaultLimits() Limits {
	return Limits{
		MaxGPUCost:          4096,
		MaxRecordedCommands: 256,
		RecordWorkers:       4,
	}
}

// FrameGraph is a live, data-driven render pipeline: resource
// tables plus an ordered node list. It is built from a textual
// asset by the fgasset importer and driven once per frame by
// Process.
type FrameGraph struct {
	drv     rhi.Driver
	shaders ShaderLoader

	samplers      map[string]rhi.Texture
	renderTargets map[string]rhi.Texture
	surfaces      map[string]*rhi.Surface
	values        map[string]mgl32.Vec4

	nodes []Node

	quad *rhi.Mesh

	Limits Limits

	// Content gives nodes access to companion asset files;
	// nil when the graph was built without an importer.
	Content ContentSource

	// Textures and Models are the importer capabilities nodes
	// may consume at process time; either may be nil.
	Textures TextureProvider
	Models   ModelSource
}

// New creates an empty frame graph over the given driver and
// shader loader.
func New(drv rhi.Driver, shaders ShaderLoader) *FrameGraph {
	return &FrameGraph{
		drv:           drv,
		shaders:       shaders,
		samplers:      make(map[string]rhi.Texture),
		renderTargets: make(map[string]rhi.Texture),
		surfaces:      make(map[string]*rhi.Surface),
		values:        make(map[string]mgl32.Vec4),
		Limits:        DefaultLimits(),
	}
}

// Driver returns the RHI driver the graph records against.
func (f *FrameGraph) Driver() rhi.Driver { return f.drv }

// Shaders returns the shader loader nodes use to resolve effect
// paths.
func (f *FrameGraph) Shaders() ShaderLoader { return f.shaders }

// Nodes returns the graph's node list in declaration order.
func (f *FrameGraph) Nodes() []Node { return f.nodes }

// AddNode appends a node, preserving declaration order.
func (f *FrameGraph) AddNode(n Node) { f.nodes = append(f.nodes, n) }

// Node returns the first node whose tag equals tag, or nil.
// Used rarely at process time to read a sibling node's
// parameters (e.g. the environment node reads the sky node).
func (f *FrameGraph) Node(tag string) Node {
	for _, n := range f.nodes {
		if n.Tag() == tag {
			return n
		}
	}
	return nil
}

// SetSampler stores a texture under a sampler name.
func (f *FrameGraph) SetSampler(name string, t rhi.Texture) { f.samplers[name] = t }

// Sampler returns the named sampler texture, or nil if absent.
func (f *FrameGraph) Sampler(name string) rhi.Texture { return f.samplers[name] }

// SetRenderTarget stores a texture under a render-target name.
func (f *FrameGraph) SetRenderTarget(name string, t rhi.Texture) { f.renderTargets[name] = t }

// RenderTarget returns the named render target, or nil if no
// producer wrote it. Nodes treat an absent target as permission
// to fall back to a conventional default ("BackBuffer" for the
// final color, "DepthBuffer" for depth).
func (f *FrameGraph) RenderTarget(name string) rhi.Texture { return f.renderTargets[name] }

// SetSurface stores an MSAA surface under a name. The resolve
// target is usually registered as a render target of the same
// name.
func (f *FrameGraph) SetSurface(name string, s *rhi.Surface) { f.surfaces[name] = s }

// Surface returns the named surface, or nil if absent.
func (f *FrameGraph) Surface(name string) *rhi.Surface { return f.surfaces[name] }

// SetValue stores a named scalar/vector value.
func (f *FrameGraph) SetValue(name string, v mgl32.Vec4) { f.values[name] = v }

// SetFloat stores a scalar by splatting it across a vector.
func (f *FrameGraph) SetFloat(name string, v float32) {
	f.values[name] = mgl32.Vec4{v, v, v, v}
}

// Value returns the named value; absent names read as zero.
func (f *FrameGraph) Value(name string) mgl32.Vec4 { return f.values[name] }

// FullscreenQuad lazily constructs the NDC quad mesh used by
// every fullscreen pass: 4 vertices, indices 0,1,2, 2,1,3.
func (f *FrameGraph) FullscreenQuad() *rhi.Mesh {
	if f.quad != nil {
		return f.quad
	}
	verts := []rhi.VertexPNUC{
		{Position: mgl32.Vec3{-1, -1, 0}, Texcoord: mgl32.Vec2{0, 0}},
		{Position: mgl32.Vec3{1, -1, 0}, Texcoord: mgl32.Vec2{1, 0}},
		{Position: mgl32.Vec3{-1, 1, 0}, Texcoord: mgl32.Vec2{0, 1}},
		{Position: mgl32.Vec3{1, 1, 0}, Texcoord: mgl32.Vec2{1, 1}},
	}
	indices := []uint32{0, 1, 2, 2, 1, 3}

	vb, err := f.drv.NewBufferImmediate(verts, int64(len(verts))*rhi.VertexP3N3UV2C4.Stride, rhi.UsageVertexBuffer)
	if err != nil {
		return nil
	}
	ib, err := f.drv.NewBufferImmediate(indices, int64(len(indices))*4, rhi.UsageIndexBuffer)
	if err != nil {
		vb.Destroy()
		return nil
	}
	f.quad = &rhi.Mesh{
		VertexBuffer: vb,
		IndexBuffer:  ib,
		Vertex:       rhi.VertexP3N3UV2C4,
		Bounds:       rhi.AABB{Min: mgl32.Vec3{-1, -1, 0}, Max: mgl32.Vec3{1, 1, 0}},
	}
	return f.quad
}

// Clear tears the graph down: node caches are released and
// graph-owned resources destroyed. Samplers stay alive, they
// are owned by the texture importer.
func (f *FrameGraph) Clear() {
	for _, n := range f.nodes {
		n.Clear()
	}
	f.nodes = nil
	for _, t := range f.renderTargets {
		t.Destroy()
	}
	for _, s := range f.surfaces {
		// The resolve target is registered in renderTargets under
		// the same name and was destroyed above.
		s.Target.Destroy()
	}
	if f.quad != nil {
		f.quad.VertexBuffer.Destroy()
		f.quad.IndexBuffer.Destroy()
		f.quad = nil
	}
	f.samplers = make(map[string]rhi.Texture)
	f.renderTargets = make(map[string]rhi.Texture)
	f.surfaces = make(map[string]*rhi.Surface)
	f.values = make(map[string]mgl32.Vec4)
}
