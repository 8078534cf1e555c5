// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/puzpuzpuz/xsync/v3"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("DepthPrepass", func() framegraph.Node { return &DepthPrepassNode{} })
}

// depthOnlyShaderPath is the generic depth-only effect shared by
// the depth and shadow prepasses.
const depthOnlyShaderPath = "Shaders/DepthOnly.shader"

// perInstanceDepth is the GPU layout of one depth-prepass
// instance row.
type perInstanceDepth struct {
	Model            mgl32.Mat4
	SphereBounds     mgl32.Vec4
	MaterialInstance uint32
	IsCulled         uint32
	_                [2]uint32
}

// perInstanceDepthSize is the byte stride of perInstanceDepth.
const perInstanceDepthSize = 96

// depthMaterials caches a depth-only material per unique vertex
// layout. The map locks per key for the get-or-create critical
// section; creation may fail while the shader compiles and is
// retried on a later frame.
type depthMaterials struct {
	cache *xsync.MapOf[rhi.VertexAttr, rhi.Material]
}

func newDepthMaterials() depthMaterials {
	return depthMaterials{cache: xsync.NewMapOf[rhi.VertexAttr, rhi.Material]()}
}

func (c *depthMaterials) getOrAdd(fg *framegraph.FrameGraph, vd *rhi.VertexDescription, tag string) rhi.Material {
	material, _ := c.cache.Compute(vd.Attrs, func(old rhi.Material, loaded bool) (rhi.Material, bool) {
		if loaded && old != nil {
			return old, false
		}
		shaders, err := fg.Shaders().LoadShader(depthOnlyShaderPath)
		if err != nil || !shaders.Ready() {
			return nil, false
		}
		state := rhi.RenderState{
			DepthTest: true,
			ZWrite:    true,
			Cull:      rhi.CullBack,
			Fill:      rhi.FillSolid,
			Tag:       tag,
			MSAA:      true,
		}
		m, err := fg.Driver().NewMaterial(vd, rhi.TriangleList, state, shaders, nil)
		if err != nil {
			return nil, false
		}
		return m, false
	})
	return material
}

// DepthPrepassNode renders every proxy whose material matches
// the node's Tag with a shared depth-only material, producing
// the depth buffer the rest of the frame reads. Proxies that
// request a custom depth shader are skipped.
type DepthPrepassNode struct {
	framegraph.BaseNode

	materials depthMaterials

	perInstance     rhi.ShaderBindingSet
	sizePerInstance int64

	indirect rhi.Buffer
}

func (n *DepthPrepassNode) Name() string { return "DepthPrepass" }

func (n *DepthPrepassNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()
	if n.materials.cache == nil {
		n.materials = newDepthMaterials()
	}

	tag := n.String("Tag")
	var dc framegraph.DrawCalls[perInstanceDepth]

	for pi := range snap.Proxies {
		proxy := &snap.Proxies[pi]
		for i, mesh := range proxy.Meshes {
			if i >= len(proxy.Materials) {
				break
			}
			surface := proxy.Materials[i]
			if surface == nil || !surface.Ready() {
				continue
			}
			if surface.RenderState().CustomDepthShader {
				// Custom depth shading is not supported in the
				// prepass yet.
				continue
			}
			if surface.RenderState().Tag != tag {
				continue
			}

			depthMat := n.materials.getOrAdd(fg, mesh.Vertex, "DepthOnly")
			ready := depthMat != nil &&
				depthMat.VertexShader() != nil &&
				depthMat.RenderState().ZWrite
			if !ready {
				continue
			}

			dc.Add(depthMat, mesh, perInstanceDepth{
				Model: proxy.WorldMatrix,
				SphereBounds: mgl32.Vec4{
					proxy.Bounds.Center.X(), proxy.Bounds.Center.Y(),
					proxy.Bounds.Center.Z(), proxy.Bounds.Radius,
				},
			})
		}
	}

	if dc.NumInstances() == 0 {
		return
	}

	num := int64(dc.NumInstances())
	if n.perInstance == nil || n.sizePerInstance < perInstanceDepthSize*num {
		n.perInstance = drv.NewBindingSet()
		n.perInstance.AddSSBO("data", perInstanceDepthSize, num, 0, false)
		n.sizePerInstance = perInstanceDepthSize * num
	}
	storage := n.perInstance.Binding("data")

	rows, storageIndex := dc.Flatten(storage.StorageIndex())
	transfer.UpdateBinding(storage, rows, perInstanceDepthSize*int64(len(rows)), 0)

	depth := depthAttachment(&n.BaseNode, fg)
	if depth == nil {
		return
	}

	w, h := depth.Extent()
	viewport := mgl32.Vec4{0, 0, float32(w), float32(h)}

	graphics.BeginRenderPass(nil, depth, fullExtent(depth), true, clearNone, true)
	framegraph.RecordDrawCalls(0, dc.NumBatches(), &dc, graphics, drv,
		func(rhi.Material) []rhi.ShaderBindingSet {
			return []rhi.ShaderBindingSet{snap.FrameBindings, n.perInstance}
		},
		storageIndex, &n.indirect, viewport, viewport)
	graphics.EndRenderPass()
}

func (n *DepthPrepassNode) Clear() {
	n.perInstance = nil
	n.sizePerInstance = 0
	if n.indirect != nil {
		n.indirect.Destroy()
		n.indirect = nil
	}
	n.materials = depthMaterials{}
}
