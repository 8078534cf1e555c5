// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("ShadowPrepass", func() framegraph.Node { return &ShadowPrepassNode{} })
}

// perInstanceShadow is the GPU layout of one shadow-caster
// instance row.
type perInstanceShadow struct {
	Model mgl32.Mat4
}

// perInstanceShadowSize is the byte stride of perInstanceShadow.
const perInstanceShadowSize = 64

// ShadowPrepassNode renders the snapshot's shadow-map update
// commands: one depth-only pass per cascade, in ascending
// cascade order. Higher cascades arrive with the geometry of
// smaller cascades already subtracted; their Dependencies lists
// reference the earlier commands that cover it.
type ShadowPrepassNode struct {
	framegraph.BaseNode

	materials depthMaterials

	perInstance     rhi.ShaderBindingSet
	sizePerInstance int64

	cascadeBindings []rhi.ShaderBindingSet
	indirect        []rhi.Buffer
}

func (n *ShadowPrepassNode) Name() string { return "ShadowPrepass" }

func (n *ShadowPrepassNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	if len(snap.ShadowMaps) == 0 {
		return
	}
	drv := fg.Driver()
	if n.materials.cache == nil {
		n.materials = newDepthMaterials()
	}

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdGraphics)
	defer graphics.EndDebugRegion()

	// All cascades share one per-instance SSBO; each cascade's
	// rows occupy a contiguous slice after the previous one.
	type cascadeDraw struct {
		dc           framegraph.DrawCalls[perInstanceShadow]
		storageIndex []uint32
	}
	var rows []perInstanceShadow
	draws := make([]cascadeDraw, 0, len(snap.ShadowMaps))

	for _, update := range snap.ShadowMaps {
		var cd cascadeDraw
		for _, caster := range update.Casters {
			if caster.Mesh == nil || !caster.Mesh.Ready() {
				continue
			}
			material := n.materials.getOrAdd(fg, caster.Mesh.Vertex, "DepthOnly")
			if material == nil || material.VertexShader() == nil {
				continue
			}
			cd.dc.Add(material, caster.Mesh, perInstanceShadow{Model: caster.WorldMatrix})
		}
		var data []perInstanceShadow
		data, cd.storageIndex = cd.dc.Flatten(len(rows))
		rows = append(rows, data...)
		draws = append(draws, cd)
	}

	if len(rows) == 0 {
		return
	}

	num := int64(len(rows))
	if n.perInstance == nil || n.sizePerInstance < perInstanceShadowSize*num {
		n.perInstance = drv.NewBindingSet()
		n.perInstance.AddSSBO("data", perInstanceShadowSize, num, 0, false)
		n.sizePerInstance = perInstanceShadowSize * num
	}
	storage := n.perInstance.Binding("data")
	transfer.UpdateBinding(storage, rows, perInstanceShadowSize*num, 0)

	if base := uint32(storage.StorageIndex()); base != 0 {
		for i := range draws {
			for j := range draws[i].storageIndex {
				draws[i].storageIndex[j] += base
			}
		}
	}

	for len(n.cascadeBindings) < len(snap.ShadowMaps) {
		set := drv.NewBindingSet()
		set.AddUniformBuffer("lightMatrix", 64, 0)
		n.cascadeBindings = append(n.cascadeBindings, set)
	}
	for len(n.indirect) < len(snap.ShadowMaps) {
		n.indirect = append(n.indirect, nil)
	}

	for ci, update := range snap.ShadowMaps {
		cd := &draws[ci]
		if cd.dc.NumInstances() == 0 {
			continue
		}

		cascade := n.cascadeBindings[ci]
		transfer.UpdateBinding(cascade.Binding("lightMatrix"), update.LightMatrix, 64, 0)

		shadowMap := update.ShadowMap
		w, h := shadowMap.Extent()
		viewport := mgl32.Vec4{0, 0, float32(w), float32(h)}

		graphics.BeginDebugRegion(fmt.Sprintf("Cascade %d", ci), framegraph.ColorCmdGraphics)
		graphics.BeginRenderPass(nil, shadowMap, fullExtent(shadowMap), true, clearNone, true)
		framegraph.RecordDrawCalls(0, cd.dc.NumBatches(), &cd.dc, graphics, drv,
			func(rhi.Material) []rhi.ShaderBindingSet {
				return []rhi.ShaderBindingSet{snap.FrameBindings, n.perInstance, cascade}
			},
			cd.storageIndex, &n.indirect[ci], viewport, viewport)
		graphics.EndRenderPass()
		graphics.EndDebugRegion()
	}
}

func (n *ShadowPrepassNode) Clear() {
	n.perInstance = nil
	n.sizePerInstance = 0
	n.cascadeBindings = nil
	for _, buf := range n.indirect {
		if buf != nil {
			buf.Destroy()
		}
	}
	n.indirect = nil
	n.materials = depthMaterials{}
}
