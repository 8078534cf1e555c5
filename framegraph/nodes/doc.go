// Copyright 2023 The Halcyon Authors. All rights reserved.

// Package nodes is the frame-graph node library. Every node type
// registers itself by stable name during package initialization;
// client code imports the package for its side effect:
//
//	import _ "halcyon/engine/framegraph/nodes"
//
// Nodes resolve their attachments by parameter name and fall
// back to the conventional "BackBuffer" and "DepthBuffer"
// targets when a parameter is absent. A node whose shaders or
// inputs are not ready skips the frame without recording.
package nodes

import (
	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

// clearNone is the clear color passed to passes that load their
// attachments.
var clearNone mgl32.Vec4

// colorAttachment resolves the node's "color" parameter,
// falling back to the graph's BackBuffer.
func colorAttachment(n *framegraph.BaseNode, fg *framegraph.FrameGraph) rhi.Texture {
	if t := n.ResolvedAttachment("color"); t != nil {
		return t
	}
	return fg.RenderTarget("BackBuffer")
}

// depthAttachment resolves the node's "depthStencil" parameter,
// falling back to the graph's DepthBuffer.
func depthAttachment(n *framegraph.BaseNode, fg *framegraph.FrameGraph) rhi.Texture {
	if t := n.ResolvedAttachment("depthStencil"); t != nil {
		return t
	}
	return fg.RenderTarget("DepthBuffer")
}

// writeVectorParams packs a node's vector parameters, in
// insertion order, into the uniform buffer behind the "data"
// binding of set.
func writeVectorParams(transfer rhi.CommandList, n *framegraph.BaseNode, set rhi.ShaderBindingSet) {
	binding := set.Binding("data")
	if binding == nil || n.NumVec4() == 0 {
		return
	}
	params := make([]mgl32.Vec4, 0, n.NumVec4())
	n.EachVec4(func(_ string, v mgl32.Vec4) { params = append(params, v) })
	transfer.UpdateBinding(binding, params, int64(len(params))*16, 0)
}

// uniformBlockSize is the size of a post-process parameter
// buffer: at least 256 bytes, or one vec4 per parameter.
func uniformBlockSize(numVec4 int) int64 {
	if size := int64(numVec4) * 16; size > 256 {
		return size
	}
	return 256
}

// fullExtent returns the region covering the whole texture.
func fullExtent(t rhi.Texture) rhi.Region {
	w, h := t.Extent()
	return rhi.Region{X: 0, Y: 0, W: int32(w), H: int32(h)}
}
