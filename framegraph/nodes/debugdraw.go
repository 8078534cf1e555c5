// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("DebugDraw", func() framegraph.Node { return &DebugDrawNode{} })
}

// DebugDrawNode executes the snapshot's pre-recorded debug-draw
// secondary command list inside a render pass that writes color
// without clearing and reads depth.
type DebugDrawNode struct {
	framegraph.BaseNode
}

func (n *DebugDrawNode) Name() string { return "DebugDraw" }

func (n *DebugDrawNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	if snap.DebugDraw == nil {
		return
	}
	color := colorAttachment(&n.BaseNode, fg)
	depth := depthAttachment(&n.BaseNode, fg)
	if color == nil || depth == nil {
		return
	}

	graphics.ImageBarrier(color, color.DefaultLayout(), rhi.LayoutColorAttachment)
	graphics.RenderSecondary([]rhi.CommandList{snap.DebugDraw},
		[]rhi.Texture{color}, depth, fullExtent(color), false, clearNone)
	graphics.ImageBarrier(color, rhi.LayoutColorAttachment, color.DefaultLayout())
}

func (n *DebugDrawNode) Clear() {}
