// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("RenderImGui", func() framegraph.Node { return &RenderImGuiNode{} })
}

// RenderImGuiNode executes the UI's pre-recorded secondary
// command list on top of the color attachment. The "color"
// parameter may reference a resource that only exists at
// process time; in that case the unresolved name is looked up
// against the live render-target table each frame.
type RenderImGuiNode struct {
	framegraph.BaseNode
}

func (n *RenderImGuiNode) Name() string { return "RenderImGui" }

func (n *RenderImGuiNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	if snap.ImGui == nil {
		return
	}

	color := n.ResolvedAttachment("color")
	if name := n.Unresolved("color"); name != "" {
		color = fg.RenderTarget(name)
	}
	depth := fg.RenderTarget("DepthBuffer")
	if color == nil || depth == nil {
		return
	}

	graphics.BeginDebugRegion(n.Name(), framegraph.ColorCmdDebug)
	graphics.RenderSecondary([]rhi.CommandList{snap.ImGui},
		[]rhi.Texture{color}, depth, fullExtent(color), false, clearNone)
	graphics.EndDebugRegion()
}

func (n *RenderImGuiNode) Clear() {}
