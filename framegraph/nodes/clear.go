// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("Clear", func() framegraph.Node { return &ClearNode{} })
}

// ClearNode clears its color attachment to the "clearColor"
// parameter.
type ClearNode struct {
	framegraph.BaseNode
}

func (n *ClearNode) Name() string { return "Clear" }

func (n *ClearNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	color := colorAttachment(&n.BaseNode, fg)
	if color == nil {
		return
	}
	graphics.ClearImage(color, n.Vec4("clearColor"))
}

func (n *ClearNode) Clear() {}
