// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("Blit", func() framegraph.Node { return &BlitNode{} })
}

// BlitNode copies the full extent of "src" into the full extent
// of "dst", defaulting dst to the back buffer.
type BlitNode struct {
	framegraph.BaseNode
}

func (n *BlitNode) Name() string { return "Blit" }

func (n *BlitNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	src := n.ResolvedAttachment("src")
	if src == nil {
		return
	}
	dst := n.ResolvedAttachment("dst")
	if dst == nil {
		dst = fg.RenderTarget("BackBuffer")
	}
	if dst == nil {
		return
	}
	graphics.BlitImage(src, dst, fullExtent(src), fullExtent(dst))
}

func (n *BlitNode) Clear() {}
