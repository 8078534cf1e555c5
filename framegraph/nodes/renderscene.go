// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

func init() {
	framegraph.Register("RenderScene", func() framegraph.Node { return &RenderSceneNode{} })
}

// perInstanceScene is the GPU layout of one scene-render
// instance row: the world matrix plus the material-instance
// index used to fetch per-material data from the material SSBO.
type perInstanceScene struct {
	Model            mgl32.Mat4
	MaterialInstance uint32
	_                [3]uint32
}

// perInstanceSceneSize is the byte stride of perInstanceScene.
const perInstanceSceneSize = 80

// RenderSceneNode draws every proxy whose material matches the
// node's Tag into the color+depth attachments, batching by
// pipeline-compatible material+mesh pairs and emitting one
// indirect draw per batch. When the batch count exceeds the
// worker threshold, batch ranges are recorded into secondary
// command lists in parallel.
type RenderSceneNode struct {
	framegraph.BaseNode

	perInstance     rhi.ShaderBindingSet
	sizePerInstance int64

	indirect []rhi.Buffer
}

func (n *RenderSceneNode) Name() string { return "RenderScene" }

func materialReady(m rhi.Material) bool {
	return m != nil &&
		m.VertexShader() != nil &&
		m.FragmentShader() != nil &&
		m.Bindings() != nil
}

func (n *RenderSceneNode) Process(fg *framegraph.FrameGraph, transfer, graphics rhi.CommandList, snap *rhi.Snapshot) {
	drv := fg.Driver()

	tag := n.String("Tag")
	var dc framegraph.DrawCalls[perInstanceScene]

	for pi := range snap.Proxies {
		proxy := &snap.Proxies[pi]
		for i, mesh := range proxy.Meshes {
			if i >= len(proxy.Materials) {
				break
			}
			material := proxy.Materials[i]
			if !materialReady(material) || !material.Ready() {
				continue
			}
			if material.RenderState().Tag != tag {
				continue
			}

			var materialInstance uint32
			if b := material.Bindings().Binding("material"); b != nil {
				materialInstance = uint32(b.StorageIndex())
			}

			dc.Add(material, mesh, perInstanceScene{
				Model:            proxy.WorldMatrix,
				MaterialInstance: materialInstance,
			})
		}
	}

	if dc.NumInstances() == 0 {
		return
	}

	num := int64(dc.NumInstances())
	if n.perInstance == nil || n.sizePerInstance < perInstanceSceneSize*num {
		n.perInstance = drv.NewBindingSet()
		n.perInstance.AddSSBO("data", perInstanceSceneSize, num, 0, false)
		n.sizePerInstance = perInstanceSceneSize * num
	}
	storage := n.perInstance.Binding("data")

	rows, storageIndex := dc.Flatten(storage.StorageIndex())
	transfer.UpdateBinding(storage, rows, perInstanceSceneSize*int64(len(rows)), 0)

	color := colorAttachment(&n.BaseNode, fg)
	depth := depthAttachment(&n.BaseNode, fg)
	if color == nil || depth == nil {
		return
	}

	w, h := color.Extent()
	viewport := mgl32.Vec4{0, 0, float32(w), float32(h)}

	sets := func(m rhi.Material) []rhi.ShaderBindingSet {
		return []rhi.ShaderBindingSet{snap.FrameBindings, n.perInstance, m.Bindings()}
	}

	// One parallel task per material shard records a secondary
	// command list against a shared immutable view of the batch
	// data; the remaining tail is recorded on the primary list.
	numThreads := fg.Limits.RecordWorkers + 1
	perShard := dc.NumBatches() / numThreads
	var secondaries []rhi.CommandList
	if dc.NumBatches() > numThreads {
		secondaries = make([]rhi.CommandList, numThreads-1)
	}

	for len(n.indirect) < len(secondaries)+1 {
		n.indirect = append(n.indirect, nil)
	}

	var g errgroup.Group
	for i := range secondaries {
		start, end := perShard*i, perShard*(i+1)
		idx := i
		g.Go(func() error {
			cmd := drv.NewCommandList(rhi.QueueGraphics, true)
			if err := cmd.Begin(true); err != nil {
				return err
			}
			cmd.SetDefaultViewport()
			framegraph.RecordDrawCalls(start, end, &dc, cmd, drv, sets,
				storageIndex, &n.indirect[idx+1], viewport, viewport)
			if err := cmd.End(); err != nil {
				return err
			}
			secondaries[idx] = cmd
			return nil
		})
	}

	graphics.ImageBarrier(color, color.DefaultLayout(), rhi.LayoutColorAttachment)

	graphics.BeginRenderPass([]rhi.Texture{color}, depth, fullExtent(color), false, clearNone, true)
	framegraph.RecordDrawCalls(len(secondaries)*perShard, dc.NumBatches(), &dc, graphics, drv, sets,
		storageIndex, &n.indirect[0], viewport, viewport)
	graphics.EndRenderPass()

	if err := g.Wait(); err != nil {
		graphics.ImageBarrier(color, rhi.LayoutColorAttachment, color.DefaultLayout())
		return
	}
	if len(secondaries) > 0 {
		graphics.RenderSecondary(secondaries, []rhi.Texture{color}, depth, fullExtent(color), false, clearNone)
	}

	graphics.ImageBarrier(color, rhi.LayoutColorAttachment, color.DefaultLayout())
}

func (n *RenderSceneNode) Clear() {
	n.perInstance = nil
	n.sizePerInstance = 0
	for _, buf := range n.indirect {
		if buf != nil {
			buf.Destroy()
		}
	}
	n.indirect = nil
}
