// Copyright 2023 The Halcyon Authors. All rights reserved.

package framegraph

import (
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"halcyon/engine/rhi"
)

// Debug region colors per command kind.
var (
	ColorCmdGraphics    = mgl32.Vec4{0.75, 1, 0.75, 0.1}
	ColorCmdTransfer    = mgl32.Vec4{0.75, 0.75, 1, 0.1}
	ColorCmdCompute     = mgl32.Vec4{0.25, 1, 1, 0.25}
	ColorCmdPostProcess = mgl32.Vec4{1, 0.75, 1, 0.25}
	ColorCmdDebug       = mgl32.Vec4{1, 1, 0.5, 0.25}
)

// FrameResult is the outcome of one Process call: every
// submitted command-list pair in submission order, plus the
// semaphore the present queue must wait on.
type FrameResult struct {
	TransferCmds []rhi.CommandList
	GraphicsCmds []rhi.CommandList

	// Wait is signalled by the final graphics submission.
	Wait rhi.Semaphore
}

// Prepare runs every node's prepare task on the worker pool and
// joins them before returning. It must be called before Process
// when any node relies on CPU-side caches.
func (f *FrameGraph) Prepare(view *rhi.SceneView) error {
	var g errgroup.Group
	g.SetLimit(f.Limits.RecordWorkers)
	for _, snap := range view.Snapshots {
		for _, n := range f.nodes {
			if task := n.Prepare(f, snap); task != nil {
				g.Go(task)
			}
		}
	}
	return g.Wait()
}

// Process drives the graph for each camera snapshot: it records
// a transfer block with the per-frame uniform data, walks the
// node list in declaration order, and chains into a new
// submission whenever the recorded cost or command count of the
// current pair exceeds the graph's Limits.
//
// Submission ordering per chunk k: transfer_k waits on
// graphics_{k-1} and signals a fresh semaphore that graphics_k
// waits on; graphics_k signals the semaphore carried to
// transfer_{k+1}. This enforces strict alternation across
// chunks while allowing intra-chunk parallelism on device.
func (f *FrameGraph) Process(view *rhi.SceneView) (*FrameResult, error) {
	drv := f.drv
	res := &FrameResult{}

	f.patchLightsData(view)

	for _, snap := range view.Snapshots {
		openPair := func() (transfer, graphics rhi.CommandList, err error) {
			graphics = drv.NewCommandList(rhi.QueueGraphics, false)
			transfer = drv.NewCommandList(rhi.QueueCompute, false)
			drv.SetDebugName(graphics, "FrameGraph:Graphics")
			drv.SetDebugName(transfer, "FrameGraph:Transfer")
			if err = graphics.Begin(true); err != nil {
				return
			}
			if err = transfer.Begin(true); err != nil {
				return
			}
			graphics.BeginDebugRegion("FrameGraph:Graphics", ColorCmdGraphics)
			transfer.BeginDebugRegion("FrameGraph:Transfer", ColorCmdTransfer)
			return
		}
		closePair := func(transfer, graphics rhi.CommandList) error {
			graphics.EndDebugRegion()
			if err := graphics.End(); err != nil {
				return err
			}
			transfer.EndDebugRegion()
			return transfer.End()
		}

		transfer, graphics, err := openPair()
		if err != nil {
			return nil, err
		}

		transfer.BeginDebugRegion("Fill Frame Data", ColorCmdTransfer)
		f.fillFrameData(transfer, snap, view)
		transfer.EndDebugRegion()

		// Submissions run inside tasks joined to the previous
		// submission task: queue submits are serialised while
		// recording continues on this goroutine.
		var g errgroup.Group
		prev := make(chan struct{})
		close(prev)
		var chainSem rhi.Semaphore
		submitPair := func(transfer, graphics rhi.CommandList) {
			newChainSem := drv.NewSemaphore()
			prevChain := chainSem
			chainSem = drv.NewSemaphore()
			signalG := chainSem

			wait := prev
			done := make(chan struct{})
			prev = done
			g.Go(func() error {
				defer close(done)
				<-wait
				if err := drv.Submit(transfer, drv.NewFence(), newChainSem, prevChain); err != nil {
					return err
				}
				return drv.Submit(graphics, drv.NewFence(), signalG, newChainSem)
			})

			res.TransferCmds = append(res.TransferCmds, transfer)
			res.GraphicsCmds = append(res.GraphicsCmds, graphics)
		}

		for _, node := range f.nodes {
			node.Process(f, transfer, graphics, snap)

			cost := transfer.GPUCost() + graphics.GPUCost()
			num := transfer.NumRecordedCommands() + graphics.NumRecordedCommands()
			if cost > f.Limits.MaxGPUCost || num > f.Limits.MaxRecordedCommands {
				if err := closePair(transfer, graphics); err != nil {
					return nil, err
				}
				submitPair(transfer, graphics)
				if transfer, graphics, err = openPair(); err != nil {
					return nil, err
				}
			}
		}

		if err := closePair(transfer, graphics); err != nil {
			return nil, err
		}
		submitPair(transfer, graphics)

		if err := g.Wait(); err != nil {
			return nil, err
		}
		res.Wait = chainSem
	}

	return res, nil
}

// fillFrameData creates the snapshot's frame-bindings set and
// records the per-frame uniform upload on the transfer list.
func (f *FrameGraph) fillFrameData(transfer rhi.CommandList, snap *rhi.Snapshot, view *rhi.SceneView) {
	snap.DeltaTime = view.DeltaTime
	snap.FrameBindings = f.drv.NewBindingSet()
	binding := snap.FrameBindings.AddUniformBuffer("frameData", rhi.FrameDataSize, 0)

	w, h := f.drv.BackBuffer().Extent()
	data := rhi.FrameData{
		View:            snap.Camera.View,
		Projection:      snap.Camera.Projection,
		InvProjection:   snap.Camera.InvProjection(),
		CameraPosition:  snap.CameraPosition,
		ViewportSize:    mgl32.Vec2{float32(w), float32(h)},
		CameraZNearZFar: mgl32.Vec2{snap.Camera.ZNear, snap.Camera.ZFar},
		CurrentTime:     view.CurrentTime,
		DeltaTime:       view.DeltaTime,
	}
	transfer.UpdateBinding(binding, data, rhi.FrameDataSize, 0)
}

// patchLightsData injects the graph's current environment
// samplers into the scene's lights binding set when they differ
// from what the set holds, recomputing the compatibility hash
// once if anything changed.
func (f *FrameGraph) patchLightsData(view *rhi.SceneView) {
	lights := view.LightsData
	if lights == nil {
		return
	}
	changed := false
	patch := func(tex rhi.Texture, name string, slot int) {
		if tex == nil {
			return
		}
		if b := lights.Binding(name); b == nil || b.TextureBinding() != tex {
			lights.AddSampler(name, tex, slot)
			changed = true
		}
	}
	patch(f.Sampler("g_irradianceCubemap"), "g_irradianceCubemap", 3)
	patch(f.Sampler("g_brdfSampler"), "g_brdfSampler", 4)
	patch(f.Sampler("g_envCubemap"), "g_envCubemap", 5)
	patch(f.RenderTarget("g_AO"), "g_aoSampler", 9)
	if changed {
		lights.RecalculateCompatibility()
	}
}
