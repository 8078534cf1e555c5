// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
	"halcyon/engine/rhi/trace"
)

type harness struct {
	drv   *trace.Driver
	lib   *trace.ShaderLibrary
	fg    *framegraph.FrameGraph
	snap  *rhi.Snapshot
	view  *rhi.SceneView
	trans *trace.CommandList
	graph *trace.CommandList
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	drv := trace.New(1920, 1080, 1)
	lib := &trace.ShaderLibrary{}
	fg := framegraph.New(drv, lib)

	back, err := drv.NewRenderTarget(1920, 1080, 1, rhi.FormatRGBA8SRGB,
		rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageColorAttachment|rhi.UsageSampled|rhi.UsageTransferSrc|rhi.UsageTransferDst)
	if err != nil {
		t.Fatal(err)
	}
	fg.SetRenderTarget("BackBuffer", back)

	depth, err := drv.NewRenderTarget(1920, 1080, 1, rhi.FormatD32SFloat,
		rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageDepthStencilAttachment|rhi.UsageSampled)
	if err != nil {
		t.Fatal(err)
	}
	fg.SetRenderTarget("DepthBuffer", depth)

	snap := &rhi.Snapshot{
		Camera: rhi.CameraData{
			View:       mgl32.Ident4(),
			Projection: mgl32.Perspective(mgl32.DegToRad(60), 16.0/9, 0.1, 1000),
			Fov:        60, Aspect: 16.0 / 9, ZNear: 0.1, ZFar: 1000,
		},
		DeltaTime: 1.0 / 60,
	}
	snap.FrameBindings = drv.NewBindingSet()
	snap.FrameBindings.AddUniformBuffer("frameData", rhi.FrameDataSize, 0)

	h := &harness{
		drv:  drv,
		lib:  lib,
		fg:   fg,
		snap: snap,
		view: &rhi.SceneView{Snapshots: []*rhi.Snapshot{snap}, DeltaTime: 1.0 / 60},
	}
	h.openLists(t)
	return h
}

func (h *harness) openLists(t *testing.T) {
	t.Helper()
	h.graph = h.drv.NewCommandList(rhi.QueueGraphics, false).(*trace.CommandList)
	h.trans = h.drv.NewCommandList(rhi.QueueCompute, false).(*trace.CommandList)
	if err := h.graph.Begin(true); err != nil {
		t.Fatal(err)
	}
	if err := h.trans.Begin(true); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) closeAndCheck(t *testing.T) {
	t.Helper()
	if err := h.graph.End(); err != nil {
		t.Fatalf("graphics list unbalanced: %v", err)
	}
	if err := h.trans.End(); err != nil {
		t.Fatalf("transfer list unbalanced: %v", err)
	}
	for _, cmd := range []*trace.CommandList{h.graph, h.trans} {
		if err := trace.ValidateLayoutWalk(cmd); err != nil {
			t.Fatalf("layout walk: %v", err)
		}
		if err := trace.ValidatePassNesting(cmd); err != nil {
			t.Fatalf("pass nesting: %v", err)
		}
	}
}

func (h *harness) newMesh(t *testing.T, verts, indices int) *rhi.Mesh {
	t.Helper()
	vb, err := h.drv.NewBufferImmediate(nil, int64(verts)*rhi.VertexP3N3UV2C4.Stride, rhi.UsageVertexBuffer)
	if err != nil {
		t.Fatal(err)
	}
	ib, err := h.drv.NewBufferImmediate(nil, int64(indices)*4, rhi.UsageIndexBuffer)
	if err != nil {
		t.Fatal(err)
	}
	return &rhi.Mesh{VertexBuffer: vb, IndexBuffer: ib, Vertex: rhi.VertexP3N3UV2C4}
}

func (h *harness) newMaterial(t *testing.T, shaderPath, tag string) rhi.Material {
	t.Helper()
	shaders, err := h.lib.LoadShader(shaderPath)
	if err != nil {
		t.Fatal(err)
	}
	bindings := h.drv.NewBindingSet()
	bindings.AddSSBO("material", 64, 16, 0, false)
	m, err := h.drv.NewMaterial(rhi.VertexP3N3UV2C4, rhi.TriangleList,
		rhi.RenderState{DepthTest: true, ZWrite: true, Tag: tag}, shaders, bindings)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// TestDepthThenColor mirrors the depth-then-color scenario:
// three proxies sharing one material and mesh yield one SSBO of
// three rows per node and two passes with instance_count 3.
func TestDepthThenColor(t *testing.T) {
	h := newHarness(t)

	mesh := h.newMesh(t, 24, 36)
	material := h.newMaterial(t, "Shaders/Standard.shader", "Opaque")
	for i := 0; i < 3; i++ {
		h.snap.Proxies = append(h.snap.Proxies, rhi.Proxy{
			WorldMatrix: mgl32.Translate3D(float32(i), 0, 0),
			Meshes:      []*rhi.Mesh{mesh},
			Materials:   []rhi.Material{material},
		})
	}

	prepass := &DepthPrepassNode{}
	prepass.SetString("Tag", "Opaque")
	scene := &RenderSceneNode{}
	scene.SetString("Tag", "Opaque")

	prepass.Process(h.fg, h.trans, h.graph, h.snap)
	scene.Process(h.fg, h.trans, h.graph, h.snap)
	h.closeAndCheck(t)

	updates := h.trans.Find(trace.OpUpdateBinding)
	if len(updates) != 2 {
		t.Fatalf("transfer updates = %d, want 2", len(updates))
	}
	if rows, ok := updates[0].Data.([]perInstanceDepth); !ok || len(rows) != 3 {
		t.Fatalf("depth rows payload = %T", updates[0].Data)
	}
	if rows, ok := updates[1].Data.([]perInstanceScene); !ok || len(rows) != 3 {
		t.Fatalf("scene rows = %T", updates[1].Data)
	} else if rows[1].Model != mgl32.Translate3D(1, 0, 0) {
		t.Fatal("scene row order broken")
	}

	passes := h.graph.Find(trace.OpBeginRenderPass)
	if len(passes) != 2 {
		t.Fatalf("render passes = %d, want 2", len(passes))
	}
	if len(passes[0].Colors) != 0 || passes[0].Depth == nil || !passes[0].Clear {
		t.Fatalf("prepass attachments wrong: %+v", passes[0])
	}
	if len(passes[1].Colors) != 1 || passes[1].Clear {
		t.Fatalf("scene pass attachments wrong: %+v", passes[1])
	}

	for i, update := range h.graph.Find(trace.OpUpdateBuffer) {
		cmds := update.Data.([]rhi.DrawIndexedIndirect)
		if len(cmds) != 1 || cmds[0].InstanceCount != 3 || cmds[0].FirstInstance != 0 {
			t.Fatalf("indirect %d = %+v", i, cmds)
		}
		if cmds[0].IndexCount != 36 {
			t.Fatalf("indirect %d index count = %d", i, cmds[0].IndexCount)
		}
	}
	if got := len(h.graph.Find(trace.OpDrawIndexedIndirect)); got != 2 {
		t.Fatalf("indirect draws = %d, want 2", got)
	}
}

// TestEmptySceneRecordsNothing: without proxies neither node
// opens a pass or clears anything.
func TestEmptySceneRecordsNothing(t *testing.T) {
	h := newHarness(t)

	prepass := &DepthPrepassNode{}
	prepass.SetString("Tag", "Opaque")
	scene := &RenderSceneNode{}
	scene.SetString("Tag", "Opaque")

	prepass.Process(h.fg, h.trans, h.graph, h.snap)
	scene.Process(h.fg, h.trans, h.graph, h.snap)
	h.closeAndCheck(t)

	if got := len(h.graph.Commands); got != 0 {
		t.Fatalf("graphics recorded %d commands on an empty scene", got)
	}
}

// TestNotReadyMaterialSkipped: a proxy whose material has no
// compiled shaders is skipped without opening a pass.
func TestNotReadyMaterialSkipped(t *testing.T) {
	h := newHarness(t)
	h.lib.NotReady = map[string]bool{"Shaders/Late.shader": true}

	mesh := h.newMesh(t, 24, 36)
	material := h.newMaterial(t, "Shaders/Late.shader", "Opaque")
	h.snap.Proxies = []rhi.Proxy{{
		WorldMatrix: mgl32.Ident4(),
		Meshes:      []*rhi.Mesh{mesh},
		Materials:   []rhi.Material{material},
	}}

	prepass := &DepthPrepassNode{}
	prepass.SetString("Tag", "Opaque")
	scene := &RenderSceneNode{}
	scene.SetString("Tag", "Opaque")

	prepass.Process(h.fg, h.trans, h.graph, h.snap)
	scene.Process(h.fg, h.trans, h.graph, h.snap)
	h.closeAndCheck(t)

	if got := len(h.graph.Find(trace.OpBeginRenderPass)); got != 0 {
		t.Fatalf("passes opened for a not-ready material: %d", got)
	}
}

// TestMaterialsShorterThanMeshes: remaining meshes are skipped.
func TestMaterialsShorterThanMeshes(t *testing.T) {
	h := newHarness(t)

	material := h.newMaterial(t, "Shaders/Standard.shader", "Opaque")
	h.snap.Proxies = []rhi.Proxy{{
		WorldMatrix: mgl32.Ident4(),
		Meshes:      []*rhi.Mesh{h.newMesh(t, 8, 12), h.newMesh(t, 8, 12)},
		Materials:   []rhi.Material{material},
	}}

	scene := &RenderSceneNode{}
	scene.SetString("Tag", "Opaque")
	scene.Process(h.fg, h.trans, h.graph, h.snap)
	h.closeAndCheck(t)

	updates := h.trans.Find(trace.OpUpdateBinding)
	if len(updates) != 1 {
		t.Fatalf("updates = %d", len(updates))
	}
	if rows := updates[0].Data.([]perInstanceScene); len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
}

// TestLightCulling mirrors the culling scenario: 17 lights, one
// dispatch per 16×16 tile, barriers flipping depth, and the
// culled SSBOs injected into the lights binding set.
func TestLightCulling(t *testing.T) {
	h := newHarness(t)

	lights := h.drv.NewBindingSet()
	lights.AddSSBO("light", 96, 17, 0, true)
	h.snap.LightsData = lights
	h.snap.TotalLights = 17

	node := &LightCullingNode{}
	node.Process(h.fg, h.trans, h.graph, h.snap)
	h.closeAndCheck(t)

	dispatches := h.graph.Find(trace.OpDispatch)
	if len(dispatches) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(dispatches))
	}
	wantX, wantY := (1920-1)/16+1, (1080-1)/16+1
	if dispatches[0].Groups != [3]int{wantX, wantY, 1} {
		t.Fatalf("groups = %v, want (%d,%d,1)", dispatches[0].Groups, wantX, wantY)
	}

	push := dispatches[0].Push.(lightCullingPush)
	if push.LightsNum != 17 || push.NumTiles != [2]int32{int32(wantX), int32(wantY)} {
		t.Fatalf("push = %+v", push)
	}

	barriers := h.graph.Find(trace.OpImageBarrier)
	if len(barriers) != 2 ||
		barriers[0].NewLayout != rhi.LayoutShaderReadOnly ||
		barriers[1].OldLayout != rhi.LayoutShaderReadOnly {
		t.Fatalf("depth barriers wrong: %+v", barriers)
	}

	if lights.Binding("culledLights") == nil || lights.Binding("lightsGrid") == nil {
		t.Fatal("culled SSBOs not injected into lights data")
	}
}

// TestBloomMipChain mirrors the bloom scenario on a 1024² target
// with 6 mips: 5 downscale dispatches (512..32) and 5 upscale
// dispatches (32..512) at 8×8 workgroups.
func TestBloomMipChain(t *testing.T) {
	h := newHarness(t)

	bloom, err := h.drv.NewRenderTarget(1024, 1024, 6, rhi.FormatRGBA16SFloat,
		rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageStorage|rhi.UsageSampled)
	if err != nil {
		t.Fatal(err)
	}
	h.fg.SetRenderTarget("Bloom", bloom)

	node := &BloomNode{}
	node.SetResource("bloom", bloom)
	node.SetVec4("threshold", mgl32.Vec4{1, 0, 0, 0})
	node.SetVec4("knee", mgl32.Vec4{0.5, 0, 0, 0})
	node.SetVec4("bloomIntensity", mgl32.Vec4{0.8, 0, 0, 0})
	node.SetVec4("dirtIntensity", mgl32.Vec4{0.2, 0, 0, 0})

	node.Process(h.fg, h.trans, h.graph, h.snap)
	h.closeAndCheck(t)

	dispatches := h.graph.Find(trace.OpDispatch)
	if len(dispatches) != 10 {
		t.Fatalf("dispatches = %d, want 10", len(dispatches))
	}

	wantDown := [][3]int{{64, 64, 1}, {32, 32, 1}, {16, 16, 1}, {8, 8, 1}, {4, 4, 1}}
	for i, want := range wantDown {
		if dispatches[i].Groups != want {
			t.Fatalf("downscale %d groups = %v, want %v", i, dispatches[i].Groups, want)
		}
	}
	wantUp := [][3]int{{8, 8, 1}, {16, 16, 1}, {32, 32, 1}, {64, 64, 1}, {128, 128, 1}}
	for i, want := range wantUp {
		if dispatches[5+i].Groups != want {
			t.Fatalf("upscale %d groups = %v, want %v", i, dispatches[5+i].Groups, want)
		}
	}

	down := dispatches[0].Push.(bloomDownscalePush)
	if down.UseThreshold != 1 {
		t.Fatal("threshold not applied at mip 0")
	}
	if down.Threshold != (mgl32.Vec4{1, 0.5, 1, 0.125}) {
		t.Fatalf("threshold packing = %v", down.Threshold)
	}
	if later := dispatches[1].Push.(bloomDownscalePush); later.UseThreshold != 0 {
		t.Fatal("threshold applied past mip 0")
	}

	up := dispatches[5].Push.(bloomUpscalePush)
	if up.MipLevel != 5 || up.BloomIntensity != 0.8 || up.DirtIntensity != 0.2 {
		t.Fatalf("upscale push = %+v", up)
	}
}

// TestEyeAdaptationTimeCoeff asserts the temporal smoothing
// coefficient written to the average-luminance reduction:
// 1 - exp2(-dt × eyeReaction).
func TestEyeAdaptationTimeCoeff(t *testing.T) {
	h := newHarness(t)

	color, _ := h.drv.NewRenderTarget(1920, 1080, 1, rhi.FormatRGBA8SRGB, rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageColorAttachment)
	quarter, _ := h.drv.NewRenderTarget(480, 270, 1, rhi.FormatRGBA16SFloat, rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageStorage)
	full, _ := h.drv.NewRenderTarget(1920, 1080, 1, rhi.FormatRGBA16SFloat, rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageSampled)

	node := &EyeAdaptationNode{}
	node.SetResource("color", color)
	node.SetResource("hdrColor", quarter)
	node.SetResource("colorSampler", full)
	node.SetString("toneMappingShader", "Shaders/Tonemap.shader")

	process := func() [4]float32 {
		node.Process(h.fg, h.trans, h.graph, h.snap)
		dispatches := h.graph.Find(trace.OpDispatch)
		if len(dispatches) != 2 {
			t.Fatalf("dispatches = %d, want 2", len(dispatches))
		}
		if dispatches[0].Groups != [3]int{480 / 16, 270 / 16, 1} {
			t.Fatalf("histogram groups = %v", dispatches[0].Groups)
		}
		if dispatches[1].Groups != [3]int{1, 1, 1} {
			t.Fatalf("average groups = %v", dispatches[1].Groups)
		}
		return dispatches[1].Push.([4]float32)
	}

	push := process()
	want := 1 - float32(math.Exp2(float64(-(1.0/60)*1.8)))
	if diff := push[3] - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("timeCoeff = %v, want %v", push[3], want)
	}
	if push[0] != -8 || push[1] != 11 {
		t.Fatalf("luminance range push = %v", push)
	}
	if push[2] != 480*270 {
		t.Fatalf("pixel count = %v", push[2])
	}

	// The histogram is zero-initialised only on the first frame.
	if zeroed := h.trans.Find(trace.OpUpdateBinding); len(zeroed) != 1 {
		t.Fatalf("histogram init updates = %d, want 1", len(zeroed))
	}
	h.closeAndCheck(t)

	h.openLists(t)
	push2 := process()
	if push2[3] != push[3] {
		t.Fatal("second frame coefficient differs for identical dt")
	}
	if inits := h.trans.Find(trace.OpUpdateBinding); len(inits) != 0 {
		t.Fatal("histogram re-initialised on the second frame")
	}
	h.closeAndCheck(t)
}

// TestShadowPrepassCascades records one pass per cascade in
// ascending order with cleared depth.
func TestShadowPrepassCascades(t *testing.T) {
	h := newHarness(t)

	mesh := h.newMesh(t, 24, 36)
	var updates []rhi.UpdateShadowMap
	for i := 0; i < 3; i++ {
		res := 4096 >> i
		sm, err := h.drv.NewRenderTarget(res, res, 1, rhi.FormatD16Unorm,
			rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageDepthStencilAttachment|rhi.UsageSampled)
		if err != nil {
			t.Fatal(err)
		}
		updates = append(updates, rhi.UpdateShadowMap{
			ShadowMap:   sm,
			LightMatrix: mgl32.Ident4(),
			Casters: []rhi.ShadowCaster{{
				WorldMatrix: mgl32.Ident4(),
				Mesh:        mesh,
			}},
		})
	}
	h.snap.ShadowMaps = updates

	node := &ShadowPrepassNode{}
	node.Process(h.fg, h.trans, h.graph, h.snap)
	h.closeAndCheck(t)

	passes := h.graph.Find(trace.OpBeginRenderPass)
	if len(passes) != 3 {
		t.Fatalf("cascade passes = %d, want 3", len(passes))
	}
	for i, pass := range passes {
		if pass.Depth != rhi.Texture(updates[i].ShadowMap) {
			t.Fatalf("cascade %d renders into the wrong map", i)
		}
		if !pass.Clear || len(pass.Colors) != 0 {
			t.Fatalf("cascade %d pass config wrong", i)
		}
	}
	if got := len(h.graph.Find(trace.OpDrawIndexedIndirect)); got != 3 {
		t.Fatalf("indirect draws = %d, want 3", got)
	}
}

// TestClearNodeFallback: without a color parameter the clear
// applies to the conventional back buffer.
func TestClearNodeFallback(t *testing.T) {
	h := newHarness(t)

	node := &ClearNode{}
	node.SetVec4("clearColor", mgl32.Vec4{0, 0, 0, 1})
	node.Process(h.fg, h.trans, h.graph, h.snap)
	h.closeAndCheck(t)

	clears := h.graph.Find(trace.OpClearImage)
	if len(clears) != 1 || clears[0].Dst != h.fg.RenderTarget("BackBuffer") {
		t.Fatalf("clears = %+v", clears)
	}
}
