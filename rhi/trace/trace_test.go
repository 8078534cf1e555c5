// Copyright 2023 The Halcyon Authors. All rights reserved.

package trace

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/rhi"
)

func TestCommandListBalance(t *testing.T) {
	drv := New(640, 480, 1)
	cmd := drv.NewCommandList(rhi.QueueGraphics, false).(*CommandList)

	if err := cmd.Begin(true); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	cmd.BeginRenderPass(nil, drv.DepthBuffer(), rhi.Region{W: 640, H: 480}, true, mgl32.Vec4{}, true)
	if err := cmd.End(); err == nil {
		t.Fatal("End accepted an open render pass")
	}
	cmd.EndRenderPass()
	if err := cmd.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestDebugRegionsAreFree(t *testing.T) {
	drv := New(640, 480, 1)
	cmd := drv.NewCommandList(rhi.QueueGraphics, false).(*CommandList)
	if err := cmd.Begin(true); err != nil {
		t.Fatal(err)
	}
	cmd.BeginDebugRegion("r", mgl32.Vec4{})
	cmd.ClearImage(drv.BackBuffer(), mgl32.Vec4{0, 0, 0, 1})
	cmd.EndDebugRegion()

	if got := cmd.NumRecordedCommands(); got != 1 {
		t.Fatalf("NumRecordedCommands = %d, want 1", got)
	}
	if cmd.GPUCost() == 0 {
		t.Fatal("GPUCost = 0 after a clear")
	}
}

func TestSubmitRequiresEnd(t *testing.T) {
	drv := New(64, 64, 1)
	cmd := drv.NewCommandList(rhi.QueueGraphics, false)
	if err := cmd.Begin(true); err != nil {
		t.Fatal(err)
	}
	if err := drv.Submit(cmd, nil, nil, nil); err == nil {
		t.Fatal("Submit accepted an open command list")
	}
	if err := cmd.End(); err != nil {
		t.Fatal(err)
	}
	if err := drv.Submit(cmd, drv.NewFence(), drv.NewSemaphore(), nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(drv.Submissions) != 1 {
		t.Fatalf("Submissions = %d, want 1", len(drv.Submissions))
	}
}

func TestBindingSetHashTracksContents(t *testing.T) {
	drv := New(64, 64, 1)
	set := drv.NewBindingSet()
	set.AddSSBO("data", 64, 16, 0, false)
	h1 := set.CompatibilityHash()

	tex, err := drv.NewRenderTarget(64, 64, 1, rhi.FormatRGBA16SFloat, rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageSampled)
	if err != nil {
		t.Fatal(err)
	}
	set.AddSampler("color", tex, 1)
	h2 := set.CompatibilityHash()
	if h1 == h2 {
		t.Fatal("hash unchanged after adding a sampler")
	}

	// Replacing a binding with the same contents keeps the hash.
	set.AddSampler("color", tex, 1)
	if set.CompatibilityHash() != h2 {
		t.Fatal("hash changed after idempotent rebind")
	}
}

func TestMipLayerExtents(t *testing.T) {
	drv := New(64, 64, 1)
	rt, err := drv.NewRenderTarget(1024, 1024, 6, rhi.FormatRGBA16SFloat, rhi.FilterLinear, rhi.ClampToEdge, rhi.UsageStorage)
	if err != nil {
		t.Fatal(err)
	}
	want := 1024
	for i := 0; i < rt.MipLevels(); i++ {
		w, h := rt.MipLayer(i).Extent()
		if w != want || h != want {
			t.Fatalf("mip %d extent = %dx%d, want %d", i, w, h, want)
		}
		want /= 2
	}
}

func TestShaderLibrary(t *testing.T) {
	lib := &ShaderLibrary{NotReady: map[string]bool{"Shaders/Late.shader": true}}

	set, err := lib.LoadShader("Shaders/ComputeBloomDownscale.shader")
	if err != nil {
		t.Fatal(err)
	}
	if set.Compute == nil || !set.Ready() {
		t.Fatal("compute shader not ready")
	}

	set, err = lib.LoadShader("Shaders/Tonemap.shader", "HDR")
	if err != nil {
		t.Fatal(err)
	}
	if set.Vertex == nil || set.Fragment == nil {
		t.Fatal("raster stages missing")
	}

	set, err = lib.LoadShader("Shaders/Late.shader")
	if err != nil {
		t.Fatal(err)
	}
	if set.Ready() {
		t.Fatal("NotReady path reported ready")
	}

	again, _ := lib.LoadShader("Shaders/Tonemap.shader", "HDR")
	if set2, _ := lib.LoadShader("Shaders/Tonemap.shader"); set2 == again {
		t.Fatal("defines not part of the cache key")
	}
}

func TestValidateLayoutWalk(t *testing.T) {
	drv := New(64, 64, 1)
	cmd := drv.NewCommandList(rhi.QueueGraphics, false).(*CommandList)
	if err := cmd.Begin(true); err != nil {
		t.Fatal(err)
	}
	img := drv.BackBuffer()
	cmd.ImageBarrier(img, img.DefaultLayout(), rhi.LayoutTransferSrc)
	cmd.ImageBarrier(img, rhi.LayoutTransferSrc, img.DefaultLayout())
	if err := ValidateLayoutWalk(cmd); err != nil {
		t.Fatalf("valid walk rejected: %v", err)
	}

	cmd.ImageBarrier(img, rhi.LayoutShaderReadOnly, rhi.LayoutGeneral)
	if err := ValidateLayoutWalk(cmd); err == nil {
		t.Fatal("stale old layout accepted")
	}
}
