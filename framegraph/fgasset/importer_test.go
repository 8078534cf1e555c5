// Copyright 2023 The Halcyon Authors. All rights reserved.

package fgasset_test

import (
	"os"
	"path/filepath"
	"testing"

	"halcyon/engine/content"
	"halcyon/engine/framegraph/fgasset"
	_ "halcyon/engine/framegraph/nodes"
	"halcyon/engine/rhi"
	"halcyon/engine/rhi/trace"
)

const buildDoc = `renderTargets:
  - name: BackBuffer
    width: 1920
    height: 1080
    format: R8G8B8A8_SRGB
  - name: DepthBuffer
    width: 1920
    height: 1080
    format: D32_SFLOAT
  - name: Main
    width: 1920
    height: 1080
    format: R16G16B16A16_SFLOAT
    isSurface: true
values:
  - name: exposure
    float: 2.0
frame:
  - name: Clear
    values:
      clearColor: {vec4: [0, 0, 0, 1]}
    renderTargets:
      color: BackBuffer
  - name: FancyNewTechnique
  - name: RenderScene
    values:
      Tag: {string: Opaque}
    renderTargets:
      color: Main
      depthStencil: DepthBuffer
      unknownInput: NoSuchTarget
`

func writeContent(t *testing.T, files map[string]string) *content.Registry {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return content.NewRegistry(dir)
}

func TestBuild(t *testing.T) {
	drv := trace.New(1920, 1080, 1)
	reg := writeContent(t, map[string]string{"main.renderpipeline": buildDoc})
	im := fgasset.NewImporter(drv, &trace.ShaderLibrary{}, nil, reg)

	fg, err := im.LoadFrameGraph("main.renderpipeline")
	if err != nil {
		t.Fatal(err)
	}

	if fg.RenderTarget("BackBuffer") == nil || fg.RenderTarget("DepthBuffer") == nil {
		t.Fatal("declared render targets missing")
	}
	if fg.RenderTarget("DepthBuffer").Format() != rhi.FormatD32SFloat {
		t.Fatal("depth format not parsed")
	}
	if fg.Value("exposure").X() != 2.0 {
		t.Fatal("value not applied")
	}

	// MSAA is off: isSurface targets degrade to plain targets.
	if fg.Surface("Main") != nil {
		t.Fatal("surface created without MSAA")
	}
	if fg.RenderTarget("Main") == nil {
		t.Fatal("surface target missing its plain fallback")
	}

	// The unknown node type is skipped; later nodes survive.
	nodes := fg.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(nodes))
	}
	if nodes[0].Name() != "Clear" || nodes[1].Name() != "RenderScene" {
		t.Fatalf("node order: %s, %s", nodes[0].Name(), nodes[1].Name())
	}

	// Untagged nodes are addressable by type name.
	if fg.Node("RenderScene") != nodes[1] {
		t.Fatal("default tag missing")
	}
}

func TestBuildWithMSAA(t *testing.T) {
	drv := trace.New(1920, 1080, 4)
	reg := writeContent(t, map[string]string{"main.renderpipeline": buildDoc})
	im := fgasset.NewImporter(drv, &trace.ShaderLibrary{}, nil, reg)

	fg, err := im.LoadFrameGraph("main.renderpipeline")
	if err != nil {
		t.Fatal(err)
	}

	surface := fg.Surface("Main")
	if surface == nil || !surface.NeedsResolve {
		t.Fatal("isSurface target did not become an MSAA surface")
	}
	if fg.RenderTarget("Main") != surface.Resolved {
		t.Fatal("resolve target not registered under the surface name")
	}
}

func TestLoadCachesByPath(t *testing.T) {
	drv := trace.New(64, 64, 1)
	reg := writeContent(t, map[string]string{"a.renderpipeline": buildDoc})
	im := fgasset.NewImporter(drv, &trace.ShaderLibrary{}, nil, reg)

	first, err := im.LoadFrameGraph("a.renderpipeline")
	if err != nil {
		t.Fatal(err)
	}
	second, err := im.LoadFrameGraph("a.renderpipeline")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("LoadFrameGraph did not return the cached instance")
	}

	fresh, err := im.Instantiate("a.renderpipeline")
	if err != nil {
		t.Fatal(err)
	}
	if fresh == first {
		t.Fatal("Instantiate returned the cached instance")
	}
}

func TestLoadReportsParseErrors(t *testing.T) {
	drv := trace.New(64, 64, 1)
	reg := writeContent(t, map[string]string{"bad.renderpipeline": "frame: ["})
	im := fgasset.NewImporter(drv, &trace.ShaderLibrary{}, nil, reg)

	if _, err := im.LoadFrameGraph("bad.renderpipeline"); err == nil {
		t.Fatal("parse error swallowed")
	}
	if _, err := im.LoadFrameGraph("missing.renderpipeline"); err == nil {
		t.Fatal("missing file swallowed")
	}
}

// TestBuildTwiceIsDeterministic: two graphs from the same asset
// record the same command sequence over a trivial snapshot.
func TestBuildTwiceIsDeterministic(t *testing.T) {
	reg := writeContent(t, map[string]string{"a.renderpipeline": buildDoc})

	run := func() []trace.Op {
		drv := trace.New(1920, 1080, 1)
		im := fgasset.NewImporter(drv, &trace.ShaderLibrary{}, nil, reg)
		fg, err := im.LoadFrameGraph("a.renderpipeline")
		if err != nil {
			t.Fatal(err)
		}
		res, err := fg.Process(&rhi.SceneView{Snapshots: []*rhi.Snapshot{{}}})
		if err != nil {
			t.Fatal(err)
		}
		var ops []trace.Op
		for _, cmd := range res.GraphicsCmds {
			ops = append(ops, cmd.(*trace.CommandList).Ops()...)
		}
		for _, cmd := range res.TransferCmds {
			ops = append(ops, cmd.(*trace.CommandList).Ops()...)
		}
		return ops
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("op counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("op %d differs: %s vs %s", i, first[i], second[i])
		}
	}
}
