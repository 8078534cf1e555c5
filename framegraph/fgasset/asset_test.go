// Copyright 2023 The Halcyon Authors. All rights reserved.

package fgasset

import (
	"bytes"
	"testing"
)

const sampleDoc = `samplers:
  - name: g_lensDirtSampler
    path: Textures/LensDirt.png
values:
  - name: exposure
    float: 1.2
  - name: sunDirection
    vec4: [0, -1, 1, 0]
renderTargets:
  - name: BackBuffer
    width: 1920
    height: 1080
    format: R8G8B8A8_SRGB
  - name: DepthBuffer
    width: 1920
    height: 1080
    format: D32_SFLOAT
  - name: Bloom
    width: 1024
    height: 1024
    format: R16G16B16A16_SFLOAT
    mips: 6
frame:
  - name: Clear
    values:
      clearColor: {vec4: [0, 0, 0, 1]}
    renderTargets:
      color: BackBuffer
  - name: DepthPrepass
    values:
      Tag: {string: Opaque}
    renderTargets:
      depthStencil: DepthBuffer
  - name: RenderScene
    tag: MainPass
    values:
      Tag: {string: Opaque}
      exposure: {float: 0.5}
    renderTargets:
      color: BackBuffer
      depthStencil: DepthBuffer
`

func TestParse(t *testing.T) {
	asset, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}

	if len(asset.Samplers) != 1 || asset.Samplers[0].Name != "g_lensDirtSampler" {
		t.Fatalf("samplers = %+v", asset.Samplers)
	}
	if len(asset.Values) != 2 || asset.Values[0].Float == nil || *asset.Values[0].Float != 1.2 {
		t.Fatalf("values = %+v", asset.Values)
	}
	if asset.Values[1].Vec4 == nil || (*asset.Values[1].Vec4)[1] != -1 {
		t.Fatalf("vec4 value = %+v", asset.Values[1])
	}
	if len(asset.RenderTargets) != 3 || asset.RenderTargets[2].Mips != 6 {
		t.Fatalf("render targets = %+v", asset.RenderTargets)
	}
	if len(asset.Frame) != 3 {
		t.Fatalf("frame = %+v", asset.Frame)
	}

	scene := asset.Frame[2]
	if scene.Tag != "MainPass" {
		t.Fatalf("tag = %q", scene.Tag)
	}
	if len(scene.Values) != 2 || scene.Values[0].Name != "Tag" || scene.Values[1].Name != "exposure" {
		t.Fatalf("node values out of order: %+v", scene.Values)
	}
	if len(scene.RenderTargets) != 2 || scene.RenderTargets[0].Resource != "BackBuffer" {
		t.Fatalf("node refs = %+v", scene.RenderTargets)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	if _, err := Parse([]byte("frame: [")); err == nil {
		t.Fatal("malformed document accepted")
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	doc := `renderTargets:
  - name: BackBuffer
    width: 1
    height: 1
    format: R8G8B8A8_SRGB
  - name: BackBuffer
    width: 2
    height: 2
    format: R8G8B8A8_SRGB
frame: []
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("duplicate render target accepted")
	}
}

// TestRoundTrip: parsing a document and re-serialising it is
// idempotent for the fields the parser writes.
func TestRoundTrip(t *testing.T) {
	asset, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatal(err)
	}
	first, err := asset.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	again, err := Parse(first)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	second, err := again.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("round trip not byte identical:\n%s\n---\n%s", first, second)
	}
}
