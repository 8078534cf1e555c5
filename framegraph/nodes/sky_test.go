// Copyright 2023 The Halcyon Authors. All rights reserved.

package nodes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"halcyon/engine/rhi"
	"halcyon/engine/rhi/trace"
)

// contentStub serves companion files from memory.
type contentStub map[string][]byte

func (c contentStub) ReadFile(path string) ([]byte, error) {
	data, ok := c[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func TestMorganKeenanToTemperature(t *testing.T) {
	cases := []struct {
		spectral, sub byte
		min, max      uint32
	}{
		{'G', '9', 5200, 5300},
		{'G', '0', 5900, 6000},
		{'M', '5', 2400, 3700},
		{'O', '0', 39000, 40000},
		// Unknown classes fall back to solar temperatures.
		{'X', '5', 5200, 6000},
	}
	for _, c := range cases {
		got := morganKeenanToTemperature(c.spectral, c.sub)
		if got < c.min || got > c.max {
			t.Errorf("%c%c -> %dK, want within [%d, %d]", c.spectral, c.sub, got, c.min, c.max)
		}
	}
}

func buildCatalogue(t *testing.T, entries []bscEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	header := bscHeader{
		StarCount:     int32(-len(entries)),
		StarEntrySize: 32,
	}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if err := binary.Write(&buf, binary.LittleEndian, e); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

const starColorsDoc = `colors:
  - [5800, 0, 0, 0, 0, 1.0, 0.8, 0.6]
  - [10000, 0, 0, 0, 0, 0.7, 0.8, 1.0]
`

func TestCreateStarsMesh(t *testing.T) {
	h := newHarness(t)
	h.fg.Content = contentStub{
		"StarsColor.yaml": []byte(starColorsDoc),
		"BSC5": buildCatalogue(t, []bscEntry{
			{SRA0: 0, SDEC0: 0, IS: [2]byte{'G', '2'}, Mag: 100},
			{SRA0: 1.5707963, SDEC0: 0, IS: [2]byte{'A', '0'}, Mag: 0},
		}),
	}

	node := &SkyNode{}
	node.createStarsMesh(h.fg, h.trans)
	if err := h.trans.End(); err != nil {
		t.Fatal(err)
	}

	if node.starsMesh == nil {
		t.Fatal("no stars mesh")
	}
	if node.starsMesh.Vertex != rhi.VertexP3C4 {
		t.Fatal("stars mesh layout")
	}

	vb := node.starsMesh.VertexBuffer.(*trace.Buffer)
	verts := vb.Data.([]rhi.VertexPC)
	if len(verts) != 2 {
		t.Fatalf("star count = %d", len(verts))
	}

	// First star: RA=0, DEC=0, magnitude 1.0 — on the +X axis at
	// 5000/1.4 units, solar colored.
	want := float32(5000.0 / 1.4)
	if diff := verts[0].Position.X() - want; diff > 0.5 || diff < -0.5 {
		t.Fatalf("star 0 distance = %v, want ~%v", verts[0].Position.X(), want)
	}
	if verts[0].Position.Y() != 0 {
		t.Fatalf("star 0 off the equator: %v", verts[0].Position)
	}
	if verts[0].Color.X() != 1.0 || verts[0].Color.W() != 1 {
		t.Fatalf("star 0 color = %v", verts[0].Color)
	}

	// Second star: brighter (magnitude 0) lands farther
	// out along +Z.
	if verts[1].Position.Z() <= want {
		t.Fatalf("star 1 not on +Z: %v", verts[1].Position)
	}

	ib := node.starsMesh.IndexBuffer.(*trace.Buffer)
	indices := ib.Data.([]uint32)
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 1 {
		t.Fatalf("indices = %v", indices)
	}

	// The model-view carries the precession/sidereal orientation.
	if node.starsModelView == (mgl32.Mat4{}) {
		t.Fatal("stars model-view not computed")
	}
}

func TestSkyParamsHashKeysCache(t *testing.T) {
	a := DefaultSkyParams()
	b := DefaultSkyParams()
	if a.Hash() != b.Hash() {
		t.Fatal("equal params hash differently")
	}
	b.CloudsCoverage = 0.6
	if a.Hash() == b.Hash() {
		t.Fatal("different params collide")
	}
}
