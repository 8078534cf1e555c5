// Copyright 2023 The Halcyon Authors. All rights reserved.

package content

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"halcyon/engine/rhi"
	"halcyon/engine/rhi/trace"
)

func TestRegistry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("frame graph"), 0o644); err != nil {
		t.Fatal(err)
	}
	reg := NewRegistry(dir)

	text, err := reg.ReadText("hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if text != "frame graph" {
		t.Fatalf("text = %q", text)
	}

	if _, err := reg.ReadFile("missing.bin"); err == nil {
		t.Fatal("missing file read")
	}

	id := reg.FileID("Textures/LensDirt.png")
	if id != reg.FileID("Textures/LensDirt.png") {
		t.Fatal("file id unstable")
	}
	if id == reg.FileID("Textures/Other.png") {
		t.Fatal("distinct paths share an id")
	}
	if len(id) != 16 {
		t.Fatalf("id = %q", id)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x40, A: 0xff})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestTextureImporter(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "Textures"), 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "Textures", "checker.png"), 8, 4)

	reg := NewRegistry(dir)
	drv := trace.New(64, 64, 1)
	ti := NewTextureImporter(reg, drv)

	tex, err := ti.LoadTexture("Textures/checker.png", "")
	if err != nil {
		t.Fatal(err)
	}
	w, h := tex.Extent()
	if w != 8 || h != 4 {
		t.Fatalf("extent = %dx%d", w, h)
	}
	if tex.Format() != rhi.FormatRGBA8SRGB {
		t.Fatalf("format = %v", tex.Format())
	}

	again, err := ti.LoadTexture("Textures/checker.png", "")
	if err != nil {
		t.Fatal(err)
	}
	if again != tex {
		t.Fatal("texture not cached")
	}

	if _, err := ti.LoadTexture("Textures/absent.png", ""); err == nil {
		t.Fatal("missing texture loaded")
	}
}
