// Copyright 2023 The Halcyon Authors. All rights reserved.

package content

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"halcyon/engine/rhi"
)

// maxTextureDim is the largest dimension a decoded image is
// allowed to keep; larger images are downsampled.
const maxTextureDim = 4096

// TextureImporter decodes image assets into RHI textures and
// caches them by file id.
type TextureImporter struct {
	reg *Registry
	drv rhi.Driver

	mu    sync.Mutex
	cache map[string]rhi.Texture
}

// NewTextureImporter creates an importer over the given
// registry and driver.
func NewTextureImporter(reg *Registry, drv rhi.Driver) *TextureImporter {
	return &TextureImporter{reg: reg, drv: drv, cache: make(map[string]rhi.Texture)}
}

// LoadTexture loads a texture, by asset id when uid is set, else
// by path. Loaded textures are cached.
func (t *TextureImporter) LoadTexture(path, uid string) (rhi.Texture, error) {
	key := uid
	if key == "" {
		key = t.reg.FileID(path)
	}

	t.mu.Lock()
	if tex, ok := t.cache[key]; ok {
		t.mu.Unlock()
		return tex, nil
	}
	t.mu.Unlock()

	data, err := t.reg.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "content: decode %s", path)
	}

	rgba := toRGBA(img)
	bounds := rgba.Bounds()
	tex, err := t.drv.NewTexture(rgba.Pix, int64(len(rgba.Pix)),
		[3]int{bounds.Dx(), bounds.Dy(), 1},
		rhi.Texture2D, rhi.FormatRGBA8SRGB,
		rhi.FilterLinear, rhi.ClampRepeat,
		rhi.UsageSampled|rhi.UsageTransferDst)
	if err != nil {
		return nil, err
	}
	t.drv.SetDebugName(tex, path)

	t.mu.Lock()
	t.cache[key] = tex
	t.mu.Unlock()
	return tex, nil
}

// toRGBA converts any decoded image to tightly packed RGBA,
// downsampling when it exceeds maxTextureDim.
func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxTextureDim || h > maxTextureDim {
		scale := float64(maxTextureDim) / float64(max(w, h))
		w, h = int(float64(w)*scale), int(float64(h)*scale)
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
		return dst
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*w {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}
