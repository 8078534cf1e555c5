// Copyright 2023 The Halcyon Authors. All rights reserved.

package fgasset

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog/log"

	"halcyon/engine/framegraph"
	"halcyon/engine/rhi"
)

// Importer builds live frame graphs from documents and caches
// them: a graph is built once per path and the cached instance
// is returned on subsequent loads. Instantiate bypasses the
// cache.
type Importer struct {
	drv      rhi.Driver
	shaders  framegraph.ShaderLoader
	textures framegraph.TextureProvider
	content  framegraph.ContentSource

	mu     sync.Mutex
	loaded map[string]*framegraph.FrameGraph
}

// NewImporter creates an importer. textures may be nil when the
// documents declare no samplers.
func NewImporter(drv rhi.Driver, shaders framegraph.ShaderLoader, textures framegraph.TextureProvider, content framegraph.ContentSource) *Importer {
	return &Importer{
		drv:      drv,
		shaders:  shaders,
		textures: textures,
		content:  content,
		loaded:   make(map[string]*framegraph.FrameGraph),
	}
}

// LoadFrameGraph reads, parses and builds the document at path,
// returning the cached instance when it was built before.
func (im *Importer) LoadFrameGraph(path string) (*framegraph.FrameGraph, error) {
	im.mu.Lock()
	if fg, ok := im.loaded[path]; ok {
		im.mu.Unlock()
		return fg, nil
	}
	im.mu.Unlock()

	fg, err := im.Instantiate(path)
	if err != nil {
		return nil, err
	}

	im.mu.Lock()
	im.loaded[path] = fg
	im.mu.Unlock()
	return fg, nil
}

// Instantiate builds a fresh graph from the document at path,
// bypassing the cache.
func (im *Importer) Instantiate(path string) (*framegraph.FrameGraph, error) {
	data, err := im.content.ReadFile(path)
	if err != nil {
		return nil, err
	}
	asset, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return im.Build(asset), nil
}

// Build compiles an asset into a live graph. Build itself never
// fails: an unknown node type or an unresolvable resource is
// logged and skipped, leaving the rest of the graph intact.
func (im *Importer) Build(asset *Asset) *framegraph.FrameGraph {
	fg := framegraph.New(im.drv, im.shaders)
	fg.Content = im.content
	fg.Textures = im.textures

	for _, decl := range asset.RenderTargets {
		mips := int(decl.Mips)
		if mips < 1 {
			mips = 1
		}
		format := rhi.ParseFormat(decl.Format)

		if decl.IsSurface && im.drv.MSAASamples() > 1 {
			surface, err := im.drv.NewSurface(int(decl.Width), int(decl.Height), format, rhi.FilterLinear, rhi.ClampToEdge)
			if err != nil {
				log.Error().Err(err).Str("renderTarget", decl.Name).Msg("fgasset: surface creation failed")
				continue
			}
			fg.SetSurface(decl.Name, surface)
			fg.SetRenderTarget(decl.Name, surface.Resolved)
			continue
		}

		usage := rhi.UsageSampled | rhi.UsageTransferSrc | rhi.UsageTransferDst
		if format.IsDepth() {
			usage |= rhi.UsageDepthStencilAttachment
		} else {
			usage |= rhi.UsageColorAttachment | rhi.UsageStorage
		}
		rt, err := im.drv.NewRenderTarget(int(decl.Width), int(decl.Height), mips, format, rhi.FilterLinear, rhi.ClampToEdge, usage)
		if err != nil {
			log.Error().Err(err).Str("renderTarget", decl.Name).Msg("fgasset: render target creation failed")
			continue
		}
		im.drv.SetDebugName(rt, decl.Name)
		fg.SetRenderTarget(decl.Name, rt)
	}

	for _, decl := range asset.Values {
		switch {
		case decl.Vec4 != nil:
			fg.SetValue(decl.Name, mgl32.Vec4(*decl.Vec4))
		case decl.Float != nil:
			fg.SetFloat(decl.Name, *decl.Float)
		}
	}

	for _, decl := range asset.Samplers {
		if im.textures == nil {
			log.Warn().Str("sampler", decl.Name).Msg("fgasset: no texture provider, sampler skipped")
			continue
		}
		tex, err := im.textures.LoadTexture(decl.Path, decl.UID)
		if err != nil {
			log.Error().Err(err).Str("sampler", decl.Name).Msg("fgasset: texture load failed")
			continue
		}
		fg.SetSampler(decl.Name, tex)
	}

	for _, entry := range asset.Frame {
		node, ok := framegraph.NewNode(entry.Name)
		if !ok {
			log.Warn().Str("node", entry.Name).Msg("fgasset: node type is not implemented")
			continue
		}

		if entry.Tag != "" {
			node.SetTag(entry.Tag)
		} else {
			// Untagged nodes are addressable by their type name,
			// which is how siblings locate e.g. the sky node.
			node.SetTag(entry.Name)
		}
		if entry.Sampling != "" {
			node.SetString("sampling", entry.Sampling)
		}

		for _, param := range entry.Values {
			switch {
			case param.Value.Vec4 != nil:
				node.SetVec4(param.Name, mgl32.Vec4(*param.Value.Vec4))
			case param.Value.Float != nil:
				x := *param.Value.Float
				node.SetVec4(param.Name, mgl32.Vec4{x, x, x, x})
			case param.Value.String != nil:
				node.SetString(param.Name, *param.Value.String)
			}
		}

		for _, ref := range entry.RenderTargets {
			if surface := fg.Surface(ref.Resource); surface != nil {
				node.SetResource(ref.Name, surface)
			} else if rt := fg.RenderTarget(ref.Resource); rt != nil {
				node.SetResource(ref.Name, rt)
			} else if sampler := fg.Sampler(ref.Resource); sampler != nil {
				node.SetResource(ref.Name, sampler)
			} else {
				node.SetUnresolved(ref.Name, ref.Resource)
				log.Warn().Str("node", entry.Name).Str("param", ref.Name).Str("resource", ref.Resource).
					Msg("fgasset: resource reference did not resolve")
			}
		}

		fg.AddNode(node)
	}

	return fg
}
