// Copyright 2023 The Halcyon Authors. All rights reserved.

package trace

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"halcyon/engine/rhi"
)

// Binding is one recorded descriptor.
type Binding struct {
	name string
	typ  rhi.BindingType
	slot int

	Textures []rhi.Texture
	Buf      *Buffer

	storageIndex int
	bufferOffset int64
}

func (b *Binding) Name() string          { return b.name }
func (b *Binding) Type() rhi.BindingType { return b.typ }
func (b *Binding) Slot() int             { return b.slot }
func (b *Binding) IsBound() bool         { return len(b.Textures) > 0 || b.Buf != nil }
func (b *Binding) StorageIndex() int     { return b.storageIndex }
func (b *Binding) BufferOffset() int64   { return b.bufferOffset }

func (b *Binding) TextureBinding() rhi.Texture {
	if len(b.Textures) == 0 {
		return nil
	}
	return b.Textures[0]
}

// BindingSet is a recorded descriptor set.
type BindingSet struct {
	drv      *Driver
	bindings []*Binding
	byName   map[string]*Binding
	hash     uint64
}

func (s *BindingSet) Destroy() {}

func (s *BindingSet) put(b *Binding) *Binding {
	if s.byName == nil {
		s.byName = make(map[string]*Binding)
	}
	if old, ok := s.byName[b.name]; ok {
		*old = *b
		s.RecalculateCompatibility()
		return old
	}
	s.byName[b.name] = b
	s.bindings = append(s.bindings, b)
	sort.SliceStable(s.bindings, func(i, j int) bool { return s.bindings[i].slot < s.bindings[j].slot })
	s.RecalculateCompatibility()
	return b
}

func (s *BindingSet) AddSSBO(name string, elemSize, numElems int64, slot int, withOffset bool) rhi.ShaderBinding {
	buf, _ := s.drv.NewBuffer(elemSize*numElems, rhi.UsageStorageBuffer|rhi.UsageBufferTransferDst, rhi.MemoryDeviceLocal)
	return s.put(&Binding{name: name, typ: rhi.BindingStorageBuffer, slot: slot, Buf: buf.(*Buffer)})
}

func (s *BindingSet) AddUniformBuffer(name string, size int64, slot int) rhi.ShaderBinding {
	buf, _ := s.drv.NewBuffer(size, rhi.UsageUniformBuffer|rhi.UsageBufferTransferDst, rhi.MemoryDeviceLocal)
	return s.put(&Binding{name: name, typ: rhi.BindingUniformBuffer, slot: slot, Buf: buf.(*Buffer)})
}

func (s *BindingSet) AddSampler(name string, t rhi.Texture, slot int) rhi.ShaderBinding {
	return s.put(&Binding{name: name, typ: rhi.BindingCombinedImageSampler, slot: slot, Textures: []rhi.Texture{t}})
}

func (s *BindingSet) AddSamplerArray(name string, ts []rhi.Texture, slot int) rhi.ShaderBinding {
	return s.put(&Binding{name: name, typ: rhi.BindingCombinedImageSampler, slot: slot, Textures: ts})
}

func (s *BindingSet) AddStorageImage(name string, t rhi.Texture, slot int) rhi.ShaderBinding {
	return s.put(&Binding{name: name, typ: rhi.BindingStorageImage, slot: slot, Textures: []rhi.Texture{t}})
}

func (s *BindingSet) AddStorageImageArray(name string, ts []rhi.Texture, slot int) rhi.ShaderBinding {
	return s.put(&Binding{name: name, typ: rhi.BindingStorageImage, slot: slot, Textures: ts})
}

func (s *BindingSet) AddBuffer(name string, buf rhi.Buffer, slot int) rhi.ShaderBinding {
	b, _ := buf.(*Buffer)
	return s.put(&Binding{name: name, typ: rhi.BindingStorageBuffer, slot: slot, Buf: b})
}

func (s *BindingSet) AddBinding(b rhi.ShaderBinding, name string, slot int) {
	src, ok := b.(*Binding)
	if !ok {
		return
	}
	shared := *src
	shared.name = name
	shared.slot = slot
	s.put(&shared)
}

func (s *BindingSet) Binding(name string) rhi.ShaderBinding {
	b, ok := s.byName[name]
	if !ok {
		return nil
	}
	return b
}

func (s *BindingSet) Bindings() []rhi.ShaderBinding {
	out := make([]rhi.ShaderBinding, len(s.bindings))
	for i, b := range s.bindings {
		out[i] = b
	}
	return out
}

func (s *BindingSet) CompatibilityHash() uint64 { return s.hash }

func (s *BindingSet) RecalculateCompatibility() {
	h := xxhash.New()
	var scratch [8]byte
	for _, b := range s.bindings {
		h.WriteString(b.name)
		binary.LittleEndian.PutUint64(scratch[:], uint64(b.slot)<<8|uint64(b.typ))
		h.Write(scratch[:])
		for _, t := range b.Textures {
			binary.LittleEndian.PutUint64(scratch[:], textureID(t))
			h.Write(scratch[:])
		}
		if b.Buf != nil {
			binary.LittleEndian.PutUint64(scratch[:], b.Buf.ID)
			h.Write(scratch[:])
		}
	}
	s.hash = h.Sum64()
}

func textureID(t rhi.Texture) uint64 {
	switch img := t.(type) {
	case *Image:
		return img.ID
	case *Target:
		return img.ID
	case *Cube:
		return img.ID
	}
	return 0
}
