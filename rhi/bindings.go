// Copyright 2023 The Halcyon Authors. All rights reserved.

package rhi

// BindingType is the type of a shader binding.
type BindingType int

// Binding types.
const (
	BindingUniformBuffer BindingType = iota
	BindingStorageBuffer
	BindingCombinedImageSampler
	BindingStorageImage
)

// ShaderBinding is a single named descriptor within a binding
// set. Buffer-backed bindings expose the storage index of their
// first element so per-instance data can be addressed with
// gl_InstanceIndex.
type ShaderBinding interface {
	Name() string
	Type() BindingType
	Slot() int

	// IsBound reports whether a resource has been attached.
	IsBound() bool

	// TextureBinding returns the bound texture for image
	// bindings, nil otherwise.
	TextureBinding() Texture

	// StorageIndex is the element index of this binding's slice
	// within the shared storage buffer it was suballocated from.
	StorageIndex() int

	// BufferOffset is the byte offset of this binding's data
	// within its backing buffer.
	BufferOffset() int64
}

// ShaderBindingSet is a named collection of shader bindings
// (a descriptor set). Sets are created through Driver and
// mutated before use; the compatibility hash decides whether
// two sets can share a pipeline layout.
type ShaderBindingSet interface {
	Destroyer

	// AddSSBO allocates a storage-buffer binding of
	// elemSize×numElems bytes at the given slot. withOffset
	// binds the SSBO with a dynamic base offset.
	AddSSBO(name string, elemSize, numElems int64, slot int, withOffset bool) ShaderBinding

	// AddUniformBuffer allocates a uniform-buffer binding of the
	// given byte size.
	AddUniformBuffer(name string, size int64, slot int) ShaderBinding

	AddSampler(name string, t Texture, slot int) ShaderBinding

	// AddSamplerArray binds an array of textures under one name.
	AddSamplerArray(name string, ts []Texture, slot int) ShaderBinding

	AddStorageImage(name string, t Texture, slot int) ShaderBinding

	// AddStorageImageArray binds an array of storage images
	// under one name.
	AddStorageImageArray(name string, ts []Texture, slot int) ShaderBinding

	// AddBuffer binds an existing buffer as a storage binding.
	AddBuffer(name string, buf Buffer, slot int) ShaderBinding

	// AddBinding shares an existing binding (typically another
	// set's SSBO) under the given name and slot.
	AddBinding(b ShaderBinding, name string, slot int)

	// Binding returns the named binding, or nil if absent.
	Binding(name string) ShaderBinding

	// Bindings returns all bindings in slot order.
	Bindings() []ShaderBinding

	// CompatibilityHash is a stable hash of the set's layout and
	// bound resource identities.
	CompatibilityHash() uint64

	// RecalculateCompatibility must be called after bindings are
	// replaced in place.
	RecalculateCompatibility()
}
