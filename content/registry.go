// Copyright 2023 The Halcyon Authors. All rights reserved.

// Package content is the asset-loader capability the frame
// graph consumes: content-root file access with stable file ids,
// plus a texture importer that decodes image files into RHI
// textures.
package content

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// Registry resolves asset paths against a content root.
type Registry struct {
	root string
}

// NewRegistry creates a registry rooted at dir.
func NewRegistry(dir string) *Registry {
	return &Registry{root: dir}
}

// Root returns the content root directory.
func (r *Registry) Root() string { return r.root }

// FileID returns the stable id of an asset path.
func (r *Registry) FileID(rel string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(filepath.ToSlash(rel)))
}

// ReadFile reads an asset file relative to the content root.
func (r *Registry) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, errors.Wrapf(err, "content: read %s", rel)
	}
	return data, nil
}

// ReadText reads an asset file as text.
func (r *Registry) ReadText(rel string) (string, error) {
	data, err := r.ReadFile(rel)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
