// Copyright 2023 The Halcyon Authors. All rights reserved.

// Package fgasset defines the textual frame-graph description
// and the importer that compiles it into a live graph: render
// targets and samplers become RHI resources, values become graph
// values, and each node record is instantiated through the node
// registry and parameterised.
package fgasset

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Value is one node parameter: exactly one of Float, Vec4 or
// String is set.
type Value struct {
	Float  *float32    `yaml:"float,omitempty"`
	Vec4   *[4]float32 `yaml:"vec4,omitempty"`
	String *string     `yaml:"string,omitempty"`
}

// NamedValue is one entry of a node's ordered parameter map.
type NamedValue struct {
	Name  string
	Value Value
}

// ValueMap is a name→Value mapping that preserves document
// order, so parameters are applied deterministically.
type ValueMap []NamedValue

// UnmarshalYAML decodes a YAML mapping, keeping key order.
func (m *ValueMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fgasset: values must be a mapping, got %v", node.Kind)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var nv NamedValue
		nv.Name = node.Content[i].Value
		if err := node.Content[i+1].Decode(&nv.Value); err != nil {
			return err
		}
		*m = append(*m, nv)
	}
	return nil
}

// MarshalYAML encodes the mapping in insertion order.
func (m ValueMap) MarshalYAML() (any, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	for _, nv := range m {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: nv.Name}
		val := &yaml.Node{}
		if err := val.Encode(nv.Value); err != nil {
			return nil, err
		}
		out.Content = append(out.Content, key, val)
	}
	return out, nil
}

// NamedRef is one entry of a node's ordered resource-reference
// map: parameter name → resource name.
type NamedRef struct {
	Name     string
	Resource string
}

// RefMap is a name→resource mapping that preserves document
// order.
type RefMap []NamedRef

// UnmarshalYAML decodes a YAML mapping, keeping key order.
func (m *RefMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fgasset: renderTargets must be a mapping, got %v", node.Kind)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		*m = append(*m, NamedRef{Name: node.Content[i].Value, Resource: node.Content[i+1].Value})
	}
	return nil
}

// MarshalYAML encodes the mapping in insertion order.
func (m RefMap) MarshalYAML() (any, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	for _, nr := range m {
		out.Content = append(out.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: nr.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: nr.Resource})
	}
	return out, nil
}

// SamplerDecl declares a named texture loaded through the
// texture importer, by asset id when present, else by path.
type SamplerDecl struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	UID  string `yaml:"uid,omitempty"`
}

// ValueDecl declares a named graph value.
type ValueDecl struct {
	Name  string      `yaml:"name"`
	Float *float32    `yaml:"float,omitempty"`
	Vec4  *[4]float32 `yaml:"vec4,omitempty"`
}

// RenderTargetDecl declares a transient render target. When
// IsSurface is set and MSAA is enabled, the importer creates an
// MSAA surface plus resolve pair under the same name.
type RenderTargetDecl struct {
	Name      string `yaml:"name"`
	Width     uint32 `yaml:"width"`
	Height    uint32 `yaml:"height"`
	Format    string `yaml:"format"`
	Mips      uint32 `yaml:"mips,omitempty"`
	IsSurface bool   `yaml:"isSurface,omitempty"`
}

// NodeEntry is one node record of the frame sequence.
type NodeEntry struct {
	Name          string   `yaml:"name"`
	Tag           string   `yaml:"tag,omitempty"`
	Values        ValueMap `yaml:"values,omitempty"`
	RenderTargets RefMap   `yaml:"renderTargets,omitempty"`
	Sampling      string   `yaml:"sampling,omitempty"`
}

// Asset is the intermediate representation of a frame-graph
// document.
type Asset struct {
	Samplers      []SamplerDecl      `yaml:"samplers,omitempty"`
	Values        []ValueDecl        `yaml:"values,omitempty"`
	RenderTargets []RenderTargetDecl `yaml:"renderTargets,omitempty"`
	Frame         []NodeEntry        `yaml:"frame"`
}

// Parse deserialises a frame-graph document. Names must be
// unique within each category; a malformed document fails as a
// whole so the caller can fall back to a null graph.
func Parse(data []byte) (*Asset, error) {
	var a Asset
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(err, "fgasset: parse")
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Serialize re-encodes the asset. Parsing a document and
// serialising it is idempotent for the fields the parser reads.
func (a *Asset) Serialize() ([]byte, error) {
	out, err := yaml.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "fgasset: serialize")
	}
	return out, nil
}

func (a *Asset) validate() error {
	unique := func(kind string, names []string) error {
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			if seen[n] {
				return errors.Errorf("fgasset: duplicate %s %q", kind, n)
			}
			seen[n] = true
		}
		return nil
	}
	names := make([]string, 0, len(a.Samplers))
	for _, s := range a.Samplers {
		names = append(names, s.Name)
	}
	if err := unique("sampler", names); err != nil {
		return err
	}
	names = names[:0]
	for _, v := range a.Values {
		names = append(names, v.Name)
	}
	if err := unique("value", names); err != nil {
		return err
	}
	names = names[:0]
	for _, rt := range a.RenderTargets {
		names = append(names, rt.Name)
	}
	return unique("render target", names)
}
