// Copyright 2023 The Halcyon Authors. All rights reserved.

package trace

import (
	"strings"
	"sync"

	"halcyon/engine/rhi"
)

// Shader is a recorded shader module.
type Shader struct {
	stage rhi.Stage
	name  string
}

func (s *Shader) Stage() rhi.Stage { return s.stage }
func (s *Shader) Name() string     { return s.name }

// ShaderLibrary is a synchronous shader loader: every requested
// set is ready immediately. Paths containing "Compute" yield a
// compute stage; everything else yields a vertex+fragment pair.
// Sets are cached by path and define list.
type ShaderLibrary struct {
	mu   sync.Mutex
	sets map[string]*rhi.ShaderSet

	// NotReady lists paths whose sets are returned without any
	// stage, for exercising the skip-this-frame policy.
	NotReady map[string]bool
}

func (l *ShaderLibrary) LoadShader(path string, defines ...string) (*rhi.ShaderSet, error) {
	key := path + "|" + strings.Join(defines, " ")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sets == nil {
		l.sets = make(map[string]*rhi.ShaderSet)
	}
	if set, ok := l.sets[key]; ok {
		return set, nil
	}
	set := &rhi.ShaderSet{}
	if !l.NotReady[path] {
		if strings.Contains(path, "Compute") {
			set.Compute = &Shader{stage: rhi.StageCompute, name: key}
		} else {
			set.Vertex = &Shader{stage: rhi.StageVertex, name: key}
			set.Fragment = &Shader{stage: rhi.StageFragment, name: key}
		}
	}
	l.sets[key] = set
	return set, nil
}
