// Copyright 2023 The Halcyon Authors. All rights reserved.

package trace

import (
	"fmt"

	"halcyon/engine/rhi"
)

// ValidateLayoutWalk checks that the layout transitions recorded
// on a command list form a valid walk per image: every
// transition's old layout must match the layout the image was
// left in by the previous transition on the same list.
func ValidateLayoutWalk(c *CommandList) error {
	current := make(map[rhi.Texture]rhi.ImageLayout)
	for i, cmd := range c.Commands {
		if cmd.Op != OpImageBarrier {
			continue
		}
		if known, ok := current[cmd.Img]; ok && known != cmd.OldLayout {
			return fmt.Errorf("trace: command %d transitions image from %v but it is in %v", i, cmd.OldLayout, known)
		}
		if cmd.NewLayout == rhi.LayoutUndefined {
			return fmt.Errorf("trace: command %d transitions image into undefined layout", i)
		}
		current[cmd.Img] = cmd.NewLayout
	}
	return nil
}

// ValidatePassNesting checks that render passes and debug
// regions recorded on a command list are well matched.
func ValidatePassNesting(c *CommandList) error {
	pass, region := 0, 0
	for i, cmd := range c.Commands {
		switch cmd.Op {
		case OpBeginRenderPass:
			pass++
		case OpEndRenderPass:
			pass--
		case OpBeginDebugRegion:
			region++
		case OpEndDebugRegion:
			region--
		}
		if pass < 0 || region < 0 {
			return fmt.Errorf("trace: command %d closes an unopened scope", i)
		}
	}
	if pass != 0 {
		return fmt.Errorf("trace: %d unclosed render passes", pass)
	}
	if region != 0 {
		return fmt.Errorf("trace: %d unclosed debug regions", region)
	}
	return nil
}

// ChainEdges decomposes the driver's submissions into
// (wait, signal) semaphore pairs for chain assertions.
func (d *Driver) ChainEdges() [][2]*Semaphore {
	edges := make([][2]*Semaphore, 0, len(d.Submissions))
	for _, s := range d.Submissions {
		var wait, signal *Semaphore
		wait, _ = s.Wait.(*Semaphore)
		signal, _ = s.Signal.(*Semaphore)
		edges = append(edges, [2]*Semaphore{wait, signal})
	}
	return edges
}
