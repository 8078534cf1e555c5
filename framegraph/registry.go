// Copyright 2023 The Halcyon Authors. All rights reserved.

package framegraph

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Node factories registered by concrete node packages.
// Registration happens during package initialization; the table
// is read-only afterwards.
var (
	regMu     sync.Mutex
	factories = make(map[string]func() Node)
)

// Register adds a node-type factory under a stable name.
// Node implementations call Register exactly once, from an init
// function; client code imports the node library for its side
// effect. Registering a name twice replaces the factory.
func Register(name string, factory func() Node) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := factories[name]; ok {
		log.Warn().Str("node", name).Msg("framegraph: node factory replaced")
	}
	factories[name] = factory
}

// NewNode instantiates a registered node type. Unknown names
// are reported to the caller, never guessed: the importer logs
// and skips the node, leaving subsequent nodes intact.
func NewNode(name string) (Node, bool) {
	regMu.Lock()
	factory, ok := factories[name]
	regMu.Unlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}
