package goparser

import (
	"context"

	"github.com/grindlemire/graft"

	"go.trai.ch/parablock/internal/core/ports"
)

// NodeID is the unique identifier for the declaration parser Graft node.
const NodeID graft.ID = "adapter.declaration_parser"

func init() {
	graft.Register(graft.Node[ports.DeclarationParser]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.DeclarationParser, error) {
			return New(), nil
		},
	})
}
