package tenancy

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Node is the part of a tenant the isolation layer needs.
type Node struct {
	ID             snowflake.ID
	Level          Level
	ParentTenantID *snowflake.ID
}

// Graph resolves tenants and their children.
type Graph interface {
	Node(ctx context.Context, id snowflake.ID) (Node, error)
	ChildIDs(ctx context.Context, parentID snowflake.ID) ([]snowflake.ID, error)
}

// ScopeFilter computes the read scope of a principal.
type ScopeFilter struct {
	graph Graph
}

func NewScopeFilter(graph Graph) *ScopeFilter {
	return &ScopeFilter{graph: graph}
}

// Resolve returns the tenants visible to p. An RW sees itself and its
// children, every other tenant sees only itself. A principal without a
// tenant sees nothing.
func (f *ScopeFilter) Resolve(ctx context.Context, p Principal) (Scope, error) {
	if p.Unrestricted() {
		return AllTenants(), nil
	}
	if !p.HasTenant() {
		return NoTenants(), nil
	}

	own := p.Tenant()
	node, err := f.graph.Node(ctx, own)
	if err != nil {
		if errors.Is(err, ErrUnknownTenant) {
			return NoTenants(), nil
		}
		return NoTenants(), err
	}

	if node.Level != LevelRW {
		return Tenants(own), nil
	}

	children, err := f.graph.ChildIDs(ctx, own)
	if err != nil {
		return NoTenants(), err
	}
	return Tenants(append([]snowflake.ID{own}, children...)...), nil
}
