// Package storage provides the graph store boundary for theomcp.
//
// The storage package defines the Engine interface and three implementations:
//   - GremlinEngine: a remote Gremlin server (JanusGraph in production)
//   - BadgerEngine: embedded persistent storage for single-node deployments
//   - MemoryEngine: in-memory storage for tests and throwaway sessions
//
// Engines speak in raw vertices (PropertyMap): every property maps to a list
// of values, and the element's identity and label are carried under the
// reserved TokenID and TokenLabel keys rather than as regular properties.
// Flattening that shape into JSON-friendly records is the caller's job.
//
// All engines are safe for concurrent use.
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine(storage.UniqueConstraint{Label: "notion", Property: "caption"})
//	defer engine.Close()
//
//	v, err := engine.CreateVertex(ctx, "notion", map[string]any{"caption": "Grace"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	matches, _ := engine.FindVertices(ctx, storage.Filter{
//		Labels: []string{"notion"},
//		Equals: map[string]any{"caption": "Grace"},
//	}, storage.Page{Limit: 2})
package storage

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage closed")
)

// Token is a reserved metadata key in a PropertyMap.
type Token string

// Reserved element metadata keys.
const (
	TokenID    Token = "~id"
	TokenLabel Token = "~label"
)

// PropertyMap is the raw shape of a vertex as returned by an engine.
//
// String keys are property names whose values are lists (the multi-valued
// property model); TokenID and TokenLabel map to the scalar identity and label.
type PropertyMap map[any]any

// ID returns the vertex identity.
func (p PropertyMap) ID() any { return p[TokenID] }

// Label returns the vertex label.
func (p PropertyMap) Label() string {
	s, _ := p[TokenLabel].(string)
	return s
}

// Value returns the first value of a property.
func (p PropertyMap) Value(key string) (any, bool) {
	switch v := p[key].(type) {
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		return v[0], true
	case nil:
		return nil, false
	default:
		return v, true
	}
}

// Direction selects which incident edges Neighbors follows.
type Direction int

const (
	// Outgoing follows edges whose source is the vertex.
	Outgoing Direction = iota
	// Incoming follows edges whose target is the vertex.
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "in"
	}
	return "out"
}

// Filter restricts FindVertices. All non-empty parts must match.
type Filter struct {
	// Labels matches any of the given labels.
	Labels []string
	// Equals matches property equality.
	Equals map[string]any
	// Contains matches case-sensitive substring containment on string properties.
	Contains map[string]string
	// Within matches properties whose value is in the given set.
	Within map[string][]any
}

// Page bounds a result set. Limit <= 0 means unbounded.
type Page struct {
	Offset int
	Limit  int
}

// Neighbor is one incident edge seen from a vertex: the edge label and the
// vertex at the other end.
type Neighbor struct {
	EdgeID    any
	EdgeLabel string
	Vertex    PropertyMap
}

// UniqueConstraint declares that Property must be unique among vertices with
// Label.
type UniqueConstraint struct {
	Label    string
	Property string
}

// Engine is the graph store boundary.
//
// Vertex ids are engine specific (int64 for JanusGraph, strings for the
// embedded engines); callers treat them as opaque and hand back whatever the
// engine returned, or its JSON-decoded form.
type Engine interface {
	// FindVertices returns vertices matching filter in store order.
	FindVertices(ctx context.Context, filter Filter, page Page) ([]PropertyMap, error)
	// GetVertex returns ErrNotFound if the vertex does not exist.
	GetVertex(ctx context.Context, id any) (PropertyMap, error)
	// CreateVertex returns ErrAlreadyExists if a unique constraint is violated.
	CreateVertex(ctx context.Context, label string, props map[string]any) (PropertyMap, error)
	// SetProperties overwrites single-valued properties.
	SetProperties(ctx context.Context, id any, props map[string]any) error
	// RemoveProperties drops properties; missing keys are ignored.
	RemoveProperties(ctx context.Context, id any, keys []string) error
	// DeleteVertex drops a vertex and every incident edge, returning the
	// number of edges removed.
	DeleteVertex(ctx context.Context, id any) (int, error)
	// CreateEdge adds a directed edge and returns its id.
	CreateEdge(ctx context.Context, label string, from, to any) (any, error)
	// CountEdges counts edges with label from -> to.
	CountEdges(ctx context.Context, label string, from, to any) (int, error)
	// DeleteEdges drops every edge with label from -> to and returns the count.
	DeleteEdges(ctx context.Context, label string, from, to any) (int, error)
	// Neighbors lists incident edges in one direction with the far vertex.
	Neighbors(ctx context.Context, id any, dir Direction) ([]Neighbor, error)
	// Close releases the engine's resources.
	Close() error
}
