package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryEngine is a thread-safe in-memory graph store.
//
// Use Cases:
//   - Unit testing (no network, no disk, fast cleanup)
//   - Throwaway sessions (THEO_STORE=memory)
//
// Features:
//   - Indexed: label index plus outgoing/incoming adjacency per vertex
//   - Unique constraints enforced atomically with the insert
//   - Deep copies: returned maps are never shared with the store
//   - Stable order: results come back in insertion order
type MemoryEngine struct {
	mu       sync.RWMutex
	vertices map[string]*vertexRecord
	edges    map[string]*edgeRecord
	seq      uint64

	// Indexes for efficient lookups
	byLabel  map[string]map[string]struct{}
	outgoing map[string]map[string]struct{}
	incoming map[string]map[string]struct{}

	unique *ConstraintSet
	closed bool
}

// NewMemoryEngine creates an empty in-memory engine enforcing the given
// unique constraints.
//
// Example:
//
//	func TestMyGraph(t *testing.T) {
//		engine := storage.NewMemoryEngine()
//		defer engine.Close()
//		// ...
//	}
func NewMemoryEngine(constraints ...UniqueConstraint) *MemoryEngine {
	return &MemoryEngine{
		vertices: make(map[string]*vertexRecord),
		edges:    make(map[string]*edgeRecord),
		byLabel:  make(map[string]map[string]struct{}),
		outgoing: make(map[string]map[string]struct{}),
		incoming: make(map[string]map[string]struct{}),
		unique:   NewConstraintSet(constraints...),
	}
}

// FindVertices returns vertices matching filter in insertion order.
func (m *MemoryEngine) FindVertices(ctx context.Context, filter Filter, page Page) ([]PropertyMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}

	var candidates []*vertexRecord
	if len(filter.Labels) > 0 {
		for _, label := range filter.distinctLabels() {
			for id := range m.byLabel[label] {
				candidates = append(candidates, m.vertices[id])
			}
		}
	} else {
		for _, v := range m.vertices {
			candidates = append(candidates, v)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Seq < candidates[j].Seq })

	var out []PropertyMap
	skipped := 0
	for _, v := range candidates {
		if !v.matches(filter) {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, v.propertyMap())
		if page.Limit > 0 && len(out) >= page.Limit {
			break
		}
	}
	return out, nil
}

// GetVertex retrieves a vertex by id.
func (m *MemoryEngine) GetVertex(ctx context.Context, id any) (PropertyMap, error) {
	vid, err := idString(id)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	v, ok := m.vertices[vid]
	if !ok {
		return nil, ErrNotFound
	}
	return v.propertyMap(), nil
}

// CreateVertex inserts a vertex with a fresh id.
func (m *MemoryEngine) CreateVertex(ctx context.Context, label string, props map[string]any) (PropertyMap, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrInvalidData)
	}
	clean, err := validateProps(props)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	if err := m.unique.Check(label, clean, ""); err != nil {
		return nil, err
	}

	m.seq++
	v := &vertexRecord{ID: uuid.NewString(), Label: label, Seq: m.seq, Props: clean}
	m.vertices[v.ID] = v
	if m.byLabel[label] == nil {
		m.byLabel[label] = make(map[string]struct{})
	}
	m.byLabel[label][v.ID] = struct{}{}
	m.unique.Register(label, clean, v.ID)

	return v.propertyMap(), nil
}

// SetProperties overwrites properties on an existing vertex.
func (m *MemoryEngine) SetProperties(ctx context.Context, id any, props map[string]any) error {
	vid, err := idString(id)
	if err != nil {
		return err
	}
	clean, err := validateProps(props)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	v, ok := m.vertices[vid]
	if !ok {
		return ErrNotFound
	}
	if err := m.unique.Check(v.Label, clean, vid); err != nil {
		return err
	}

	old := make(map[string]any)
	for k := range clean {
		if prev, had := v.Props[k]; had {
			old[k] = prev
		}
	}
	m.unique.Unregister(v.Label, old, vid)
	for k, val := range clean {
		v.Props[k] = val
	}
	m.unique.Register(v.Label, clean, vid)
	return nil
}

// RemoveProperties drops properties from an existing vertex.
func (m *MemoryEngine) RemoveProperties(ctx context.Context, id any, keys []string) error {
	vid, err := idString(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStorageClosed
	}
	v, ok := m.vertices[vid]
	if !ok {
		return ErrNotFound
	}
	removed := make(map[string]any)
	for _, k := range keys {
		if prev, had := v.Props[k]; had {
			removed[k] = prev
			delete(v.Props, k)
		}
	}
	m.unique.Unregister(v.Label, removed, vid)
	return nil
}

// DeleteVertex removes a vertex and all incident edges.
func (m *MemoryEngine) DeleteVertex(ctx context.Context, id any) (int, error) {
	vid, err := idString(id)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStorageClosed
	}
	v, ok := m.vertices[vid]
	if !ok {
		return 0, ErrNotFound
	}

	removed := 0
	for _, index := range []map[string]map[string]struct{}{m.outgoing, m.incoming} {
		for edgeID := range index[vid] {
			if _, ok := m.edges[edgeID]; ok {
				m.deleteEdgeUnlocked(edgeID)
				removed++
			}
		}
	}
	delete(m.outgoing, vid)
	delete(m.incoming, vid)

	delete(m.byLabel[v.Label], vid)
	m.unique.Unregister(v.Label, v.Props, vid)
	delete(m.vertices, vid)
	return removed, nil
}

// CreateEdge adds a directed edge between two existing vertices.
func (m *MemoryEngine) CreateEdge(ctx context.Context, label string, from, to any) (any, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty edge label", ErrInvalidData)
	}
	src, err := idString(from)
	if err != nil {
		return nil, err
	}
	dst, err := idString(to)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	if _, ok := m.vertices[src]; !ok {
		return nil, fmt.Errorf("%w: source vertex %s", ErrNotFound, src)
	}
	if _, ok := m.vertices[dst]; !ok {
		return nil, fmt.Errorf("%w: target vertex %s", ErrNotFound, dst)
	}

	m.seq++
	e := &edgeRecord{ID: uuid.NewString(), Label: label, From: src, To: dst, Seq: m.seq}
	m.edges[e.ID] = e
	if m.outgoing[src] == nil {
		m.outgoing[src] = make(map[string]struct{})
	}
	m.outgoing[src][e.ID] = struct{}{}
	if m.incoming[dst] == nil {
		m.incoming[dst] = make(map[string]struct{})
	}
	m.incoming[dst][e.ID] = struct{}{}
	return e.ID, nil
}

// CountEdges counts edges with label from -> to.
func (m *MemoryEngine) CountEdges(ctx context.Context, label string, from, to any) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, err := m.matchingEdgesUnlocked(label, from, to)
	return len(ids), err
}

// DeleteEdges removes edges with label from -> to.
func (m *MemoryEngine) DeleteEdges(ctx context.Context, label string, from, to any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, err := m.matchingEdgesUnlocked(label, from, to)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		m.deleteEdgeUnlocked(id)
	}
	return len(ids), nil
}

// Neighbors lists incident edges in one direction, in creation order.
func (m *MemoryEngine) Neighbors(ctx context.Context, id any, dir Direction) ([]Neighbor, error) {
	vid, err := idString(id)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStorageClosed
	}
	if _, ok := m.vertices[vid]; !ok {
		return nil, ErrNotFound
	}

	index := m.outgoing
	if dir == Incoming {
		index = m.incoming
	}
	edges := make([]*edgeRecord, 0, len(index[vid]))
	for edgeID := range index[vid] {
		edges = append(edges, m.edges[edgeID])
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Seq < edges[j].Seq })

	out := make([]Neighbor, 0, len(edges))
	for _, e := range edges {
		far := e.To
		if dir == Incoming {
			far = e.From
		}
		out = append(out, Neighbor{
			EdgeID:    e.ID,
			EdgeLabel: e.Label,
			Vertex:    m.vertices[far].propertyMap(),
		})
	}
	return out, nil
}

// Close marks the engine closed. Further calls fail with ErrStorageClosed.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// VertexCount returns the number of stored vertices.
func (m *MemoryEngine) VertexCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vertices)
}

// EdgeCount returns the number of stored edges.
func (m *MemoryEngine) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges)
}

func (m *MemoryEngine) matchingEdgesUnlocked(label string, from, to any) ([]string, error) {
	if m.closed {
		return nil, ErrStorageClosed
	}
	src, err := idString(from)
	if err != nil {
		return nil, err
	}
	dst, err := idString(to)
	if err != nil {
		return nil, err
	}

	var ids []string
	for edgeID := range m.outgoing[src] {
		e := m.edges[edgeID]
		if e.Label == label && e.To == dst {
			ids = append(ids, edgeID)
		}
	}
	return ids, nil
}

func (m *MemoryEngine) deleteEdgeUnlocked(id string) {
	e, ok := m.edges[id]
	if !ok {
		return
	}
	if out := m.outgoing[e.From]; out != nil {
		delete(out, id)
	}
	if in := m.incoming[e.To]; in != nil {
		delete(in, id)
	}
	delete(m.edges, id)
}

var _ Engine = (*MemoryEngine)(nil)
