package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"
)

var __ = gremlingo.T__

// GremlinOptions configures a GremlinEngine.
type GremlinOptions struct {
	// URL is the Gremlin server websocket endpoint.
	URL string
	// TraversalSource is the name of the server-side traversal source.
	TraversalSource string
}

// GremlinEngine stores the graph in a remote Gremlin server.
//
// One websocket connection is opened at construction and shared by every
// call; the driver multiplexes concurrent requests over it. Each Engine
// method issues one or two traversals and checks the context before each
// round trip. Uniqueness is left to the server: declare a unique composite
// index on caption (and id) per label in the JanusGraph schema.
//
// Vertices are fetched as a projection {id, label, props} so property names
// can never collide with the id and label metadata.
type GremlinEngine struct {
	conn *gremlingo.DriverRemoteConnection
	g    *gremlingo.GraphTraversalSource
}

// NewGremlinEngine connects to a Gremlin server.
func NewGremlinEngine(opts GremlinOptions) (*GremlinEngine, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("gremlin url is required")
	}
	source := opts.TraversalSource
	if source == "" {
		source = "g"
	}

	conn, err := gremlingo.NewDriverRemoteConnection(opts.URL,
		func(settings *gremlingo.DriverRemoteConnectionSettings) {
			settings.TraversalSource = source
			settings.LogVerbosity = gremlingo.Warning
		})
	if err != nil {
		return nil, fmt.Errorf("connecting to gremlin server %s: %w", opts.URL, err)
	}

	return &GremlinEngine{
		conn: conn,
		g:    gremlingo.Traversal_().WithRemote(conn),
	}, nil
}

// FindVertices returns vertices matching filter in server order.
func (e *GremlinEngine) FindVertices(ctx context.Context, filter Filter, page Page) ([]PropertyMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := e.g.V()
	if len(filter.Labels) > 0 {
		t = t.HasLabel(toArgs(filter.Labels)...)
	}
	for _, k := range sortedKeys(filter.Equals) {
		t = t.Has(k, filter.Equals[k])
	}
	for _, k := range sortedKeys(filter.Contains) {
		t = t.Has(k, gremlingo.TextP.Containing(filter.Contains[k]))
	}
	for _, k := range sortedKeys(filter.Within) {
		t = t.Has(k, gremlingo.P.Within(filter.Within[k]...))
	}
	switch {
	case page.Limit > 0:
		t = t.Range(int64(page.Offset), int64(page.Offset+page.Limit))
	case page.Offset > 0:
		t = t.Skip(int64(page.Offset))
	}

	results, err := projectVertex(t).ToList()
	if err != nil {
		return nil, fmt.Errorf("find vertices: %w", err)
	}
	out := make([]PropertyMap, 0, len(results))
	for _, r := range results {
		pm, err := projectedVertex(r.GetInterface())
		if err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, nil
}

// GetVertex retrieves a vertex by id.
func (e *GremlinEngine) GetVertex(ctx context.Context, id any) (PropertyMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results, err := projectVertex(e.g.V(normalizeGremlinID(id))).ToList()
	if err != nil {
		return nil, fmt.Errorf("get vertex %v: %w", id, err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return projectedVertex(results[0].GetInterface())
}

// CreateVertex adds a vertex with the given properties.
func (e *GremlinEngine) CreateVertex(ctx context.Context, label string, props map[string]any) (PropertyMap, error) {
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

	t := e.g.AddV(label)
	for _, k := range sortedKeys(clean) {
		t = t.Property(k, clean[k])
	}
	result, err := projectVertex(t).Next()
	if err != nil {
		return nil, fmt.Errorf("create vertex: %w", err)
	}
	return projectedVertex(result.GetInterface())
}

// SetProperties overwrites properties with single cardinality.
func (e *GremlinEngine) SetProperties(ctx context.Context, id any, props map[string]any) error {
	clean, err := validateProps(props)
	if err != nil {
		return err
	}
	if err := e.requireVertex(ctx, id); err != nil {
		return err
	}
	if len(clean) == 0 {
		return nil
	}

	t := e.g.V(normalizeGremlinID(id))
	for _, k := range sortedKeys(clean) {
		t = t.Property(gremlingo.Cardinality.Single, k, clean[k])
	}
	if err := <-t.Iterate(); err != nil {
		return fmt.Errorf("set properties on %v: %w", id, err)
	}
	return nil
}

// RemoveProperties drops the given properties.
func (e *GremlinEngine) RemoveProperties(ctx context.Context, id any, keys []string) error {
	if err := e.requireVertex(ctx, id); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := <-e.g.V(normalizeGremlinID(id)).Properties(toArgs(keys)...).Drop().Iterate(); err != nil {
		return fmt.Errorf("remove properties on %v: %w", id, err)
	}
	return nil
}

// DeleteVertex drops the vertex; the server removes incident edges with it.
func (e *GremlinEngine) DeleteVertex(ctx context.Context, id any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	vid := normalizeGremlinID(id)

	results, err := e.g.V(vid).Project("edges").
		By(__.BothE().Dedup().Count()).
		ToList()
	if err != nil {
		return 0, fmt.Errorf("inspect vertex %v: %w", id, err)
	}
	edges, err := incidentEdgeCount(results)
	if err != nil {
		return 0, err
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := <-e.g.V(vid).Drop().Iterate(); err != nil {
		return 0, fmt.Errorf("drop vertex %v: %w", id, err)
	}
	return edges, nil
}

// CreateEdge adds a directed edge. Edge ids are not returned because
// JanusGraph relation identifiers are a custom serialization type.
func (e *GremlinEngine) CreateEdge(ctx context.Context, label string, from, to any) (any, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty edge label", ErrInvalidData)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := e.g.V(normalizeGremlinID(from)).As("a").
		V(normalizeGremlinID(to)).
		AddE(label).From("a").
		Count().
		Next()
	if err != nil {
		return nil, fmt.Errorf("create edge %s: %w", label, err)
	}
	if n, _ := toInt(result.GetInterface()); n == 0 {
		return nil, fmt.Errorf("%w: edge endpoints %v -> %v", ErrNotFound, from, to)
	}
	return nil, nil
}

// CountEdges counts edges with label from -> to.
func (e *GremlinEngine) CountEdges(ctx context.Context, label string, from, to any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	result, err := e.matchingEdges(label, from, to).Count().Next()
	if err != nil {
		return 0, fmt.Errorf("count edges %s: %w", label, err)
	}
	n, err := toInt(result.GetInterface())
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteEdges counts then drops edges with label from -> to.
func (e *GremlinEngine) DeleteEdges(ctx context.Context, label string, from, to any) (int, error) {
	n, err := e.CountEdges(ctx, label, from, to)
	if err != nil || n == 0 {
		return n, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := <-e.matchingEdges(label, from, to).Drop().Iterate(); err != nil {
		return 0, fmt.Errorf("drop edges %s: %w", label, err)
	}
	return n, nil
}

// Neighbors lists incident edges in one direction with the far vertex.
func (e *GremlinEngine) Neighbors(ctx context.Context, id any, dir Direction) ([]Neighbor, error) {
	if err := e.requireVertex(ctx, id); err != nil {
		return nil, err
	}

	vid := normalizeGremlinID(id)
	var t *gremlingo.GraphTraversal
	var far func() *gremlingo.GraphTraversal
	if dir == Incoming {
		t = e.g.V(vid).InE()
		far = func() *gremlingo.GraphTraversal { return __.OutV() }
	} else {
		t = e.g.V(vid).OutE()
		far = func() *gremlingo.GraphTraversal { return __.InV() }
	}

	results, err := t.Project("edge_label", "id", "label", "props").
		By(__.Label()).
		By(far().Id()).
		By(far().Label()).
		By(far().ValueMap()).
		ToList()
	if err != nil {
		return nil, fmt.Errorf("neighbors of %v (%s): %w", id, dir, err)
	}

	out := make([]Neighbor, 0, len(results))
	for _, r := range results {
		m, err := asStringMap(r.GetInterface())
		if err != nil {
			return nil, err
		}
		pm, err := projectedVertex(m)
		if err != nil {
			return nil, err
		}
		edgeLabel, _ := m["edge_label"].(string)
		out = append(out, Neighbor{EdgeLabel: edgeLabel, Vertex: pm})
	}
	return out, nil
}

// Close closes the websocket connection.
func (e *GremlinEngine) Close() error {
	e.conn.Close()
	return nil
}

func (e *GremlinEngine) requireVertex(ctx context.Context, id any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result, err := e.g.V(normalizeGremlinID(id)).Count().Next()
	if err != nil {
		return fmt.Errorf("lookup vertex %v: %w", id, err)
	}
	if n, _ := toInt(result.GetInterface()); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (e *GremlinEngine) matchingEdges(label string, from, to any) *gremlingo.GraphTraversal {
	return e.g.V(normalizeGremlinID(from)).
		OutE(label).
		Where(__.InV().HasId(normalizeGremlinID(to)))
}

func projectVertex(t *gremlingo.GraphTraversal) *gremlingo.GraphTraversal {
	return t.Project("id", "label", "props").
		By(__.Id()).
		By(__.Label()).
		By(__.ValueMap())
}

// projectedVertex converts an {id, label, props} projection into a
// PropertyMap.
func projectedVertex(raw any) (PropertyMap, error) {
	m, err := asStringMap(raw)
	if err != nil {
		return nil, err
	}
	label, _ := m["label"].(string)
	pm := PropertyMap{
		TokenID:    m["id"],
		TokenLabel: label,
	}
	if m["props"] == nil {
		return pm, nil
	}
	props, err := asStringMap(m["props"])
	if err != nil {
		return nil, err
	}
	for k, v := range props {
		if list, ok := v.([]any); ok {
			pm[k] = list
		} else {
			pm[k] = []any{v}
		}
	}
	return pm, nil
}

// incidentEdgeCount reads the projection DeleteVertex takes before dropping.
// No rows means the vertex does not exist.
func incidentEdgeCount(results []*gremlingo.Result) (int, error) {
	if len(results) == 0 {
		return 0, ErrNotFound
	}
	row, err := asStringMap(results[0].GetInterface())
	if err != nil {
		return 0, err
	}
	return toInt(row["edges"])
}

func asStringMap(raw any) (map[string]any, error) {
	switch m := raw.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unexpected gremlin result %T", ErrInvalidData, raw)
}

// normalizeGremlinID maps ids that went through JSON (float64, json.Number,
// numeric strings) back to the int64 ids JanusGraph assigns.
func normalizeGremlinID(id any) any {
	switch v := id.(type) {
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return id
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case int:
		return n, nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: expected a count, got %T", ErrInvalidData, v)
}

func toArgs(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ Engine = (*GremlinEngine)(nil)
