package graph

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/storage"
)

// EdgeSummary describes one edge created or matched by an operation.
type EdgeSummary struct {
	EdgeLabel      string  `json:"edge_label"`
	EdgeInternalID any     `json:"edge_internal_id,omitempty"`
	Out            Summary `json:"out"`
	In             Summary `json:"in"`
}

// ConnectResult is returned by the create-and-connect operations.
type ConnectResult struct {
	Created      Record        `json:"created"`
	EdgesCreated []EdgeSummary `json:"edges_created"`
}

// DeleteEdgesResult reports the edges removed between two vertices.
type DeleteEdgesResult struct {
	DeletedEdges int     `json:"deleted_edges"`
	EdgeLabel    string  `json:"edge_label"`
	Out          Summary `json:"out"`
	In           Summary `json:"in"`
}

// DeleteResult reports a vertex deletion. A missing vertex is reported with
// Deleted false and Reason "not_found" rather than as an error.
type DeleteResult struct {
	Deleted      bool           `json:"deleted"`
	Reason       string         `json:"reason,omitempty"`
	Label        string         `json:"label,omitempty"`
	ID           any            `json:"id,omitempty"`
	InternalID   any            `json:"internal_id,omitempty"`
	Caption      any            `json:"caption,omitempty"`
	RemovedEdges int            `json:"removed_edges"`
	Reference    map[string]any `json:"reference,omitempty"`
}

// ReasonNotFound is the DeleteResult reason for an absent vertex.
const ReasonNotFound = "not_found"

// ConnectByCaptions is the input of CreateVertexAndConnect.
type ConnectByCaptions struct {
	Label      string
	Properties map[string]any
	// EdgesOut maps an edge label to the captions of targets of edges from
	// the new vertex.
	EdgesOut map[string][]string
	// EdgesIn maps an edge label to the captions of sources of edges into the
	// new vertex.
	EdgesIn map[string][]string
	// TargetLabel optionally scopes caption lookups to one label.
	TargetLabel string
}

// Link connects a new vertex to existing vertices with one edge label.
type Link struct {
	EdgeLabel string
	Targets   []Reference
}

// CreateVertex validates props, checks every unique property of the label
// and inserts the vertex.
func (s *Service) CreateVertex(ctx context.Context, label string, props map[string]any) (Record, error) {
	canon, err := s.schema.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}
	clean, err := s.schema.ValidateProperties(canon, props, true)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, canon, clean, nil); err != nil {
		return nil, err
	}

	raw, err := s.engine.CreateVertex(ctx, canon, clean)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, apperror.New(apperror.KindAlreadyExists, "vertex already exists: label=%s caption=%v",
				canon, clean[KeyCaption]).
				WithDetails(map[string]any{KeyLabel: canon, KeyCaption: clean[KeyCaption]}).
				WithInternal(err)
		}
		return nil, s.storeError("create_vertex", err, "creating %s vertex", canon)
	}

	created := Flatten(raw)
	s.metrics.AddMutations("vertex_created", 1)
	s.logger.Debug("vertex created",
		zap.String("label", canon),
		zap.Any("internal_id", created.InternalID()),
		zap.Any("caption", created[KeyCaption]))
	return created, nil
}

// CreateVertexAndConnect creates a vertex and connects it to existing vertices
// named by caption.
//
// Properties and edge labels are validated before anything is written. Every
// caption is then resolved before the first edge is created, so an unknown or
// ambiguous caption leaves the graph with the new vertex and no edges. The
// vertex itself is not rolled back; the returned error carries its summary
// under "created" so the caller can remove it.
func (s *Service) CreateVertexAndConnect(ctx context.Context, req ConnectByCaptions) (*ConnectResult, error) {
	canon, err := s.schema.NormalizeLabel(req.Label)
	if err != nil {
		return nil, err
	}
	if _, err := s.schema.ValidateProperties(canon, req.Properties, true); err != nil {
		return nil, err
	}
	out, err := s.normalizeEdgeGroups(req.EdgesOut)
	if err != nil {
		return nil, err
	}
	in, err := s.normalizeEdgeGroups(req.EdgesIn)
	if err != nil {
		return nil, err
	}
	targetLabel := ""
	if req.TargetLabel != "" {
		if targetLabel, err = s.schema.NormalizeLabel(req.TargetLabel); err != nil {
			return nil, err
		}
	}

	created, err := s.CreateVertex(ctx, canon, req.Properties)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]Record)
	for _, groups := range [][]edgeGroup{out, in} {
		for _, g := range groups {
			for _, caption := range g.captions {
				if _, done := resolved[caption]; done {
					continue
				}
				rec, err := s.ResolveUniqueVertex(ctx, ByCaption(caption, targetLabel))
				if err != nil {
					return nil, withCreated(err, created)
				}
				resolved[caption] = rec
			}
		}
	}

	result := &ConnectResult{Created: created, EdgesCreated: []EdgeSummary{}}
	for _, g := range out {
		for _, caption := range g.captions {
			edge, err := s.createEdge(ctx, g.label, created, resolved[caption])
			if err != nil {
				return nil, withCreated(err, created)
			}
			result.EdgesCreated = append(result.EdgesCreated, edge)
		}
	}
	for _, g := range in {
		for _, caption := range g.captions {
			edge, err := s.createEdge(ctx, g.label, resolved[caption], created)
			if err != nil {
				return nil, withCreated(err, created)
			}
			result.EdgesCreated = append(result.EdgesCreated, edge)
		}
	}
	return result, nil
}

// CreateNotion creates a notion from a caption and a caller relationships map
// such as {"isSupportedBy": ["To"], "supports": ["From"]}. Direct names become
// edges from the notion; inverse names become edges into it.
func (s *Service) CreateNotion(ctx context.Context, caption string, relationships map[string][]string, props map[string]any) (*ConnectResult, error) {
	if caption == "" {
		return nil, apperror.New(apperror.KindMissingProperty, "caption is required").
			WithDetails(map[string]any{KeyLabel: LabelNotion, "missing": []string{KeyCaption}})
	}
	all := make(map[string]any, len(props)+1)
	for k, v := range props {
		all[k] = v
	}
	all[KeyCaption] = caption

	out, in, err := PartitionCallerRelationships(s.schema, relationships)
	if err != nil {
		return nil, err
	}
	return s.CreateVertexAndConnect(ctx, ConnectByCaptions{
		Label:      LabelNotion,
		Properties: all,
		EdgesOut:   out,
		EdgesIn:    in,
	})
}

// Connect creates a vertex and adds edges from it to existing vertices named
// by reference. Like CreateVertexAndConnect, every reference is resolved
// before the first edge is created.
func (s *Service) Connect(ctx context.Context, label string, props map[string]any, links []Link) (*ConnectResult, error) {
	canon, err := s.schema.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}
	if _, err := s.schema.ValidateProperties(canon, props, true); err != nil {
		return nil, err
	}
	edgeLabels := make([]string, len(links))
	for i, l := range links {
		if len(l.Targets) == 0 {
			continue
		}
		if edgeLabels[i], err = s.schema.NormalizeEdgeLabel(l.EdgeLabel); err != nil {
			return nil, err
		}
		for _, ref := range l.Targets {
			if err := ref.Validate(); err != nil {
				return nil, err
			}
		}
	}

	created, err := s.CreateVertex(ctx, canon, props)
	if err != nil {
		return nil, err
	}

	targets := make([][]Record, len(links))
	for i, l := range links {
		for _, ref := range l.Targets {
			rec, err := s.ResolveUniqueVertex(ctx, ref)
			if err != nil {
				return nil, withCreated(err, created)
			}
			targets[i] = append(targets[i], rec)
		}
	}

	result := &ConnectResult{Created: created, EdgesCreated: []EdgeSummary{}}
	for i := range links {
		for _, target := range targets[i] {
			edge, err := s.createEdge(ctx, edgeLabels[i], created, target)
			if err != nil {
				return nil, withCreated(err, created)
			}
			result.EdgesCreated = append(result.EdgesCreated, edge)
		}
	}
	return result, nil
}

// CreateEdge adds an edge from source to target. Both references must
// resolve to exactly one vertex.
func (s *Service) CreateEdge(ctx context.Context, edgeLabel string, source, target Reference) (EdgeSummary, error) {
	label, err := s.schema.NormalizeEdgeLabel(edgeLabel)
	if err != nil {
		return EdgeSummary{}, err
	}
	from, err := s.ResolveUniqueVertex(ctx, source)
	if err != nil {
		return EdgeSummary{}, err
	}
	to, err := s.ResolveUniqueVertex(ctx, target)
	if err != nil {
		return EdgeSummary{}, err
	}
	return s.createEdge(ctx, label, from, to)
}

// DeleteEdges removes every edge with the label from source to target and
// reports how many there were. Zero is a valid outcome.
func (s *Service) DeleteEdges(ctx context.Context, edgeLabel string, source, target Reference) (*DeleteEdgesResult, error) {
	label, err := s.schema.NormalizeEdgeLabel(edgeLabel)
	if err != nil {
		return nil, err
	}
	from, err := s.ResolveUniqueVertex(ctx, source)
	if err != nil {
		return nil, err
	}
	to, err := s.ResolveUniqueVertex(ctx, target)
	if err != nil {
		return nil, err
	}

	n, err := s.engine.CountEdges(ctx, label, from.InternalID(), to.InternalID())
	if err != nil {
		return nil, s.storeError("count_edges", err, "counting %s edges", label)
	}
	if n > 0 {
		if n, err = s.engine.DeleteEdges(ctx, label, from.InternalID(), to.InternalID()); err != nil {
			return nil, s.storeError("delete_edges", err, "deleting %s edges", label)
		}
		s.metrics.AddMutations("edge_deleted", n)
	}
	s.logger.Debug("edges deleted",
		zap.String("edge_label", label),
		zap.Any("out", from.InternalID()),
		zap.Any("in", to.InternalID()),
		zap.Int("count", n))

	return &DeleteEdgesResult{
		DeletedEdges: n,
		EdgeLabel:    label,
		Out:          from.Summary(),
		In:           to.Summary(),
	}, nil
}

// UpdateVertex sets and unsets properties on the vertex with label and
// business id, then returns it with its relationships view.
//
// Set values are validated without enforcing required properties and may not
// take a unique value owned by another vertex of the label. Unset names must
// be allowed properties and may not be required ones. Everything is checked
// before the first write.
func (s *Service) UpdateVertex(ctx context.Context, label string, id any, set map[string]any, unset []string) (Record, error) {
	rec, err := s.findByID(ctx, label, id)
	if err != nil {
		return nil, err
	}
	canon := rec.Label()

	var clean map[string]any
	if len(set) > 0 {
		if clean, err = s.schema.ValidateProperties(canon, set, false); err != nil {
			return nil, err
		}
		if err := s.checkUnique(ctx, canon, clean, rec.InternalID()); err != nil {
			return nil, err
		}
	}
	for _, name := range unset {
		if !s.schema.IsAllowed(canon, name) {
			return nil, apperror.New(apperror.KindUnknownProperty,
				"cannot unset unknown property %q for label %q", name, canon).
				WithDetails(map[string]any{
					KeyLabel:  canon,
					"unknown": []string{name},
					"allowed": s.schema.AllowedProperties(canon),
				})
		}
		if s.schema.IsRequired(canon, name) {
			return nil, apperror.New(apperror.KindMissingProperty,
				"cannot unset required property %q for label %q", name, canon).
				WithDetails(map[string]any{KeyLabel: canon, "missing": []string{name}})
		}
	}

	if len(clean) > 0 {
		if err := s.engine.SetProperties(ctx, rec.InternalID(), clean); err != nil {
			return nil, s.storeError("set_properties", err, "updating %s vertex", canon)
		}
	}
	if len(unset) > 0 {
		if err := s.engine.RemoveProperties(ctx, rec.InternalID(), unset); err != nil {
			return nil, s.storeError("remove_properties", err, "updating %s vertex", canon)
		}
	}
	s.logger.Debug("vertex updated",
		zap.String("label", canon),
		zap.Any("internal_id", rec.InternalID()),
		zap.Int("set", len(clean)),
		zap.Int("unset", len(unset)))

	return s.ReadVertex(ctx, rec.InternalID())
}

// DeleteVertex removes the vertex with label and business id along with all
// its edges.
func (s *Service) DeleteVertex(ctx context.Context, label string, id any) (*DeleteResult, error) {
	canon, err := s.schema.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}
	n, err := s.businessID(id)
	if err != nil {
		return nil, err
	}
	return s.DeleteVertexByReference(ctx, ByID(n, canon))
}

// DeleteVertexByInternalID removes the vertex with the given store identity
// along with all its edges.
func (s *Service) DeleteVertexByInternalID(ctx context.Context, internalID any) (*DeleteResult, error) {
	return s.DeleteVertexByReference(ctx, ByInternalID(internalID))
}

// DeleteVertexByReference removes the vertex ref resolves to along with all
// its edges. An ambiguous reference is an error; an unmatched one is a
// not_found result.
func (s *Service) DeleteVertexByReference(ctx context.Context, ref Reference) (*DeleteResult, error) {
	matches, err := s.ResolveVertices(ctx, ref, 2)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return notFoundResult(ref), nil
	case 1:
	default:
		return nil, apperror.New(apperror.KindAmbiguous,
			"ambiguous vertex reference %s; add a label or use id", ref).
			WithDetails(map[string]any{
				"reference": ref.Map(),
				"matches":   summaries(matches),
			})
	}

	target := matches[0]
	removed, err := s.engine.DeleteVertex(ctx, target.InternalID())
	if errors.Is(err, storage.ErrNotFound) {
		return notFoundResult(ref), nil
	}
	if err != nil {
		return nil, s.storeError("delete_vertex", err, "deleting vertex %v", target.InternalID())
	}

	s.metrics.AddMutations("vertex_deleted", 1)
	s.metrics.AddMutations("edge_deleted", removed)
	s.logger.Debug("vertex deleted",
		zap.String("label", target.Label()),
		zap.Any("internal_id", target.InternalID()),
		zap.Int("removed_edges", removed))

	summary := target.Summary()
	return &DeleteResult{
		Deleted:      true,
		Label:        summary.Label,
		ID:           summary.ID,
		InternalID:   summary.InternalID,
		Caption:      summary.Caption,
		RemovedEdges: removed,
	}, nil
}

func notFoundResult(ref Reference) *DeleteResult {
	res := &DeleteResult{
		Deleted:    false,
		Reason:     ReasonNotFound,
		Label:      ref.Label,
		InternalID: ref.InternalID,
		Reference:  ref.Map(),
	}
	if ref.ID != nil {
		res.ID = *ref.ID
	}
	if ref.Caption != "" {
		res.Caption = ref.Caption
	}
	return res
}

func (s *Service) createEdge(ctx context.Context, label string, from, to Record) (EdgeSummary, error) {
	edgeID, err := s.engine.CreateEdge(ctx, label, from.InternalID(), to.InternalID())
	if err != nil {
		return EdgeSummary{}, s.storeError("create_edge", err, "creating %s edge", label)
	}
	s.metrics.AddMutations("edge_created", 1)
	s.logger.Debug("edge created",
		zap.String("edge_label", label),
		zap.Any("out", from.InternalID()),
		zap.Any("in", to.InternalID()))
	return EdgeSummary{
		EdgeLabel:      label,
		EdgeInternalID: edgeID,
		Out:            from.Summary(),
		In:             to.Summary(),
	}, nil
}

// checkUnique fails with already_exists when a unique property in props is
// held by a vertex of label other than self.
func (s *Service) checkUnique(ctx context.Context, label string, props map[string]any, self any) error {
	for _, p := range s.schema.UniqueProperties(label) {
		v, ok := props[p]
		if !ok {
			continue
		}
		raw, err := s.engine.FindVertices(ctx, storage.Filter{
			Labels: []string{label},
			Equals: map[string]any{p: v},
		}, storage.Page{Limit: 2})
		if err != nil {
			return s.storeError("find_vertices", err, "checking %s uniqueness", p)
		}
		for _, pm := range raw {
			if self != nil && pm.ID() == self {
				continue
			}
			return apperror.New(apperror.KindAlreadyExists,
				"vertex already exists: label=%s %s=%v", label, p, v).
				WithDetails(map[string]any{
					KeyLabel:   label,
					"property": p,
					"value":    v,
					"existing": Flatten(pm).Summary(),
				})
		}
	}
	return nil
}

type edgeGroup struct {
	label    string
	captions []string
}

// normalizeEdgeGroups canonicalizes edge labels, merging groups whose keys
// differ only in spelling, in a stable order.
func (s *Service) normalizeEdgeGroups(groups map[string][]string) ([]edgeGroup, error) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []edgeGroup
	index := make(map[string]int)
	for _, k := range keys {
		canon, err := s.schema.NormalizeEdgeLabel(k)
		if err != nil {
			return nil, err
		}
		i, seen := index[canon]
		if !seen {
			i = len(out)
			index[canon] = i
			out = append(out, edgeGroup{label: canon})
		}
		out[i].captions = append(out[i].captions, groups[k]...)
	}
	return out, nil
}

// withCreated attaches the summary of a vertex created before err happened.
func withCreated(err error, created Record) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		return err
	}
	details := make(map[string]any, len(appErr.Details)+1)
	for k, v := range appErr.Details {
		details[k] = v
	}
	details["created"] = created.Summary()
	return appErr.WithDetails(details)
}
