package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/convert"
	"github.com/orneryd/theomcp/pkg/storage"
)

// Reference identifies a vertex by store identity, business id or caption,
// optionally scoped by label. When several keys are set the precedence is
// InternalID, then ID, then Caption.
type Reference struct {
	InternalID any    `json:"internal_id,omitempty"`
	ID         *int64 `json:"id,omitempty"`
	Caption    string `json:"caption,omitempty"`
	Label      string `json:"label,omitempty"`
}

// ByCaption returns a caption reference.
func ByCaption(caption, label string) Reference {
	return Reference{Caption: caption, Label: label}
}

// ByID returns a business id reference.
func ByID(id int64, label string) Reference {
	return Reference{ID: &id, Label: label}
}

// ByInternalID returns a store identity reference.
func ByInternalID(internalID any) Reference {
	return Reference{InternalID: internalID}
}

// ParseReference reads a reference from a decoded JSON object with the keys
// internal_id, id, caption and label.
func ParseReference(raw map[string]any) (Reference, error) {
	var ref Reference
	if v, ok := raw[KeyInternalID]; ok && v != nil {
		ref.InternalID = v
	}
	if v, ok := raw[KeyID]; ok && v != nil {
		id, ok := convert.ToInt64(v)
		if !ok {
			return Reference{}, apperror.New(apperror.KindInvalidReference,
				"reference id must be an integer, got %v", v).
				WithDetails(map[string]any{"reference": raw})
		}
		ref.ID = &id
	}
	if v, ok := raw[KeyCaption]; ok && v != nil {
		if s, isString := v.(string); isString {
			ref.Caption = s
		} else {
			ref.Caption = fmt.Sprint(v)
		}
	}
	if v, ok := raw[KeyLabel].(string); ok {
		ref.Label = v
	}
	return ref, ref.Validate()
}

// Validate fails with invalid_reference unless an identifying key is set.
func (r Reference) Validate() error {
	if r.InternalID == nil && r.ID == nil && r.Caption == "" {
		return apperror.New(apperror.KindInvalidReference,
			"vertex reference must include internal_id, id or caption (and optionally label)")
	}
	return nil
}

// Map renders the reference for error details.
func (r Reference) Map() map[string]any {
	m := make(map[string]any)
	if r.InternalID != nil {
		m[KeyInternalID] = r.InternalID
	}
	if r.ID != nil {
		m[KeyID] = *r.ID
	}
	if r.Caption != "" {
		m[KeyCaption] = r.Caption
	}
	if r.Label != "" {
		m[KeyLabel] = r.Label
	}
	return m
}

func (r Reference) String() string {
	switch {
	case r.InternalID != nil:
		return fmt.Sprintf("internal_id=%v", r.InternalID)
	case r.ID != nil && r.Label != "":
		return fmt.Sprintf("label=%s id=%d", r.Label, *r.ID)
	case r.ID != nil:
		return fmt.Sprintf("id=%d", *r.ID)
	case r.Label != "":
		return fmt.Sprintf("label=%s caption=%q", r.Label, r.Caption)
	default:
		return fmt.Sprintf("caption=%q", r.Caption)
	}
}

// ResolveVertices returns up to limit vertices matching ref, in store order.
func (s *Service) ResolveVertices(ctx context.Context, ref Reference, limit int) ([]Record, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultResolveLimit
	}

	label := ""
	if ref.Label != "" {
		canon, err := s.schema.NormalizeLabel(ref.Label)
		if err != nil {
			return nil, err
		}
		label = canon
	}

	if ref.InternalID != nil {
		raw, err := s.engine.GetVertex(ctx, ref.InternalID)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
			return nil, nil
		}
		if err != nil {
			return nil, s.storeError("get_vertex", err, "reading vertex %v", ref.InternalID)
		}
		rec := Flatten(raw)
		if label != "" && rec.Label() != label {
			return nil, nil
		}
		return []Record{rec}, nil
	}

	filter := storage.Filter{}
	if label != "" {
		filter.Labels = []string{label}
	}
	if ref.ID != nil {
		filter.Equals = map[string]any{KeyID: *ref.ID}
	} else {
		filter.Equals = map[string]any{KeyCaption: ref.Caption}
	}

	raw, err := s.engine.FindVertices(ctx, filter, storage.Page{Limit: limit})
	if err != nil {
		return nil, s.storeError("find_vertices", err, "resolving %s", ref)
	}
	return FlattenAll(raw), nil
}

// ResolveUniqueVertex resolves ref to exactly one vertex. It fails with
// not_found when nothing matches and with ambiguous, listing the matches, when
// more than one does.
func (s *Service) ResolveUniqueVertex(ctx context.Context, ref Reference) (Record, error) {
	matches, err := s.ResolveVertices(ctx, ref, 2)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, apperror.New(apperror.KindNotFound, "vertex not found for %s", ref).
			WithDetails(map[string]any{"reference": ref.Map()})
	case 1:
		return matches[0], nil
	default:
		return nil, apperror.New(apperror.KindAmbiguous,
			"ambiguous vertex reference %s; add a label or use id", ref).
			WithDetails(map[string]any{
				"reference": ref.Map(),
				"matches":   summaries(matches),
			})
	}
}
