package graph

import (
	"context"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/storage"
)

// Labels with dedicated operations.
const (
	LabelNotion = "notion"
	LabelVerse  = "verse"
)

// VerseRecord is the compact verse view returned by GetVerseByCaption.
type VerseRecord struct {
	InternalID any    `json:"internal_id"`
	Label      string `json:"label"`
	Caption    any    `json:"caption"`
	RST        any    `json:"RST"`
}

// ListVerticesByLabel pages through the vertices of a label.
func (s *Service) ListVerticesByLabel(ctx context.Context, label string, limit, offset int) ([]Summary, error) {
	canon, err := s.schema.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, apperror.New(apperror.KindInvalidArgument, "offset must not be negative")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	raw, err := s.engine.FindVertices(ctx, storage.Filter{Labels: []string{canon}},
		storage.Page{Offset: offset, Limit: limit})
	if err != nil {
		return nil, s.storeError("find_vertices", err, "listing %s vertices", canon)
	}
	return summaries(FlattenAll(raw)), nil
}

// FindVerticesByCaption returns vertices whose caption equals caption,
// optionally within one label.
func (s *Service) FindVerticesByCaption(ctx context.Context, caption, label string, limit int) ([]Summary, error) {
	if caption == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "caption is required")
	}
	if limit <= 0 {
		limit = DefaultFindLimit
	}
	filter := storage.Filter{Equals: map[string]any{KeyCaption: caption}}
	if label != "" {
		canon, err := s.schema.NormalizeLabel(label)
		if err != nil {
			return nil, err
		}
		filter.Labels = []string{canon}
	}

	raw, err := s.engine.FindVertices(ctx, filter, storage.Page{Limit: limit})
	if err != nil {
		return nil, s.storeError("find_vertices", err, "finding caption %q", caption)
	}
	return summaries(FlattenAll(raw)), nil
}

// SearchVertices returns vertices whose caption contains query
// (case-sensitive), optionally restricted to some labels.
func (s *Service) SearchVertices(ctx context.Context, query string, labels []string, limit int) ([]Summary, error) {
	if query == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "query is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	filter := storage.Filter{Contains: map[string]string{KeyCaption: query}}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		canon, err := s.schema.NormalizeLabel(l)
		if err != nil {
			return nil, err
		}
		if !seen[canon] {
			seen[canon] = true
			filter.Labels = append(filter.Labels, canon)
		}
	}

	raw, err := s.engine.FindVertices(ctx, filter, storage.Page{Limit: limit})
	if err != nil {
		return nil, s.storeError("find_vertices", err, "searching %q", query)
	}
	return summaries(FlattenAll(raw)), nil
}

// GetVerticesByCaptions fetches every vertex whose caption is one of
// captions, grouped in the order the captions were given.
func (s *Service) GetVerticesByCaptions(ctx context.Context, captions []string) ([]Record, error) {
	if len(captions) == 0 {
		return []Record{}, nil
	}
	var set []any
	seen := make(map[string]struct{}, len(captions))
	for _, c := range captions {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		set = append(set, c)
	}

	raw, err := s.engine.FindVertices(ctx, storage.Filter{Within: map[string][]any{KeyCaption: set}}, storage.Page{})
	if err != nil {
		return nil, s.storeError("find_vertices", err, "fetching %d captions", len(set))
	}

	byCaption := make(map[string][]Record)
	for _, rec := range FlattenAll(raw) {
		byCaption[rec.Caption()] = append(byCaption[rec.Caption()], rec)
	}
	out := make([]Record, 0, len(raw))
	for _, c := range set {
		out = append(out, byCaption[c.(string)]...)
	}
	return out, nil
}

// GetVerseByCaption looks up a verse by its exact caption, such as "Jn 1:11".
func (s *Service) GetVerseByCaption(ctx context.Context, caption string) (*VerseRecord, error) {
	if caption == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "caption is required")
	}
	raw, err := s.engine.FindVertices(ctx, storage.Filter{
		Labels: []string{LabelVerse},
		Equals: map[string]any{KeyCaption: caption},
	}, storage.Page{Limit: 1})
	if err != nil {
		return nil, s.storeError("find_vertices", err, "finding verse %q", caption)
	}
	if len(raw) == 0 {
		return nil, apperror.New(apperror.KindNotFound, "verse not found: caption=%q", caption).
			WithDetails(map[string]any{KeyCaption: caption})
	}

	rec := Flatten(raw[0])
	return &VerseRecord{
		InternalID: rec.InternalID(),
		Label:      rec.Label(),
		Caption:    rec[KeyCaption],
		RST:        rec["RST"],
	}, nil
}

// GetNotionByID reads a notion by store identity with its relationships
// view. Vertices of other labels are reported as not found.
func (s *Service) GetNotionByID(ctx context.Context, internalID any) (Record, error) {
	rec, err := s.ReadVertex(ctx, internalID)
	if err != nil {
		return nil, err
	}
	if rec.Label() != LabelNotion {
		return nil, apperror.New(apperror.KindNotFound, "notion not found: internal_id=%v", internalID).
			WithDetails(map[string]any{KeyInternalID: internalID, KeyLabel: rec.Label()})
	}
	return rec, nil
}
