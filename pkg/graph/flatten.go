package graph

import (
	"fmt"

	"github.com/orneryd/theomcp/pkg/storage"
)

// Record is a vertex flattened into JSON-friendly keys and values.
//
// The store's identity and label metadata appear as "internal_id" and
// "label"; single-valued properties are scalars; multi-valued properties stay
// lists.
type Record map[string]any

// Flatten converts a raw vertex into a Record.
func Flatten(raw storage.PropertyMap) Record {
	out := make(Record, len(raw))
	for k, v := range raw {
		switch k {
		case storage.TokenID:
			out[KeyInternalID] = v
			continue
		case storage.TokenLabel:
			out[KeyLabel] = v
			continue
		}

		name, ok := k.(string)
		if !ok {
			name = fmt.Sprint(k)
		}
		if list, ok := v.([]any); ok && len(list) == 1 {
			out[name] = list[0]
		} else {
			out[name] = v
		}
	}
	return out
}

// FlattenAll flattens a slice of raw vertices.
func FlattenAll(raw []storage.PropertyMap) []Record {
	out := make([]Record, len(raw))
	for i, pm := range raw {
		out[i] = Flatten(pm)
	}
	return out
}

// InternalID returns the store identity.
func (r Record) InternalID() any { return r[KeyInternalID] }

// Label returns the canonical label.
func (r Record) Label() string {
	s, _ := r[KeyLabel].(string)
	return s
}

// Caption returns the caption, or "" when the vertex has none.
func (r Record) Caption() string {
	s, _ := r[KeyCaption].(string)
	return s
}

// Summary reduces the record to its identifying fields.
func (r Record) Summary() Summary {
	return Summary{
		Label:      r.Label(),
		ID:         r[KeyID],
		InternalID: r.InternalID(),
		Caption:    r[KeyCaption],
	}
}

// Summary identifies a vertex in edge listings and relationship views.
type Summary struct {
	Label      string `json:"label"`
	ID         any    `json:"id"`
	InternalID any    `json:"internal_id"`
	Caption    any    `json:"caption"`
}

func summaries(records []Record) []Summary {
	out := make([]Summary, len(records))
	for i, r := range records {
		out[i] = r.Summary()
	}
	return out
}
