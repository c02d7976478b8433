package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/orneryd/theomcp/pkg/convert"
)

// vertexRecord is the stored form of a vertex in the embedded engines.
type vertexRecord struct {
	ID    string         `json:"id"`
	Label string         `json:"label"`
	Seq   uint64         `json:"seq"`
	Props map[string]any `json:"props"`
}

// edgeRecord is the stored form of an edge in the embedded engines.
type edgeRecord struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	From  string `json:"from"`
	To    string `json:"to"`
	Seq   uint64 `json:"seq"`
}

func (r *vertexRecord) propertyMap() PropertyMap {
	pm := make(PropertyMap, len(r.Props)+2)
	pm[TokenID] = r.ID
	pm[TokenLabel] = r.Label
	for k, v := range r.Props {
		pm[k] = []any{v}
	}
	return pm
}

func (r *vertexRecord) matches(f Filter) bool {
	if len(f.Labels) > 0 {
		found := false
		for _, l := range f.Labels {
			if l == r.Label {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for k, want := range f.Equals {
		got, ok := r.Props[k]
		if !ok || valueKey(got) != valueKey(want) {
			return false
		}
	}
	for k, sub := range f.Contains {
		got, ok := r.Props[k].(string)
		if !ok || !strings.Contains(got, sub) {
			return false
		}
	}
	for k, set := range f.Within {
		got, ok := r.Props[k]
		if !ok {
			return false
		}
		gotKey := valueKey(got)
		found := false
		for _, want := range set {
			if valueKey(want) == gotKey {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// validateProps rejects values the embedded engines cannot store faithfully
// and normalizes numbers so equality lookups behave the same before and
// after a round trip through JSON.
func validateProps(props map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == "" {
			return nil, fmt.Errorf("%w: empty property name", ErrInvalidData)
		}
		scalar, ok := convert.ToScalar(v)
		if !ok {
			return nil, fmt.Errorf("%w: property %q has unsupported value %v (%T)", ErrInvalidData, k, v, v)
		}
		out[k] = scalar
	}
	return out, nil
}

// distinctLabels returns filter.Labels without repeats, in order.
func (f Filter) distinctLabels() []string {
	seen := make(map[string]struct{}, len(f.Labels))
	out := make([]string, 0, len(f.Labels))
	for _, l := range f.Labels {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// valueKey is a comparison key for scalar values: 5, int64(5) and 5.0 all
// compare equal, "5" does not.
func valueKey(v any) string {
	scalar, ok := convert.ToScalar(v)
	if !ok {
		return fmt.Sprintf("?:%v", v)
	}
	switch s := scalar.(type) {
	case int64:
		return "i:" + strconv.FormatInt(s, 10)
	case bool:
		return "b:" + strconv.FormatBool(s)
	case string:
		return "s:" + s
	}
	return fmt.Sprintf("?:%v", scalar)
}

// idString converts a caller-supplied id to the string ids used by the
// embedded engines.
func idString(id any) (string, error) {
	switch v := id.(type) {
	case string:
		if v == "" {
			return "", ErrInvalidID
		}
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return "", ErrInvalidID
	}
	return "", fmt.Errorf("%w: %v (%T)", ErrInvalidID, id, id)
}

func encodeVertex(r *vertexRecord) ([]byte, error) {
	return json.Marshal(r)
}

func decodeVertex(data []byte) (*vertexRecord, error) {
	var r vertexRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}
	props, err := validateProps(r.Props)
	if err != nil {
		return nil, err
	}
	r.Props = props
	return &r, nil
}

func encodeEdge(e *edgeRecord) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEdge(data []byte) (*edgeRecord, error) {
	var e edgeRecord
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
