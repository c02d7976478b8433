package schema

import (
	"sort"
	"strings"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/convert"
)

// NormalizeLabel returns the canonical spelling of a vertex label. An exact
// match wins; otherwise the label is matched case-insensitively.
func (r *Registry) NormalizeLabel(label string) (string, error) {
	if _, ok := r.rules[label]; ok {
		return label, nil
	}
	if canon, ok := r.labelFold[strings.ToLower(label)]; ok {
		return canon, nil
	}
	return "", apperror.New(apperror.KindUnknownLabel,
		"unknown label %q, allowed: %s", label, strings.Join(r.labels, ", ")).
		WithDetails(map[string]any{
			"label":   label,
			"allowed": r.Labels(),
		})
}

// NormalizeEdgeLabel returns the accepted spelling of an edge label, matching
// exactly first and then case-insensitively.
func (r *Registry) NormalizeEdgeLabel(edgeLabel string) (string, error) {
	if _, ok := r.edgeSet[edgeLabel]; ok {
		return edgeLabel, nil
	}
	for _, e := range r.edgeLabels {
		if strings.EqualFold(e, edgeLabel) {
			return e, nil
		}
	}
	return "", apperror.New(apperror.KindUnknownEdgeLabel,
		"unknown edge label %q, allowed: %s", edgeLabel, strings.Join(r.edgeLabels, ", ")).
		WithDetails(map[string]any{
			"edge_label": edgeLabel,
			"allowed":    r.EdgeLabels(),
		})
}

// ValidateProperties checks props against the rules of label and returns a
// normalized copy. Unknown keys fail with unknown_property; when
// requireRequired is set, absent required keys fail with missing_property.
// Values must be strings, integers or booleans; integer properties are
// coerced to int64, string properties (caption among them) accept only
// strings, and anything else fails with invalid_property_type.
func (r *Registry) ValidateProperties(label string, props map[string]any, requireRequired bool) (map[string]any, error) {
	canon, err := r.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}
	rules := r.rules[canon]

	var unknown []string
	for k := range props {
		if _, ok := rules.allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, apperror.New(apperror.KindUnknownProperty,
			"unknown properties for label %q: %s", canon, strings.Join(unknown, ", ")).
			WithDetails(map[string]any{
				"label":   canon,
				"unknown": unknown,
				"allowed": keys(rules.allowed),
			})
	}

	if requireRequired {
		var missing []string
		for k := range rules.required {
			if _, ok := props[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, apperror.New(apperror.KindMissingProperty,
				"missing required properties for label %q: %s", canon, strings.Join(missing, ", ")).
				WithDetails(map[string]any{
					"label":   canon,
					"missing": missing,
				})
		}
	}

	out := make(map[string]any, len(props))
	for k, v := range props {
		if _, isInt := rules.integers[k]; isInt {
			n, ok := convert.ToInt64(v)
			if !ok {
				return nil, invalidType(canon, k, v, "integer")
			}
			out[k] = n
			continue
		}
		if _, isString := rules.strings[k]; isString {
			str, ok := v.(string)
			if !ok {
				return nil, invalidType(canon, k, v, "string")
			}
			out[k] = str
			continue
		}
		scalar, ok := convert.ToScalar(v)
		if !ok {
			return nil, invalidType(canon, k, v, "string, integer or boolean")
		}
		out[k] = scalar
	}
	return out, nil
}

func invalidType(label, prop string, value any, want string) error {
	return apperror.New(apperror.KindInvalidPropertyType,
		"property %q of label %q must be %s, got %v (%T)", prop, label, want, value, value).
		WithDetails(map[string]any{
			"label":    label,
			"property": prop,
			"expected": want,
		})
}
