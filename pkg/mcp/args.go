package mcp

import (
	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/convert"
	"github.com/orneryd/theomcp/pkg/graph"
)

// getString safely extracts a string from args.
func getString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// requireString extracts a non-empty string or fails with invalid_argument.
func requireString(args map[string]any, key string) (string, error) {
	s := getString(args, key)
	if s == "" {
		return "", apperror.New(apperror.KindInvalidArgument, "%s is required", key)
	}
	return s, nil
}

// getInt extracts an integer, accepting JSON numbers and numeric strings.
func getInt(args map[string]any, key string, defaultVal int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	n, ok := convert.ToInt64(v)
	if !ok {
		return 0, apperror.New(apperror.KindInvalidArgument, "%s must be an integer, got %v", key, v)
	}
	return int(n), nil
}

// requireID extracts the business id of a vertex.
func requireID(args map[string]any) (int64, error) {
	v, ok := args[graph.KeyID]
	if !ok || v == nil {
		return 0, apperror.New(apperror.KindInvalidArgument, "id is required")
	}
	n, ok := convert.ToInt64(v)
	if !ok {
		return 0, apperror.New(apperror.KindInvalidArgument, "id must be an integer, got %v", v)
	}
	return n, nil
}

// requireInternalID extracts a store identity. Identities are strings for the
// embedded stores and integers for Gremlin servers, so both are accepted.
func requireInternalID(args map[string]any) (any, error) {
	v, ok := args[graph.KeyInternalID]
	if !ok || v == nil || v == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "internal_id is required")
	}
	if n, ok := convert.ToInt64(v); ok {
		if _, isString := v.(string); !isString {
			return n, nil
		}
	}
	return v, nil
}

// getMap extracts a JSON object. A missing key yields nil.
func getMap(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, apperror.New(apperror.KindInvalidArgument, "%s must be an object", key)
	}
	return m, nil
}

// getStringSlice extracts a list of strings. A bare string is a one-element list.
func getStringSlice(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return []string{s}, nil
	}
	list := convert.ToStringSlice(v)
	if list == nil {
		if items, isList := v.([]any); isList && len(items) == 0 {
			return []string{}, nil
		}
		return nil, apperror.New(apperror.KindInvalidArgument, "%s must be a list of strings", key)
	}
	return list, nil
}

// getCaptionMap extracts an edge label -> captions object.
func getCaptionMap(args map[string]any, key string) (map[string][]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := convert.ToStringSliceMap(v)
	if !ok {
		return nil, apperror.New(apperror.KindInvalidArgument,
			"%s must map edge labels to lists of captions", key)
	}
	return m, nil
}

// getReference parses a vertex reference object such as out_vertex.
func getReference(args map[string]any, key string) (graph.Reference, error) {
	raw, err := getMap(args, key)
	if err != nil {
		return graph.Reference{}, err
	}
	if raw == nil {
		return graph.Reference{}, apperror.New(apperror.KindInvalidArgument, "%s is required", key)
	}
	return graph.ParseReference(raw)
}

// getReferences parses a list of vertex reference objects.
func getReferences(args map[string]any, key string) ([]graph.Reference, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, apperror.New(apperror.KindInvalidArgument, "%s must be a list of references", key)
	}
	refs := make([]graph.Reference, 0, len(items))
	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, apperror.New(apperror.KindInvalidArgument,
				"%s[%d] must be an object", key, i)
		}
		ref, err := graph.ParseReference(raw)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// inlineReference builds a reference from top-level internal_id, id,
// caption and label arguments.
func inlineReference(args map[string]any) (graph.Reference, error) {
	raw := make(map[string]any, 4)
	for _, key := range []string{graph.KeyInternalID, graph.KeyID, graph.KeyCaption, graph.KeyLabel} {
		if v, ok := args[key]; ok && v != nil && v != "" {
			raw[key] = v
		}
	}
	return graph.ParseReference(raw)
}
