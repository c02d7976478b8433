package graph

import (
	"sort"

	"github.com/orneryd/theomcp/pkg/schema"
	"github.com/orneryd/theomcp/pkg/storage"
)

// inverseOf maps a direct edge label to the name an incoming edge of that
// label has when seen from its target. No label is its own inverse.
var inverseOf = map[string]string{
	"next":           "previous",
	"isSupportedBy":  "supports",
	"isChallengedBy": "challenges",
	"refersTo":       "isReferredBy",
	"contains":       "isContainedIn",
}

// directOf is inverseOf reversed.
var directOf = func() map[string]string {
	m := make(map[string]string, len(inverseOf))
	for direct, inverse := range inverseOf {
		m[inverse] = direct
	}
	return m
}()

// Relationships maps a relationship name, as seen from the subject vertex,
// to the vertices on the other end.
type Relationships map[string][]Summary

// InverseName returns the inverse name of a direct edge label.
func InverseName(edgeLabel string) (string, bool) {
	inv, ok := inverseOf[edgeLabel]
	return inv, ok
}

// DirectName returns the direct edge label behind an inverse name.
func DirectName(name string) (string, bool) {
	d, ok := directOf[name]
	return d, ok
}

// RenameIncoming rekeys incoming edge groups by their inverse name. Labels
// without an inverse keep their own name.
func RenameIncoming(groups Relationships) Relationships {
	out := make(Relationships, len(groups))
	for label, list := range groups {
		key := label
		if inv, ok := inverseOf[label]; ok {
			key = inv
		}
		out[key] = append(out[key], list...)
	}
	return out
}

// MergeRelationshipView unions outgoing and (already renamed) incoming
// groups. Lists under a shared key are concatenated, outgoing first.
func MergeRelationshipView(outgoing, incoming Relationships) Relationships {
	out := make(Relationships, len(outgoing)+len(incoming))
	for k, list := range outgoing {
		out[k] = append(out[k], list...)
	}
	for k, list := range incoming {
		out[k] = append(out[k], list...)
	}
	return out
}

// PartitionCallerRelationships splits a caller supplied
// {relationshipName: [captions]} map into outgoing and incoming edge groups.
//
// Direct labels are outgoing. Inverse names are incoming and are renamed back
// to their direct label, so {"supports": ["X"]} becomes an isSupportedBy edge
// from X to the subject. Any other key must be an accepted edge label and is
// treated as outgoing under its canonical spelling.
func PartitionCallerRelationships(reg *schema.Registry, input map[string][]string) (outgoing, incoming map[string][]string, err error) {
	outgoing = make(map[string][]string)
	incoming = make(map[string][]string)

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		captions := input[key]
		if _, ok := inverseOf[key]; ok {
			outgoing[key] = append(outgoing[key], captions...)
			continue
		}
		if direct, ok := directOf[key]; ok {
			incoming[direct] = append(incoming[direct], captions...)
			continue
		}
		canon, err := reg.NormalizeEdgeLabel(key)
		if err != nil {
			return nil, nil, err
		}
		outgoing[canon] = append(outgoing[canon], captions...)
	}
	return outgoing, incoming, nil
}

// groupNeighbors groups neighbours by edge label, keeping store order within
// each group.
func groupNeighbors(neighbors []storage.Neighbor) Relationships {
	out := make(Relationships)
	for _, n := range neighbors {
		out[n.EdgeLabel] = append(out[n.EdgeLabel], Flatten(n.Vertex).Summary())
	}
	return out
}
