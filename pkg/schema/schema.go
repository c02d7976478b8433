// Package schema holds the knowledge-base schema: the canonical vertex labels,
// the accepted edge labels, and the per-label property rules used to validate
// caller input before anything reaches the store.
//
// A Registry is built once at startup, either from the built-in definition or
// from a YAML file, and is read-only afterwards. It is safe for concurrent use.
//
// Example:
//
//	reg := schema.Default(false)
//	label, err := reg.NormalizeLabel("NotionGroup") // "notionGroup"
//	props, err := reg.ValidateProperties(label, map[string]any{"caption": "Grace"}, true)
//
// YAML form:
//
//	require_id: false
//	edge_labels: [refersTo, contains, next]
//	labels:
//	  - name: verse
//	    properties: [id, caption, chapter, verse]
//	    required: [caption]
//	    integers: [id, chapter, verse]
//	    strings: [RST]
//	    unique: [caption]
//
// Caption is always string-typed, whether or not it is listed under strings.
package schema

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Property names with fixed meaning across every label.
const (
	PropID      = "id"
	PropCaption = "caption"
)

// LabelDefinition describes the property rules of one vertex label.
type LabelDefinition struct {
	Name       string   `yaml:"name" json:"name"`
	Properties []string `yaml:"properties" json:"properties"`
	Required   []string `yaml:"required,omitempty" json:"required,omitempty"`
	Integers   []string `yaml:"integers,omitempty" json:"integers,omitempty"`
	Strings    []string `yaml:"strings,omitempty" json:"strings,omitempty"`
	Unique     []string `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// Definition is the serializable form of a schema.
type Definition struct {
	// RequireID makes the business "id" property required and unique for
	// every label.
	RequireID  bool              `yaml:"require_id" json:"require_id"`
	EdgeLabels []string          `yaml:"edge_labels" json:"edge_labels"`
	Labels     []LabelDefinition `yaml:"labels" json:"labels"`
}

// DefaultDefinition returns the built-in knowledge-base schema.
func DefaultDefinition(requireID bool) Definition {
	simple := func(name string, extra ...string) LabelDefinition {
		return LabelDefinition{
			Name:       name,
			Properties: append([]string{PropID, PropCaption}, extra...),
			Required:   []string{PropCaption},
			Integers:   []string{PropID},
			Unique:     []string{PropCaption},
		}
	}

	verse := simple("verse", "chapter", "RST", "bookShort", "book", "importIndex", "verse")
	verse.Integers = []string{PropID, "chapter", "importIndex", "verse"}
	verse.Strings = []string{"RST", "bookShort", "book"}

	return Definition{
		RequireID: requireID,
		EdgeLabels: []string{
			"refersTo",
			"contains",
			"isSupportedBy",
			"isChallengedBy",
			"isParallelTo",
			"next",
			"writtenBy",
			"supportedBy",
			"challengedBy",
		},
		Labels: []LabelDefinition{
			simple("notion", "description", "quotation"),
			simple("person"),
			simple("book"),
			verse,
			simple("notionGroup"),
			simple("verseGroup"),
			simple("quotation", "text", "source"),
		},
	}
}

// Registry is the validated, indexed form of a Definition.
type Registry struct {
	def        Definition
	labels     []string          // canonical, sorted
	labelFold  map[string]string // lowercased spelling -> canonical
	edgeLabels []string          // sorted
	edgeSet    map[string]struct{}
	rules      map[string]*labelRules
}

type labelRules struct {
	allowed  map[string]struct{}
	required map[string]struct{}
	integers map[string]struct{}
	strings  map[string]struct{}
	unique   []string
}

// Default returns a registry over the built-in definition.
func Default(requireID bool) *Registry {
	reg, err := New(DefaultDefinition(requireID))
	if err != nil {
		// The built-in definition is static; failing here is a programming error.
		panic(err)
	}
	return reg
}

// Load reads a YAML definition from path. The requireID flag overrides the
// file's require_id when true.
func Load(path string, requireID bool) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if requireID {
		def.RequireID = true
	}
	return New(def)
}

// Parse decodes a YAML schema definition.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parsing schema: %w", err)
	}
	return def, nil
}

// New validates def and builds a registry from it.
func New(def Definition) (*Registry, error) {
	if len(def.Labels) == 0 {
		return nil, fmt.Errorf("schema defines no labels")
	}
	if len(def.EdgeLabels) == 0 {
		return nil, fmt.Errorf("schema defines no edge labels")
	}

	r := &Registry{
		def:       def,
		labelFold: make(map[string]string, len(def.Labels)),
		edgeSet:   make(map[string]struct{}, len(def.EdgeLabels)),
		rules:     make(map[string]*labelRules, len(def.Labels)),
	}

	for _, ld := range def.Labels {
		if ld.Name == "" {
			return nil, fmt.Errorf("schema label with empty name")
		}
		folded := strings.ToLower(ld.Name)
		if prev, dup := r.labelFold[folded]; dup {
			return nil, fmt.Errorf("labels %q and %q differ only by case", prev, ld.Name)
		}
		r.labelFold[folded] = ld.Name
		r.labels = append(r.labels, ld.Name)

		rules := &labelRules{
			allowed:  toSet(ld.Properties),
			required: toSet(ld.Required),
			integers: toSet(ld.Integers),
			strings:  toSet(ld.Strings),
			unique:   append([]string(nil), ld.Unique...),
		}
		if def.RequireID {
			rules.allowed[PropID] = struct{}{}
			rules.required[PropID] = struct{}{}
			rules.integers[PropID] = struct{}{}
			if !contains(rules.unique, PropID) {
				rules.unique = append(rules.unique, PropID)
			}
		}
		if _, ok := rules.allowed[PropCaption]; ok {
			rules.strings[PropCaption] = struct{}{}
		}
		for p := range rules.strings {
			if _, ok := rules.integers[p]; ok {
				return nil, fmt.Errorf("label %q: property %q is declared both integer and string", ld.Name, p)
			}
		}
		for _, group := range [][]string{keys(rules.required), keys(rules.integers), keys(rules.strings), rules.unique} {
			for _, p := range group {
				if _, ok := rules.allowed[p]; !ok {
					return nil, fmt.Errorf("label %q: property %q is not in its allowed set", ld.Name, p)
				}
			}
		}
		r.rules[ld.Name] = rules
	}
	sort.Strings(r.labels)

	for _, e := range def.EdgeLabels {
		if e == "" {
			return nil, fmt.Errorf("schema edge label with empty name")
		}
		if _, dup := r.edgeSet[e]; dup {
			continue
		}
		r.edgeSet[e] = struct{}{}
		r.edgeLabels = append(r.edgeLabels, e)
	}
	sort.Strings(r.edgeLabels)

	return r, nil
}

// Definition returns a copy of the definition the registry was built from.
func (r *Registry) Definition() Definition {
	def := r.def
	def.EdgeLabels = append([]string(nil), r.def.EdgeLabels...)
	def.Labels = make([]LabelDefinition, len(r.def.Labels))
	copy(def.Labels, r.def.Labels)
	return def
}

// YAML renders the registry's definition.
func (r *Registry) YAML() ([]byte, error) {
	return yaml.Marshal(r.Definition())
}

// RequireID reports whether the business id is required and unique.
func (r *Registry) RequireID() bool { return r.def.RequireID }

// Labels returns the canonical labels, sorted.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.labels...)
}

// EdgeLabels returns the accepted edge labels, sorted.
func (r *Registry) EdgeLabels() []string {
	return append([]string(nil), r.edgeLabels...)
}

// AllowedProperties returns the sorted allowed property names of a canonical
// label, or nil if the label is unknown.
func (r *Registry) AllowedProperties(label string) []string {
	rules, ok := r.rules[label]
	if !ok {
		return nil
	}
	return keys(rules.allowed)
}

// RequiredProperties returns the sorted required property names of a
// canonical label.
func (r *Registry) RequiredProperties(label string) []string {
	rules, ok := r.rules[label]
	if !ok {
		return nil
	}
	return keys(rules.required)
}

// UniqueProperties returns the properties that must be unique within a
// canonical label, caption first.
func (r *Registry) UniqueProperties(label string) []string {
	rules, ok := r.rules[label]
	if !ok {
		return nil
	}
	return append([]string(nil), rules.unique...)
}

// IsAllowed reports whether prop may be set on a canonical label.
func (r *Registry) IsAllowed(label, prop string) bool {
	rules, ok := r.rules[label]
	if !ok {
		return false
	}
	_, ok = rules.allowed[prop]
	return ok
}

// IsRequired reports whether prop is required on a canonical label.
func (r *Registry) IsRequired(label, prop string) bool {
	rules, ok := r.rules[label]
	if !ok {
		return false
	}
	_, ok = rules.required[prop]
	return ok
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
