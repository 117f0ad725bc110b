// Package schema classifies the attributes of source classes and derives the
// label set every node of a class receives.
//
// A Catalog is owned by one import run. It computes a ClassSchema the first
// time a class is seen and serves every later lookup from its cache; it is
// not safe for concurrent use.
package schema

import (
	"sort"

	"github.com/orneryd/pathwaygraph/pkg/logging"
	"github.com/orneryd/pathwaygraph/pkg/model"
)

// Structural accessors handled by the importer itself.
var denylist = map[string]bool{
	"dbId":        true,
	"displayName": true,
	"timestamp":   true,
	"schemaClass": true,
	"id":          true,
}

// IsStructural reports whether an accessor is excluded from classification.
func IsStructural(name string) bool {
	return denylist[name]
}

// ClassSchema is the classification of one source class. All slices are
// sorted and must not be modified.
type ClassSchema struct {
	Name           string
	Labels         []string
	Primitives     []string
	PrimitiveLists []string
	Relations      []string
}

// Accessor is one declared attribute as seen by Classify.
type Accessor struct {
	Name string
	Many bool

	// Entity is true when the value type (or element type) is a class.
	Entity bool
}

// Classify builds the schema of className from its ancestor chain and its
// declared accessors.
func Classify(className string, ancestors []string, accessors []Accessor) *ClassSchema {
	cs := &ClassSchema{
		Name:   className,
		Labels: labelSet(className, ancestors),
	}
	for _, acc := range accessors {
		if IsStructural(acc.Name) {
			continue
		}
		switch {
		case acc.Entity:
			cs.Relations = append(cs.Relations, acc.Name)
		case acc.Many:
			cs.PrimitiveLists = append(cs.PrimitiveLists, acc.Name)
		default:
			cs.Primitives = append(cs.Primitives, acc.Name)
		}
	}
	sort.Strings(cs.Primitives)
	sort.Strings(cs.PrimitiveLists)
	sort.Strings(cs.Relations)
	return cs
}

// labelSet keeps the ancestor order (most specific first) and always
// contains className.
func labelSet(className string, ancestors []string) []string {
	labels := make([]string, 0, len(ancestors)+1)
	seen := make(map[string]bool, len(ancestors)+1)
	add := func(l string) {
		if l != "" && !seen[l] {
			seen[l] = true
			labels = append(labels, l)
		}
	}
	add(className)
	for _, a := range ancestors {
		add(a)
	}
	return labels
}

// Catalog resolves and caches ClassSchemas from a model.
type Catalog struct {
	model *model.Model
	cache map[string]*ClassSchema
	log   *logging.Logger
}

// NewCatalog creates an empty catalog over m.
func NewCatalog(m *model.Model, log *logging.Logger) *Catalog {
	if log == nil {
		log = logging.NewNop()
	}
	return &Catalog{
		model: m,
		cache: make(map[string]*ClassSchema),
		log:   log.Component("schema"),
	}
}

// Lookup returns the schema of className, computing it on first use.
//
// A class unknown to the model is logged once and classified with no
// attributes; its only label is its own name.
func (c *Catalog) Lookup(className string) *ClassSchema {
	if cs, ok := c.cache[className]; ok {
		return cs
	}

	class, ok := c.model.Class(className)
	if !ok {
		c.log.Warn("class not found in model, importing without attributes", "class", className)
		cs := Classify(className, nil, nil)
		c.cache[className] = cs
		return cs
	}

	accessors := make([]Accessor, 0, len(class.Attributes))
	for _, attr := range class.Attributes {
		accessors = append(accessors, Accessor{
			Name:   attr.Name,
			Many:   attr.Many,
			Entity: c.model.IsEntity(attr.Type),
		})
	}
	cs := Classify(className, class.Ancestors, accessors)
	c.cache[className] = cs
	c.log.Debug("class schema resolved",
		"class", className,
		"labels", cs.Labels,
		"primitives", len(cs.Primitives),
		"primitive_lists", len(cs.PrimitiveLists),
		"relations", len(cs.Relations),
	)
	return cs
}

// Len returns the number of cached schemas.
func (c *Catalog) Len() int { return len(c.cache) }
