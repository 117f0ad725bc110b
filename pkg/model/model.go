// Package model holds the declarative schema metadata of the source object
// model: every class with its parent and its declared attributes.
//
// The table is read once at startup (from the embedded Reactome model or a
// user supplied YAML file) and validated as a whole. After loading, every
// class knows its full ancestor chain and its complete attribute list
// (own plus inherited), so nothing downstream has to walk the hierarchy.
package model

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed reactome.yaml
var reactomeModel []byte

// Primitive attribute types. Any other type name must be a class in the model.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
)

var (
	ErrDuplicateClass   = errors.New("duplicate class")
	ErrUnknownParent    = errors.New("unknown parent class")
	ErrUnknownType      = errors.New("unknown attribute type")
	ErrInheritanceCycle = errors.New("inheritance cycle")
	ErrNoRoot           = errors.New("model has no root class")
)

// Attribute is one declared attribute of a class.
type Attribute struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Many bool   `yaml:"many,omitempty"`
}

// ClassDef is the YAML form of a class.
type ClassDef struct {
	Name       string      `yaml:"name"`
	Parent     string      `yaml:"parent,omitempty"`
	Attributes []Attribute `yaml:"attributes,omitempty"`
}

type document struct {
	Classes []ClassDef `yaml:"classes"`
}

// Class is a resolved class.
type Class struct {
	Name   string
	Parent string

	// Ancestors starts with the class itself and ends with the root class.
	Ancestors []string

	// Attributes holds own and inherited attributes sorted by name. A
	// subclass redeclaring an attribute overrides the inherited one.
	Attributes []Attribute
}

// IsPrimitiveType reports whether typeName is one of the scalar types.
func IsPrimitiveType(typeName string) bool {
	switch typeName {
	case TypeString, TypeInt, TypeFloat, TypeBool:
		return true
	}
	return false
}

// Model is an immutable, validated class table.
type Model struct {
	classes map[string]*Class
	roots   []string
}

// Default returns the embedded Reactome model.
func Default() (*Model, error) {
	return Parse(reactomeModel)
}

// Load reads a model from path, or returns the embedded model when path is
// empty.
func Load(path string) (*Model, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a YAML class table.
func Parse(data []byte) (*Model, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	return Build(doc.Classes)
}

// Build validates class definitions and resolves ancestors and attributes.
func Build(defs []ClassDef) (*Model, error) {
	byName := make(map[string]ClassDef, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("class with empty name")
		}
		if _, exists := byName[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClass, name)
		}
		byName[name] = def
	}

	m := &Model{classes: make(map[string]*Class, len(defs))}
	for name, def := range byName {
		if def.Parent == "" {
			m.roots = append(m.roots, name)
			continue
		}
		if _, ok := byName[def.Parent]; !ok {
			return nil, fmt.Errorf("%w: %s extends %s", ErrUnknownParent, name, def.Parent)
		}
	}
	if len(defs) > 0 && len(m.roots) == 0 {
		return nil, ErrNoRoot
	}
	sort.Strings(m.roots)

	for name := range byName {
		chain, err := ancestorChain(name, byName)
		if err != nil {
			return nil, err
		}
		attrs, err := collectAttributes(chain, byName)
		if err != nil {
			return nil, err
		}
		m.classes[name] = &Class{
			Name:       name,
			Parent:     byName[name].Parent,
			Ancestors:  chain,
			Attributes: attrs,
		}
	}
	return m, nil
}

func ancestorChain(name string, byName map[string]ClassDef) ([]string, error) {
	var chain []string
	seen := make(map[string]bool)
	for current := name; current != ""; current = byName[current].Parent {
		if seen[current] {
			return nil, fmt.Errorf("%w: %s", ErrInheritanceCycle, strings.Join(append(chain, current), " -> "))
		}
		seen[current] = true
		chain = append(chain, current)
	}
	return chain, nil
}

// collectAttributes walks the chain root first so subclasses override.
func collectAttributes(chain []string, byName map[string]ClassDef) ([]Attribute, error) {
	merged := make(map[string]Attribute)
	for i := len(chain) - 1; i >= 0; i-- {
		for _, attr := range byName[chain[i]].Attributes {
			if attr.Name == "" {
				return nil, fmt.Errorf("class %s declares an attribute without a name", chain[i])
			}
			if !IsPrimitiveType(attr.Type) {
				if _, ok := byName[attr.Type]; !ok {
					return nil, fmt.Errorf("%w: %s.%s has type %q", ErrUnknownType, chain[i], attr.Name, attr.Type)
				}
			}
			merged[attr.Name] = attr
		}
	}
	attrs := make([]Attribute, 0, len(merged))
	for _, attr := range merged {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
	return attrs, nil
}

// Class returns the resolved class or false when the model does not know it.
func (m *Model) Class(name string) (*Class, bool) {
	c, ok := m.classes[name]
	return c, ok
}

// IsEntity reports whether typeName names a class, i.e. values of that type
// are references to other instances.
func (m *Model) IsEntity(typeName string) bool {
	_, ok := m.classes[typeName]
	return ok
}

// Roots returns the classes without a parent.
func (m *Model) Roots() []string {
	return append([]string(nil), m.roots...)
}

// ClassNames returns every class name, sorted.
func (m *Model) ClassNames() []string {
	names := make([]string, 0, len(m.classes))
	for name := range m.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of classes.
func (m *Model) Len() int { return len(m.classes) }
