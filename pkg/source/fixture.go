package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML form of a MemorySource:
//
//	roots: [100]
//	validAttributes:
//	  Pathway: [hasEvent, name]
//	instances:
//	  - dbId: 100
//	    class: Pathway
//	    displayName: Signaling
//	    attributes:
//	      name: [Signaling]
//	      hasEvent: [{ref: 200}, {ref: 200}]
type Fixture struct {
	Roots           []int64             `yaml:"roots,omitempty"`
	ValidAttributes map[string][]string `yaml:"validAttributes,omitempty"`
	Instances       []FixtureInstance   `yaml:"instances"`
}

// FixtureInstance is one record of a Fixture.
type FixtureInstance struct {
	DBID        int64                  `yaml:"dbId"`
	Class       string                 `yaml:"class"`
	DisplayName string                 `yaml:"displayName,omitempty"`
	Attributes  map[string][]yaml.Node `yaml:"attributes,omitempty"`
}

type fixtureRef struct {
	Ref *int64 `yaml:"ref"`
}

// LoadFixture reads a fixture file into a MemorySource.
func LoadFixture(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	src, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return src, nil
}

// ParseFixture decodes fixture YAML. References may point forward.
func ParseFixture(data []byte) (*MemorySource, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}

	src := NewMemorySource()
	for _, fi := range fx.Instances {
		if fi.Class == "" {
			return nil, fmt.Errorf("instance %d has no class", fi.DBID)
		}
		if _, exists := src.Get(fi.DBID); exists {
			return nil, fmt.Errorf("instance %d declared twice", fi.DBID)
		}
		src.Add(fi.DBID, fi.Class, fi.DisplayName)
	}

	for _, fi := range fx.Instances {
		inst, _ := src.Get(fi.DBID)
		for attr, nodes := range fi.Attributes {
			values := make([]any, 0, len(nodes))
			for _, node := range nodes {
				v, err := decodeFixtureValue(src, &node)
				if err != nil {
					return nil, fmt.Errorf("instance %d attribute %s: %w", fi.DBID, attr, err)
				}
				values = append(values, v)
			}
			inst.Set(attr, values...)
		}
	}

	for class, names := range fx.ValidAttributes {
		src.RestrictAttributes(class, names...)
	}
	src.SetRoots(fx.Roots...)
	return src, nil
}

func decodeFixtureValue(src *MemorySource, node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		var ref fixtureRef
		if err := node.Decode(&ref); err != nil {
			return nil, err
		}
		if ref.Ref == nil {
			return nil, fmt.Errorf("mapping value without ref at line %d", node.Line)
		}
		target, ok := src.Get(*ref.Ref)
		if !ok {
			return nil, fmt.Errorf("ref %d: %w", *ref.Ref, ErrUnknownInstance)
		}
		return target, nil
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return nil, nil
		case "!!int":
			var v int64
			err := node.Decode(&v)
			return v, err
		case "!!float":
			var v float64
			err := node.Decode(&v)
			return v, err
		case "!!bool":
			var v bool
			err := node.Decode(&v)
			return v, err
		default:
			return node.Value, nil
		}
	default:
		return nil, fmt.Errorf("unsupported value at line %d", node.Line)
	}
}
