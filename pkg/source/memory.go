package source

import (
	"context"
	"fmt"
	"sort"
)

// MemorySource keeps a whole instance graph in memory. It backs the YAML
// fixture driver and the importer tests.
type MemorySource struct {
	instances map[int64]*MemInstance
	order     []int64
	roots     []int64

	// class -> declared attributes; classes absent here accept everything.
	valid map[string]map[string]bool
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		instances: make(map[int64]*MemInstance),
		valid:     make(map[string]map[string]bool),
	}
}

// Add registers a new instance. Adding an existing id returns the existing
// instance unchanged.
func (s *MemorySource) Add(dbID int64, class, displayName string) *MemInstance {
	if inst, ok := s.instances[dbID]; ok {
		return inst
	}
	inst := &MemInstance{
		id:          dbID,
		class:       class,
		displayName: displayName,
		attrs:       make(map[string][]any),
		failures:    make(map[string]error),
		src:         s,
	}
	s.instances[dbID] = inst
	s.order = append(s.order, dbID)
	return inst
}

// Get returns the instance with the given id.
func (s *MemorySource) Get(dbID int64) (*MemInstance, bool) {
	inst, ok := s.instances[dbID]
	return inst, ok
}

// Len returns the number of instances.
func (s *MemorySource) Len() int { return len(s.instances) }

// SetRoots fixes the root ids. Without roots the FrontPage items are used.
func (s *MemorySource) SetRoots(ids ...int64) {
	s.roots = append([]int64(nil), ids...)
}

// RestrictAttributes declares the attributes the live class accepts. Reads
// of anything else fail with ErrInvalidAttribute.
func (s *MemorySource) RestrictAttributes(class string, names ...string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	s.valid[class] = set
}

// Roots implements Source.
func (s *MemorySource) Roots(ctx context.Context) ([]Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.roots) > 0 {
		roots := make([]Instance, 0, len(s.roots))
		for _, id := range s.roots {
			inst, ok := s.instances[id]
			if !ok {
				return nil, fmt.Errorf("root %d: %w", id, ErrUnknownInstance)
			}
			roots = append(roots, inst)
		}
		return roots, nil
	}

	for _, id := range s.order {
		inst := s.instances[id]
		if inst.class != FrontPageClass {
			continue
		}
		items := inst.attrs[FrontPageAttribute]
		roots := make([]Instance, 0, len(items))
		for _, v := range items {
			if ref, ok := v.(Instance); ok {
				roots = append(roots, ref)
			}
		}
		if len(roots) > 0 {
			return roots, nil
		}
	}
	return nil, ErrNoRoots
}

// Close implements Source.
func (s *MemorySource) Close() error { return nil }

func (s *MemorySource) accepts(class, attr string) bool {
	set, ok := s.valid[class]
	if !ok {
		return true
	}
	return set[attr]
}

// MemInstance is an Instance held by a MemorySource.
type MemInstance struct {
	id          int64
	class       string
	displayName string
	attrs       map[string][]any
	failures    map[string]error
	released    int
	src         *MemorySource
}

// Set replaces the values of an attribute. Values are scalars or instances
// of the same source.
func (i *MemInstance) Set(name string, values ...any) *MemInstance {
	i.attrs[name] = append([]any(nil), values...)
	return i
}

// Fail makes every read of name return err.
func (i *MemInstance) Fail(name string, err error) *MemInstance {
	i.failures[name] = err
	return i
}

// Released reports how many times Release was called.
func (i *MemInstance) Released() int { return i.released }

func (i *MemInstance) DBID() int64         { return i.id }
func (i *MemInstance) SchemaClass() string { return i.class }
func (i *MemInstance) DisplayName() string { return i.displayName }

func (i *MemInstance) IsValidAttribute(name string) bool {
	return i.src.accepts(i.class, name)
}

func (i *MemInstance) Value(name string) (any, error) {
	values, err := i.Values(name)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

func (i *MemInstance) Values(name string) ([]any, error) {
	if !i.IsValidAttribute(name) {
		return nil, fmt.Errorf("%s is not a valid attribute for %s: %w", name, i.class, ErrInvalidAttribute)
	}
	if err, ok := i.failures[name]; ok {
		return nil, err
	}
	return append([]any(nil), i.attrs[name]...), nil
}

// Referrers scans the whole source; results are ordered by id.
func (i *MemInstance) Referrers(name string) ([]Instance, error) {
	var ids []int64
	for id, other := range i.src.instances {
		for _, v := range other.attrs[name] {
			if ref, ok := v.(Instance); ok && ref.DBID() == i.id {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	out := make([]Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, i.src.instances[id])
	}
	return out, nil
}

func (i *MemInstance) Release() { i.released++ }
