// Package storage schema management for constraints and indexes.
//
// Schema objects are created only after the bulk load, validated against the
// data already on disk, and persisted next to it so later readers (lookups,
// stats) see the same constraints and indexes.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/pathwaygraph/pkg/convert"
)

// ConstraintType represents the type of constraint.
type ConstraintType string

const (
	ConstraintUnique ConstraintType = "UNIQUE"
)

// Schema entry kinds inside the prefixSchema key space.
const (
	schemaKindConstraint = byte('c')
	schemaKindIndex      = byte('i')
)

// Constraint represents a Neo4j-compatible schema constraint.
type Constraint struct {
	Name       string         `json:"name"`
	Type       ConstraintType `json:"type"`
	Label      string         `json:"label"`
	Properties []string       `json:"properties"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// PropertyIndex is a persisted single-property index.
type PropertyIndex struct {
	Name         string    `json:"name"`
	Label        string    `json:"label"`
	Property     string    `json:"property"`
	TotalEntries int64     `json:"totalEntries"`
	UniqueValues int64     `json:"uniqueValues"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IndexStats represents statistics about an index.
type IndexStats struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Label        string  `json:"label"`
	Property     string  `json:"property,omitempty"`
	TotalEntries int64   `json:"totalEntries"`
	UniqueValues int64   `json:"uniqueValues"`
	Selectivity  float64 `json:"selectivity"` // uniqueValues / totalEntries
}

// SchemaManager is the in-memory view of the persisted schema.
type SchemaManager struct {
	mu sync.RWMutex

	constraints     map[string]Constraint     // key: "Label:property"
	propertyIndexes map[string]*PropertyIndex // key: "Label:property"
}

// NewSchemaManager creates an empty schema manager.
func NewSchemaManager() *SchemaManager {
	return &SchemaManager{
		constraints:     make(map[string]Constraint),
		propertyIndexes: make(map[string]*PropertyIndex),
	}
}

func schemaMapKey(label, property string) string {
	return fmt.Sprintf("%s:%s", label, property)
}

// ConstraintName returns the conventional name of a unique constraint.
func ConstraintName(label, property string) string {
	return fmt.Sprintf("constraint_%s_%s_unique", strings.ToLower(label), strings.ToLower(property))
}

// IndexName returns the conventional name of a property index.
func IndexName(label, property string) string {
	return fmt.Sprintf("index_%s_%s", strings.ToLower(label), strings.ToLower(property))
}

// HasUniqueConstraint reports whether (label, property) is constrained.
func (sm *SchemaManager) HasUniqueConstraint(label, property string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	_, ok := sm.constraints[schemaMapKey(label, property)]
	return ok
}

func (sm *SchemaManager) addConstraint(c Constraint) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.constraints[schemaMapKey(c.Label, c.Properties[0])] = c
}

// GetPropertyIndex returns a property index by label and property.
func (sm *SchemaManager) GetPropertyIndex(label, property string) (*PropertyIndex, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	idx, exists := sm.propertyIndexes[schemaMapKey(label, property)]
	return idx, exists
}

func (sm *SchemaManager) addPropertyIndex(idx *PropertyIndex) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.propertyIndexes[schemaMapKey(idx.Label, idx.Property)] = idx
}

// GetConstraints returns all constraints sorted by name.
func (sm *SchemaManager) GetConstraints() []Constraint {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]Constraint, 0, len(sm.constraints))
	for _, c := range sm.constraints {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetIndexStats returns statistics for all property indexes sorted by name.
func (sm *SchemaManager) GetIndexStats() []IndexStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	stats := make([]IndexStats, 0, len(sm.propertyIndexes))
	for _, idx := range sm.propertyIndexes {
		selectivity := float64(0)
		if idx.TotalEntries > 0 {
			selectivity = float64(idx.UniqueValues) / float64(idx.TotalEntries)
		}
		stats = append(stats, IndexStats{
			Name:         idx.Name,
			Type:         "PROPERTY",
			Label:        idx.Label,
			Property:     idx.Property,
			TotalEntries: idx.TotalEntries,
			UniqueValues: idx.UniqueValues,
			Selectivity:  selectivity,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// CompositeKey represents a key composed of multiple property values.
// The key is a hash of all property values in order for efficient lookup.
type CompositeKey struct {
	Hash   string        // SHA256 hash of encoded values (for map lookup)
	Values []interface{} // Original values (for debugging/display)
}

// NewCompositeKey creates a composite key from property values. Values are
// normalised first, so 42, int64(42) and 42.0 hash identically.
func NewCompositeKey(values ...interface{}) CompositeKey {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, convert.Key(v))
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))

	return CompositeKey{
		Hash:   hex.EncodeToString(hash[:]),
		Values: values,
	}
}

// String returns a human-readable representation of the composite key.
func (ck CompositeKey) String() string {
	parts := make([]string, 0, len(ck.Values))
	for _, v := range ck.Values {
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, ", ")
}

// ============================================================================
// Persistence
// ============================================================================

func schemaKey(kind byte, label, property string) []byte {
	key := make([]byte, 0, 2+len(label)+1+len(property))
	key = append(key, prefixSchema, kind)
	key = append(key, []byte(label)...)
	key = append(key, 0x00)
	key = append(key, []byte(property)...)
	return key
}

// propertyIndexValuePrefix covers every node indexed under one value.
func propertyIndexValuePrefix(label, property, valueHash string) []byte {
	key := make([]byte, 0, 1+len(label)+1+len(property)+1+len(valueHash)+1)
	key = append(key, prefixPropertyIndex)
	key = append(key, []byte(label)...)
	key = append(key, 0x00)
	key = append(key, []byte(property)...)
	key = append(key, 0x00)
	key = append(key, []byte(valueHash)...)
	key = append(key, 0x00)
	return key
}

func propertyIndexKey(label, property, valueHash string, nodeID NodeID) []byte {
	return append(propertyIndexValuePrefix(label, property, valueHash), []byte(nodeID)...)
}

func (b *BadgerEngine) loadSchema() error {
	return b.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixSchema}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			kind := item.Key()[1]
			err := item.Value(func(val []byte) error {
				switch kind {
				case schemaKindConstraint:
					var c Constraint
					if err := json.Unmarshal(val, &c); err != nil {
						return err
					}
					if len(c.Properties) == 1 {
						b.schema.addConstraint(c)
					}
				case schemaKindIndex:
					var idx PropertyIndex
					if err := json.Unmarshal(val, &idx); err != nil {
						return err
					}
					b.schema.addPropertyIndex(&idx)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("schema entry %q: %w", item.Key(), err)
			}
		}
		return nil
	})
}

func (b *BadgerEngine) saveSchemaEntry(kind byte, label, property string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(schemaKey(kind, label, property), data)
	})
}

// CreatePropertyIndex indexes (label, property) over the data already
// stored. Creating an existing index is a no-op.
func (b *BadgerEngine) CreatePropertyIndex(label, property string) (*PropertyIndex, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if idx, ok := b.schema.GetPropertyIndex(label, property); ok {
		return idx, nil
	}

	idx := &PropertyIndex{
		Name:      IndexName(label, property),
		Label:     label,
		Property:  property,
		CreatedAt: time.Now().UTC(),
	}
	seen := make(map[string]struct{})

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	err := b.forEachNodeWithLabel(label, func(n *Node) error {
		value, ok := n.Properties[property]
		if !ok || value == nil {
			return nil
		}
		hash := NewCompositeKey(value).Hash
		seen[hash] = struct{}{}
		idx.TotalEntries++
		return wb.Set(propertyIndexKey(label, property, hash, n.ID), []byte{})
	})
	if err != nil {
		return nil, fmt.Errorf("building index %s: %w", idx.Name, err)
	}
	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("building index %s: %w", idx.Name, err)
	}
	idx.UniqueValues = int64(len(seen))

	if err := b.saveSchemaEntry(schemaKindIndex, label, property, idx); err != nil {
		return nil, fmt.Errorf("saving index %s: %w", idx.Name, err)
	}
	b.schema.addPropertyIndex(idx)
	return idx, nil
}

// CreateUniqueConstraint validates that no two nodes with label share a
// value of property, then persists the constraint with its backing index.
// A violation returns a *ConstraintViolationError and leaves the schema
// unchanged. Creating an existing constraint is a no-op.
func (b *BadgerEngine) CreateUniqueConstraint(label, property string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.schema.HasUniqueConstraint(label, property) {
		return nil
	}

	c := Constraint{
		Name:       ConstraintName(label, property),
		Type:       ConstraintUnique,
		Label:      label,
		Properties: []string{property},
		CreatedAt:  time.Now().UTC(),
	}
	if err := b.ValidateConstraintOnCreation(c); err != nil {
		return err
	}
	if _, err := b.CreatePropertyIndex(label, property); err != nil {
		return err
	}
	if err := b.saveSchemaEntry(schemaKindConstraint, label, property, c); err != nil {
		return fmt.Errorf("saving constraint %s: %w", c.Name, err)
	}
	b.schema.addConstraint(c)
	return nil
}

// FindNodesByProperty returns the nodes with label whose property equals
// value. An index on (label, property) is used when one exists, otherwise
// the label is scanned.
func (b *BadgerEngine) FindNodesByProperty(label, property string, value any) ([]*Node, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	want := NewCompositeKey(value).Hash

	if _, ok := b.schema.GetPropertyIndex(label, property); !ok {
		var nodes []*Node
		err := b.forEachNodeWithLabel(label, func(n *Node) error {
			if v, ok := n.Properties[property]; ok && v != nil && NewCompositeKey(v).Hash == want {
				nodes = append(nodes, n)
			}
			return nil
		})
		return nodes, err
	}

	var ids []NodeID
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := propertyIndexValuePrefix(label, property, want)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, NodeID(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		n, err := b.GetNode(id)
		if err != nil {
			return nil, fmt.Errorf("index %s points at node %s: %w", IndexName(label, property), id, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
