package importer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/pathwaygraph/pkg/source"
	"github.com/orneryd/pathwaygraph/pkg/storage"
)

func TestAggregate(t *testing.T) {
	src := source.NewMemorySource()
	e1 := src.Add(300, "SimpleEntity", "E1")
	e2 := src.Add(301, "SimpleEntity", "E2")

	tests := []struct {
		name   string
		values []any
		want   []Group
	}{
		{"empty", nil, []Group{}},
		{"single", []any{e1}, []Group{{Instance: e1, Count: 1}}},
		{"repeats", []any{e1, e2, e1}, []Group{{Instance: e1, Count: 2}, {Instance: e2, Count: 1}}},
		{"first seen order", []any{e2, e1, e1}, []Group{{Instance: e2, Count: 1}, {Instance: e1, Count: 2}}},
		{"non instances ignored", []any{nil, "x", int64(3), e1}, []Group{{Instance: e1, Count: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.values))
		})
	}
}

func TestAggregate_GroupsByIdentity(t *testing.T) {
	// Two handles for the same record collapse into one group; the first
	// handle represents it.
	a := source.NewMemorySource().Add(7, "Complex", "from a")
	b := source.NewMemorySource().Add(7, "Complex", "from b")

	groups := Aggregate([]any{a, b})
	require.Len(t, groups, 1)
	assert.Same(t, a, groups[0].Instance)
	assert.Equal(t, 2, groups[0].Count)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(1)
	assert.False(t, ok)

	r.Register(1, "n1")
	r.Register(1, "n2")
	id, ok := r.Lookup(1)
	assert.True(t, ok)
	assert.Equal(t, storage.NodeID("n1"), id)
	assert.Equal(t, 1, r.Len())
}

type failingSchemaLoader struct {
	recordingLoader
	failLabel string
}

func (l *failingSchemaLoader) CreateDeferredUniqueConstraint(label, property string) error {
	if label == l.failLabel {
		return errors.New("duplicate value")
	}
	return l.recordingLoader.CreateDeferredUniqueConstraint(label, property)
}

func (l *failingSchemaLoader) CreateIndex(label, property string) error {
	if label == l.failLabel {
		return errors.New("index failed")
	}
	return l.recordingLoader.CreateIndex(label, property)
}

func TestConstraintManager_Apply(t *testing.T) {
	loader := &failingSchemaLoader{failLabel: "ReferenceSequence"}
	report := NewConstraintManager(nil, nil, nil).Apply(loader)

	assert.Equal(t, 23, report.Applied)
	require.Len(t, report.Failures, 3)
	assert.Equal(t, ConstraintFailure{Kind: KindUnique, Label: "ReferenceSequence", Property: "dbId", Err: report.Failures[0].Err}, report.Failures[0])
	assert.Equal(t, KindIndex, report.Failures[2].Kind)
	assert.Equal(t, []LabelProperty{{Label: "ReferenceEntity", Property: "identifier"}}, loader.indexes)
}

func TestConstraintManager_CustomLists(t *testing.T) {
	loader := &recordingLoader{}
	cm := NewConstraintManager(
		[]LabelProperty{{Label: "Pathway", Property: "dbId"}},
		[]LabelProperty{},
		nil,
	)
	report := cm.Apply(loader)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, []LabelProperty{{Label: "Pathway", Property: "dbId"}}, loader.unique)
	assert.Empty(t, loader.indexes)
}

func TestDefaultUniqueConstraints(t *testing.T) {
	defaults := DefaultUniqueConstraints()
	assert.Len(t, defaults, 24)
	assert.Contains(t, defaults, LabelProperty{Label: "EntityWithAccessionedSequence", Property: "stableIdentifier"})
	assert.Contains(t, defaults, LabelProperty{Label: "DatabaseObject", Property: "dbId"})
}
