package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/orneryd/pathwaygraph/pkg/logging"
	"github.com/orneryd/pathwaygraph/pkg/model"
)

func TestClassify(t *testing.T) {
	cs := Classify("Reaction", []string{"Reaction", "ReactionLikeEvent", "Event", "DatabaseObject"}, []Accessor{
		{Name: "dbId"},
		{Name: "displayName"},
		{Name: "timestamp"},
		{Name: "output", Many: true, Entity: true},
		{Name: "input", Many: true, Entity: true},
		{Name: "normalReaction", Entity: true},
		{Name: "name", Many: true},
		{Name: "isChimeric"},
		{Name: "doi"},
	})

	assert.Equal(t, "Reaction", cs.Name)
	assert.Equal(t, []string{"Reaction", "ReactionLikeEvent", "Event", "DatabaseObject"}, cs.Labels)
	assert.Equal(t, []string{"doi", "isChimeric"}, cs.Primitives)
	assert.Equal(t, []string{"name"}, cs.PrimitiveLists)
	assert.Equal(t, []string{"input", "normalReaction", "output"}, cs.Relations)
}

func TestClassify_NoAccessors(t *testing.T) {
	cs := Classify("Lonely", nil, nil)
	assert.Equal(t, []string{"Lonely"}, cs.Labels)
	assert.Empty(t, cs.Primitives)
	assert.Empty(t, cs.PrimitiveLists)
	assert.Empty(t, cs.Relations)
}

func TestCatalog_LookupReactome(t *testing.T) {
	m, err := model.Default()
	require.NoError(t, err)
	c := NewCatalog(m, nil)

	complexSchema := c.Lookup("Complex")
	assert.ElementsMatch(t, []string{"Complex", "PhysicalEntity", "DatabaseObject"}, complexSchema.Labels)
	assert.Contains(t, complexSchema.Relations, "hasComponent")
	assert.Contains(t, complexSchema.Relations, "compartment")
	assert.Contains(t, complexSchema.Primitives, "stableIdentifier")
	assert.Contains(t, complexSchema.PrimitiveLists, "name")
	assert.NotContains(t, complexSchema.Primitives, "dbId")
	assert.NotContains(t, complexSchema.Primitives, "displayName")

	rle := c.Lookup("Reaction")
	assert.Contains(t, rle.Relations, "regulatedBy")
	assert.Contains(t, rle.Relations, "output")

	// Second lookup is served from the cache.
	assert.Same(t, complexSchema, c.Lookup("Complex"))
	assert.Equal(t, 2, c.Len())
}

func TestCatalog_UnknownClassWarnsOnce(t *testing.T) {
	m, err := model.Default()
	require.NoError(t, err)
	core, logs := observer.New(zapcore.WarnLevel)
	c := NewCatalog(m, logging.NewWithCore(core))

	first := c.Lookup("MysteryClass")
	second := c.Lookup("MysteryClass")

	assert.Same(t, first, second)
	assert.Equal(t, []string{"MysteryClass"}, first.Labels)
	assert.Empty(t, first.Relations)
	assert.Equal(t, 1, logs.FilterField(zap.String("class", "MysteryClass")).Len())
}
