package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySource_ExplicitRoots(t *testing.T) {
	src := NewMemorySource()
	p := src.Add(100, "Pathway", "P1")
	src.Add(200, "Reaction", "R1")
	src.SetRoots(100)

	roots, err := src.Roots(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Same(t, p, roots[0])

	src.SetRoots(999)
	_, err = src.Roots(context.Background())
	assert.ErrorIs(t, err, ErrUnknownInstance)
}

func TestMemorySource_FrontPageRoots(t *testing.T) {
	src := NewMemorySource()
	p1 := src.Add(1, "TopLevelPathway", "Signal Transduction")
	p2 := src.Add(2, "TopLevelPathway", "Metabolism")
	src.Add(10, FrontPageClass, "FrontPage").Set(FrontPageAttribute, p1, p2)

	roots, err := src.Roots(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, int64(1), roots[0].DBID())
	assert.Equal(t, int64(2), roots[1].DBID())
}

func TestMemorySource_NoRoots(t *testing.T) {
	src := NewMemorySource()
	src.Add(1, "Pathway", "orphan")
	_, err := src.Roots(context.Background())
	assert.ErrorIs(t, err, ErrNoRoots)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Roots(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemInstance_Reads(t *testing.T) {
	src := NewMemorySource()
	e := src.Add(300, "SimpleEntity", "ATP")
	r := src.Add(200, "Reaction", "R1").
		Set("output", e, e).
		Set("isChimeric", false).
		Fail("input", errors.New("disk on fire"))
	src.RestrictAttributes("Reaction", "output", "isChimeric", "input")

	v, err := r.Value("isChimeric")
	require.NoError(t, err)
	assert.Equal(t, false, v)

	values, err := r.Values("output")
	require.NoError(t, err)
	assert.Len(t, values, 2)

	none, err := r.Value("output2")
	assert.ErrorIs(t, err, ErrInvalidAttribute)
	assert.Nil(t, none)
	assert.False(t, r.IsValidAttribute("regulatedBy"))

	_, err = r.Values("input")
	assert.EqualError(t, err, "disk on fire")

	// Unrestricted classes accept anything; missing values read as nil.
	v, err = e.Value("formula")
	require.NoError(t, err)
	assert.Nil(t, v)

	r.Release()
	assert.Equal(t, 1, r.Released())
}

func TestMemInstance_Referrers(t *testing.T) {
	src := NewMemorySource()
	target := src.Add(200, "Reaction", "R1")
	src.Add(501, "NegativeRegulation", "neg").Set("regulatedEntity", target)
	src.Add(500, "PositiveRegulation", "pos").Set("regulatedEntity", target, target)
	src.Add(502, "PositiveRegulation", "other")

	refs, err := target.Referrers("regulatedEntity")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, int64(500), refs[0].DBID())
	assert.Equal(t, int64(501), refs[1].DBID())
}

func TestParseFixture(t *testing.T) {
	src, err := ParseFixture([]byte(`
roots: [100]
validAttributes:
  Pathway: [hasEvent, name, hasDiagram]
instances:
  - dbId: 100
    class: Pathway
    displayName: P1
    attributes:
      name: [Pathway one, ~]
      hasDiagram: [true]
      hasEvent: [{ref: 200}]
  - dbId: 200
    class: Reaction
    displayName: R1
    attributes:
      output: [{ref: 300}, {ref: 300}, {ref: 301}]
      diagramWidth: [12]
      score: [0.5]
  - dbId: 300
    class: SimpleEntity
    displayName: E1
  - dbId: 301
    class: SimpleEntity
`))
	require.NoError(t, err)
	assert.Equal(t, 4, src.Len())

	roots, err := src.Roots(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 1)

	p := roots[0]
	names, err := p.Values("name")
	require.NoError(t, err)
	assert.Equal(t, []any{"Pathway one", nil}, names)
	diagram, err := p.Value("hasDiagram")
	require.NoError(t, err)
	assert.Equal(t, true, diagram)
	assert.False(t, p.IsValidAttribute("output"))

	r, _ := src.Get(200)
	outputs, err := r.Values("output")
	require.NoError(t, err)
	require.Len(t, outputs, 3)
	assert.Equal(t, int64(300), outputs[0].(Instance).DBID())
	width, _ := r.Value("diagramWidth")
	assert.Equal(t, int64(12), width)
	score, _ := r.Value("score")
	assert.Equal(t, 0.5, score)

	e2, _ := src.Get(301)
	assert.Equal(t, "", e2.DisplayName())
}

func TestParseFixture_Errors(t *testing.T) {
	_, err := ParseFixture([]byte(`
instances:
  - dbId: 1
    class: Pathway
    attributes:
      hasEvent: [{ref: 2}]
`))
	assert.ErrorIs(t, err, ErrUnknownInstance)

	_, err = ParseFixture([]byte(`
instances:
  - dbId: 1
    class: Pathway
  - dbId: 1
    class: Reaction
`))
	assert.Error(t, err)

	_, err = ParseFixture([]byte(`
instances:
  - dbId: 1
`))
	assert.Error(t, err)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instances:\n  - {dbId: 7, class: Pathway, displayName: P}\nroots: [7]\n"), 0644))

	src, err := LoadFixture(path)
	require.NoError(t, err)
	roots, err := src.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "P", roots[0].DisplayName())

	_, err = LoadFixture(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
