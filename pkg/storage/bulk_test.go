package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestEngine(t *testing.T) (*BadgerEngine, string) {
	t.Helper()
	dir := t.TempDir()
	engine, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine, dir
}

// loadPathway writes Pathway(100) -hasEvent-> Reaction(200) x2.
func loadPathway(t *testing.T, bulk *BulkInserter) (NodeID, NodeID) {
	t.Helper()
	p, err := bulk.CreateNode([]string{"Pathway", "Event", "DatabaseObject"}, map[string]any{
		"dbId":        100,
		"displayName": "Apoptosis",
		"name":        []string{"Apoptosis", "Programmed cell death"},
	})
	require.NoError(t, err)
	r, err := bulk.CreateNode([]string{"Reaction", "ReactionLikeEvent", "Event", "DatabaseObject"}, map[string]any{
		"dbId":        int64(200),
		"isInDisease": false,
	})
	require.NoError(t, err)
	err = bulk.CreateRelationship(p, r, "hasEvent", map[string]any{"cardinality": 2})
	require.NoError(t, err)
	return p, r
}

func TestBulkInserter_WritesGraph(t *testing.T) {
	engine, _ := setupTestEngine(t)
	bulk := NewBulkInserter(engine, "run-1")
	p, r := loadPathway(t, bulk)
	require.NoError(t, bulk.Finalize())

	pathway, err := engine.GetNode(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pathway", "Event", "DatabaseObject"}, pathway.Labels)
	assert.Equal(t, int64(100), pathway.Properties["dbId"])
	assert.Equal(t, "Apoptosis", pathway.Properties["displayName"])
	assert.Equal(t, []string{"Apoptosis", "Programmed cell death"}, pathway.Properties["name"])

	reaction, err := engine.GetNode(r)
	require.NoError(t, err)
	assert.Equal(t, false, reaction.Properties["isInDisease"])

	out, err := engine.GetOutgoingEdges(p)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hasEvent", out[0].Type)
	assert.Equal(t, r, out[0].EndNode)
	assert.Equal(t, int64(2), out[0].Properties["cardinality"])

	in, err := engine.GetIncomingEdges(r)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, out[0].ID, in[0].ID)

	events, err := engine.GetNodesByLabel("Event")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	nodes, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), nodes)
	edges, err := engine.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), edges)
}

func TestBulkInserter_LabelScanIsCaseSensitive(t *testing.T) {
	engine, _ := setupTestEngine(t)
	bulk := NewBulkInserter(engine, "run-1")
	_, err := bulk.CreateNode([]string{"Complex"}, nil)
	require.NoError(t, err)
	_, err = bulk.CreateNode([]string{"complex"}, nil)
	require.NoError(t, err)
	require.NoError(t, bulk.Finalize())

	nodes, err := engine.GetNodesByLabel("Complex")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestBulkInserter_RejectsInvalidInput(t *testing.T) {
	engine, _ := setupTestEngine(t)
	bulk := NewBulkInserter(engine, "run-1")

	_, err := bulk.CreateNode(nil, map[string]any{"dbId": 1})
	assert.ErrorIs(t, err, ErrInvalidData)

	a, err := bulk.CreateNode([]string{"Pathway"}, nil)
	require.NoError(t, err)

	err = bulk.CreateRelationship(a, "99", "hasEvent", nil)
	assert.ErrorIs(t, err, ErrInvalidEdge)
	err = bulk.CreateRelationship(a, a, "", nil)
	assert.ErrorIs(t, err, ErrInvalidData)

	// Self loops are legal.
	err = bulk.CreateRelationship(a, a, "precedingEvent", nil)
	assert.NoError(t, err)
}

func TestBulkInserter_SealedAfterSchema(t *testing.T) {
	engine, _ := setupTestEngine(t)
	bulk := NewBulkInserter(engine, "run-1")
	p, r := loadPathway(t, bulk)

	require.NoError(t, bulk.CreateIndex("Pathway", "dbId"))

	_, err := bulk.CreateNode([]string{"Pathway"}, nil)
	assert.ErrorIs(t, err, ErrLoadSealed)
	err = bulk.CreateRelationship(p, r, "hasEvent", nil)
	assert.ErrorIs(t, err, ErrLoadSealed)

	require.NoError(t, bulk.Finalize())
	require.NoError(t, bulk.Finalize())
}

func TestBulkInserter_Metadata(t *testing.T) {
	engine, dir := setupTestEngine(t)

	_, err := engine.Metadata()
	assert.True(t, errors.Is(err, ErrNotFound))

	bulk := NewBulkInserter(engine, "run-42")
	loadPathway(t, bulk)
	require.NoError(t, bulk.Finalize())

	nodes, rels := bulk.Counts()
	assert.Equal(t, int64(2), nodes)
	assert.Equal(t, int64(1), rels)

	require.NoError(t, engine.Close())
	reopened, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	defer reopened.Close()

	meta, err := reopened.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "run-42", meta.RunID)
	assert.Equal(t, int64(2), meta.Nodes)
	assert.Equal(t, int64(1), meta.Relationships)
	assert.Equal(t, map[string]int64{"Pathway": 1, "Reaction": 1}, meta.NodesByLabel)
	assert.Equal(t, map[string]int64{"hasEvent": 1}, meta.EdgesByType)
	assert.False(t, meta.FinishedAt.Before(meta.StartedAt))
	assert.True(t, meta.Complete)
	assert.Empty(t, meta.Error)
}

func TestBulkInserter_AbortRecordsIncompleteRun(t *testing.T) {
	engine, _ := setupTestEngine(t)
	bulk := NewBulkInserter(engine, "run-7")
	loadPathway(t, bulk)

	require.NoError(t, bulk.Abort(errors.New("source went away")))
	require.NoError(t, bulk.Finalize(), "finalize after abort is a no-op")

	meta, err := engine.Metadata()
	require.NoError(t, err)
	assert.False(t, meta.Complete)
	assert.Equal(t, "source went away", meta.Error)
	assert.Equal(t, int64(2), meta.Nodes)

	count, err := engine.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "partial data is flushed for inspection")
	assert.Empty(t, engine.GetSchema().GetConstraints())
}

func TestBadgerEngine_FloatPropertiesKeepType(t *testing.T) {
	engine, _ := setupTestEngine(t)
	bulk := NewBulkInserter(engine, "run-f")
	id, err := bulk.CreateNode([]string{"Polymer"}, map[string]any{
		"dbId":   int64(5),
		"weight": 3.0,
		"ratio":  0.25,
		"huge":   1e300,
		"large":  1e15,
	})
	require.NoError(t, err)
	require.NoError(t, bulk.Finalize())

	node, err := engine.GetNode(id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), node.Properties["dbId"])
	assert.Equal(t, 3.0, node.Properties["weight"])
	assert.Equal(t, 0.25, node.Properties["ratio"])
	assert.Equal(t, 1e300, node.Properties["huge"])
	assert.Equal(t, 1e15, node.Properties["large"])

	var buf bytes.Buffer
	require.NoError(t, engine.WriteNeo4jExport(&buf))
	assert.Contains(t, buf.String(), `"weight": 3.0`)
	assert.Contains(t, buf.String(), `"dbId": 5`)

	found, err := engine.FindNodesByProperty("Polymer", "weight", int64(3))
	require.NoError(t, err)
	assert.Len(t, found, 1, "integral floats still match integer lookups")
}

func TestBadgerEngine_CountsAndExport(t *testing.T) {
	engine, _ := setupTestEngine(t)
	bulk := NewBulkInserter(engine, "run-1")
	loadPathway(t, bulk)
	require.NoError(t, bulk.Finalize())

	labels, err := engine.LabelCounts()
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{
		{Label: "DatabaseObject", Count: 2},
		{Label: "Event", Count: 2},
		{Label: "Pathway", Count: 1},
		{Label: "Reaction", Count: 1},
		{Label: "ReactionLikeEvent", Count: 1},
	}, labels)

	types, err := engine.EdgeTypeCounts()
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{{Label: "hasEvent", Count: 1}}, types)

	var buf bytes.Buffer
	require.NoError(t, engine.WriteNeo4jExport(&buf))

	var export Neo4jExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Len(t, export.Nodes, 2)
	require.Len(t, export.Relationships, 1)
	assert.Equal(t, "hasEvent", export.Relationships[0].Type)
	assert.EqualValues(t, 2, export.Relationships[0].Properties["cardinality"])
}

func TestBadgerEngine_Closed(t *testing.T) {
	engine, _ := setupTestEngine(t)
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	_, err := engine.GetNode("1")
	assert.ErrorIs(t, err, ErrStorageClosed)
	_, err = engine.NodeCount()
	assert.ErrorIs(t, err, ErrStorageClosed)
}

func TestCleanDataDir(t *testing.T) {
	assert.Error(t, CleanDataDir(""))
	assert.Error(t, CleanDataDir("/"))

	engine, dir := setupTestEngine(t)
	bulk := NewBulkInserter(engine, "run-1")
	loadPathway(t, bulk)
	require.NoError(t, bulk.Finalize())
	require.NoError(t, engine.Close())

	require.NoError(t, CleanDataDir(dir))
	fresh, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	defer fresh.Close()
	n, err := fresh.NodeCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}
