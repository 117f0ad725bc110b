// Package storage is the on-disk property graph produced by an import run.
//
// The store is a BadgerDB key space holding nodes, relationships, a label
// index, adjacency indexes, persisted schema (unique constraints and
// property indexes) and run metadata. It is written once by a BulkInserter
// and then read back by lookups, statistics and the Neo4j JSON export.
//
// Example Usage:
//
//	engine, err := storage.NewBadgerEngine("./data/graph")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	bulk := storage.NewBulkInserter(engine, runID)
//	p, _ := bulk.CreateNode([]string{"Pathway", "Event", "DatabaseObject"},
//		map[string]any{"dbId": int64(100), "displayName": "Apoptosis"})
//	r, _ := bulk.CreateNode([]string{"Reaction", "ReactionLikeEvent", "Event", "DatabaseObject"},
//		map[string]any{"dbId": int64(200)})
//	_ = bulk.CreateRelationship(p, r, "hasEvent", map[string]any{"cardinality": int64(1)})
//	_ = bulk.CreateDeferredUniqueConstraint("Pathway", "dbId")
//	_ = bulk.Finalize()
//
//	nodes, _ := engine.FindNodesByProperty("Pathway", "dbId", 100)
package storage

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrInvalidEdge   = errors.New("invalid edge: start or end node not found")
	ErrStorageClosed = errors.New("storage closed")

	// ErrLoadSealed is returned by a BulkInserter once schema creation has
	// started; nodes and relationships can no longer be added.
	ErrLoadSealed = errors.New("bulk load sealed")
)

// NodeID is the store-assigned identifier of a node.
type NodeID string

// EdgeID is the store-assigned identifier of a relationship.
type EdgeID string

// Node is a labelled property graph node.
//
// Properties hold string, int64, float64, bool or []string values.
type Node struct {
	ID         NodeID         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// HasLabel reports whether the node carries label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Edge is a directed, typed relationship.
type Edge struct {
	ID         EdgeID         `json:"id"`
	StartNode  NodeID         `json:"startNode"`
	EndNode    NodeID         `json:"endNode"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Neo4jExport represents the Neo4j JSON export format.
// This is compatible with `neo4j-admin database dump` JSON output.
type Neo4jExport struct {
	Nodes         []Neo4jNode         `json:"nodes"`
	Relationships []Neo4jRelationship `json:"relationships"`
}

// Neo4jNode is the Neo4j JSON export format for nodes.
type Neo4jNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// Neo4jRelationship is the Neo4j JSON export format for relationships.
type Neo4jRelationship struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	StartNode  string         `json:"startNode"`
	EndNode    string         `json:"endNode"`
}

// ToNeo4jExport converts nodes and edges to the Neo4j JSON export format.
func ToNeo4jExport(nodes []*Node, edges []*Edge) *Neo4jExport {
	export := &Neo4jExport{
		Nodes:         make([]Neo4jNode, len(nodes)),
		Relationships: make([]Neo4jRelationship, len(edges)),
	}

	for i, n := range nodes {
		export.Nodes[i] = Neo4jNode{
			ID:         string(n.ID),
			Labels:     n.Labels,
			Properties: n.Properties,
		}
	}

	for i, e := range edges {
		export.Relationships[i] = Neo4jRelationship{
			ID:         string(e.ID),
			StartNode:  string(e.StartNode),
			EndNode:    string(e.EndNode),
			Type:       e.Type,
			Properties: e.Properties,
		}
	}

	return export
}
