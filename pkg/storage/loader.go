// Package storage - Neo4j JSON export of a finished store.
//
// The combined export format holds nodes and relationships in one document:
//
//	{
//	  "nodes": [{"id":"1","labels":["Pathway","Event","DatabaseObject"],"properties":{"dbId":100}}],
//	  "relationships": [{"id":"1","type":"hasEvent","startNode":"1","endNode":"2","properties":{"cardinality":1}}]
//	}
package storage

import (
	"encoding/json"
	"fmt"
	"io"
)

// ExportNeo4j reads the whole store into the Neo4j export format.
func (b *BadgerEngine) ExportNeo4j() (*Neo4jExport, error) {
	nodes, err := b.AllNodes()
	if err != nil {
		return nil, fmt.Errorf("getting nodes: %w", err)
	}
	edges, err := b.AllEdges()
	if err != nil {
		return nil, fmt.Errorf("getting edges: %w", err)
	}
	return ToNeo4jExport(nodes, edges), nil
}

// WriteNeo4jExport writes the store as indented Neo4j export JSON to w.
// Integral floats keep their decimal point.
func (b *BadgerEngine) WriteNeo4jExport(w io.Writer) error {
	export, err := b.ExportNeo4j()
	if err != nil {
		return err
	}

	for i := range export.Nodes {
		export.Nodes[i].Properties = preserveFloats(export.Nodes[i].Properties)
	}
	for i := range export.Relationships {
		export.Relationships[i].Properties = preserveFloats(export.Relationships[i].Properties)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}
