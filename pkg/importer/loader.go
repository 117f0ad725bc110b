// Package importer walks a source object graph and writes it to a property
// graph through a BulkLoader.
//
// Every source instance reachable from the roots becomes exactly one node,
// labelled with its class and all ancestor classes. Relation attributes
// become relationships named after the attribute; repeated references to the
// same target collapse into one relationship carrying a cardinality count.
//
// Example:
//
//	catalog := schema.NewCatalog(m, log)
//	imp := importer.New(catalog, bulk, log, importer.Config{
//		Constraints: importer.NewConstraintManager(nil, nil, log),
//	})
//	result, err := imp.Run(ctx, src)
//	if err != nil {
//		return err
//	}
//	return bulk.Finalize()
package importer

import (
	"github.com/orneryd/pathwaygraph/pkg/storage"
)

// BulkLoader is the write side of the target graph. Writes are
// non-transactional and unchecked; schema calls come after the last write.
type BulkLoader interface {
	CreateNode(labels []string, props map[string]any) (storage.NodeID, error)
	CreateRelationship(from, to storage.NodeID, relType string, props map[string]any) error
	CreateDeferredUniqueConstraint(label, property string) error
	CreateIndex(label, property string) error
	Finalize() error
}

var _ BulkLoader = (*storage.BulkInserter)(nil)
