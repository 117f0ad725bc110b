package importer

import "github.com/orneryd/pathwaygraph/pkg/storage"

// Registry maps source ids to the node ids created for them. It lives for
// one run and is only written by the importer.
type Registry struct {
	ids map[int64]storage.NodeID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[int64]storage.NodeID)}
}

// Lookup returns the node created for dbID, if any.
func (r *Registry) Lookup(dbID int64) (storage.NodeID, bool) {
	id, ok := r.ids[dbID]
	return id, ok
}

// Register records the node created for dbID. The first registration wins.
func (r *Registry) Register(dbID int64, id storage.NodeID) {
	if _, ok := r.ids[dbID]; ok {
		return
	}
	r.ids[dbID] = id
}

// Len returns the number of registered instances.
func (r *Registry) Len() int { return len(r.ids) }
