package storage

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/pathwaygraph/pkg/convert"
)

// BulkInserter writes a graph into a BadgerEngine in a single pass.
//
// Nodes and relationships are appended through a badger WriteBatch and get
// sequential ids. Nothing written is visible to readers until the inserter
// is sealed, which happens on the first schema call or on Finalize. After
// that CreateNode and CreateRelationship return ErrLoadSealed.
//
// A BulkInserter is safe for concurrent use, though an import normally
// drives it from one goroutine.
type BulkInserter struct {
	engine    *BadgerEngine
	runID     string
	startedAt time.Time

	mu           sync.Mutex
	batch        *badger.WriteBatch
	nextNode     uint64
	nextEdge     uint64
	nodesByLabel map[string]int64
	edgesByType  map[string]int64
	sealed       bool
	finalized    bool
}

// NewBulkInserter starts a bulk load into engine. runID is recorded in the
// run metadata written by Finalize.
func NewBulkInserter(engine *BadgerEngine, runID string) *BulkInserter {
	return &BulkInserter{
		engine:       engine,
		runID:        runID,
		startedAt:    time.Now().UTC(),
		batch:        engine.db.NewWriteBatch(),
		nodesByLabel: make(map[string]int64),
		edgesByType:  make(map[string]int64),
	}
}

func (bi *BulkInserter) writable() error {
	if bi.sealed {
		return ErrLoadSealed
	}
	return bi.engine.checkOpen()
}

// CreateNode appends a node and returns its id. labels must be non-empty;
// the first label is the one counted in the run metadata.
func (bi *BulkInserter) CreateNode(labels []string, props map[string]any) (NodeID, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("%w: node without labels", ErrInvalidData)
	}

	bi.mu.Lock()
	defer bi.mu.Unlock()
	if err := bi.writable(); err != nil {
		return "", err
	}

	bi.nextNode++
	node := &Node{
		ID:         NodeID(strconv.FormatUint(bi.nextNode, 10)),
		Labels:     append([]string(nil), labels...),
		Properties: convert.NormalizeProperties(props),
		CreatedAt:  time.Now(),
	}
	data, err := encodeNode(node)
	if err != nil {
		return "", fmt.Errorf("encoding node: %w", err)
	}
	if err := bi.batch.Set(nodeKey(node.ID), data); err != nil {
		return "", err
	}
	for _, label := range node.Labels {
		if err := bi.batch.Set(labelIndexKey(label, node.ID), []byte{}); err != nil {
			return "", err
		}
	}

	bi.nodesByLabel[labels[0]]++
	return node.ID, nil
}

// issued reports whether id was handed out by this inserter.
func (bi *BulkInserter) issued(id NodeID) bool {
	n, err := strconv.ParseUint(string(id), 10, 64)
	return err == nil && n >= 1 && n <= bi.nextNode
}

// CreateRelationship appends a directed relationship between two nodes
// created by this inserter.
func (bi *BulkInserter) CreateRelationship(from, to NodeID, relType string, props map[string]any) error {
	if relType == "" {
		return fmt.Errorf("%w: relationship without type", ErrInvalidData)
	}

	bi.mu.Lock()
	defer bi.mu.Unlock()
	if err := bi.writable(); err != nil {
		return err
	}
	if !bi.issued(from) || !bi.issued(to) {
		return fmt.Errorf("%w: %s -[%s]-> %s", ErrInvalidEdge, from, relType, to)
	}

	bi.nextEdge++
	edge := &Edge{
		ID:         EdgeID(strconv.FormatUint(bi.nextEdge, 10)),
		StartNode:  from,
		EndNode:    to,
		Type:       relType,
		Properties: convert.NormalizeProperties(props),
		CreatedAt:  time.Now(),
	}
	data, err := encodeEdge(edge)
	if err != nil {
		return fmt.Errorf("encoding edge: %w", err)
	}
	if err := bi.batch.Set(edgeKey(edge.ID), data); err != nil {
		return err
	}
	if err := bi.batch.Set(outgoingIndexKey(from, edge.ID), []byte{}); err != nil {
		return err
	}
	if err := bi.batch.Set(incomingIndexKey(to, edge.ID), []byte{}); err != nil {
		return err
	}

	bi.edgesByType[relType]++
	return nil
}

// seal flushes pending writes and closes the inserter for new data.
// Callers must hold bi.mu.
func (bi *BulkInserter) seal() error {
	if bi.sealed {
		return nil
	}
	if err := bi.engine.checkOpen(); err != nil {
		return err
	}
	bi.sealed = true
	if err := bi.batch.Flush(); err != nil {
		return fmt.Errorf("flushing bulk load: %w", err)
	}
	return nil
}

// CreateDeferredUniqueConstraint seals the load and creates a unique
// constraint on (label, property) over the loaded data. Duplicate values
// surface as a *ConstraintViolationError.
func (bi *BulkInserter) CreateDeferredUniqueConstraint(label, property string) error {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	if err := bi.seal(); err != nil {
		return err
	}
	return bi.engine.CreateUniqueConstraint(label, property)
}

// CreateIndex seals the load and indexes (label, property).
func (bi *BulkInserter) CreateIndex(label, property string) error {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	if err := bi.seal(); err != nil {
		return err
	}
	_, err := bi.engine.CreatePropertyIndex(label, property)
	return err
}

// Counts returns the number of nodes and relationships written so far.
func (bi *BulkInserter) Counts() (nodes, relationships int64) {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	return int64(bi.nextNode), int64(bi.nextEdge)
}

// Finalize seals the load, records a completed run in the metadata and
// syncs the store. Calling Finalize or Abort again is a no-op.
func (bi *BulkInserter) Finalize() error {
	return bi.finish(nil)
}

// Abort flushes what was written and records the run as incomplete with
// cause. A nil cause is recorded as "aborted".
func (bi *BulkInserter) Abort(cause error) error {
	if cause == nil {
		cause = fmt.Errorf("aborted")
	}
	return bi.finish(cause)
}

func (bi *BulkInserter) finish(cause error) error {
	bi.mu.Lock()
	defer bi.mu.Unlock()
	if bi.finalized {
		return nil
	}
	if err := bi.seal(); err != nil {
		return err
	}

	meta := RunMetadata{
		RunID:         bi.runID,
		StartedAt:     bi.startedAt,
		FinishedAt:    time.Now().UTC(),
		Complete:      cause == nil,
		Nodes:         int64(bi.nextNode),
		Relationships: int64(bi.nextEdge),
		NodesByLabel:  copyCounts(bi.nodesByLabel),
		EdgesByType:   copyCounts(bi.edgesByType),
	}
	if cause != nil {
		meta.Error = cause.Error()
	}
	if err := bi.engine.saveMetadata(meta); err != nil {
		return err
	}
	if err := bi.engine.Sync(); err != nil {
		return err
	}
	bi.finalized = true
	return nil
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
