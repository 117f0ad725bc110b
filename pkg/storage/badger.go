package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNode          = byte(0x01) // nodes:nodeID -> Node
	prefixEdge          = byte(0x02) // edges:edgeID -> Edge
	prefixLabelIndex    = byte(0x03) // label:labelName:nodeID -> []byte{}
	prefixOutgoingIndex = byte(0x04) // outgoing:nodeID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:nodeID:edgeID -> []byte{}
	prefixSchema        = byte(0x06) // schema:kind:label:property -> JSON definition
	prefixPropertyIndex = byte(0x07) // pidx:label:property:valueHash:nodeID -> []byte{}
	prefixMeta          = byte(0x08) // meta:name -> JSON
)

// BadgerEngine is the persistent graph store.
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> JSON(Node)
//   - Edges: 0x02 + edgeID -> JSON(Edge)
//   - Label Index: 0x03 + label + 0x00 + nodeID -> empty
//   - Outgoing Index: 0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + nodeID + 0x00 + edgeID -> empty
//   - Schema: 0x06 + kind + label + 0x00 + property -> JSON
//   - Property Index: 0x07 + label + 0x00 + property + 0x00 + hash + 0x00 + nodeID -> empty
//   - Metadata: 0x08 + name -> JSON
//
// Reads are safe for concurrent use. Writes go through a BulkInserter.
type BadgerEngine struct {
	db       *badger.DB
	schema   *SchemaManager
	inMemory bool
	mu       sync.RWMutex
	closed   bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Logger for BadgerDB internal logging.
	// If nil, BadgerDB logging is disabled.
	Logger badger.Logger

	// LowMemory reduces MemTableSize and other buffers to use less RAM.
	LowMemory bool
}

// NewBadgerEngine opens (or creates) a store in dataDir with default settings.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir: dataDir,
	})
}

// NewBadgerEngineWithOptions opens a store with custom configuration and
// loads any schema persisted by an earlier run.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// A nil logger keeps badger quiet.
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(16 << 20).     // 16MB instead of 64MB
			WithValueLogFileSize(64 << 20). // 64MB instead of 1GB
			WithNumMemtables(2).            // 2 instead of 5
			WithNumLevelZeroTables(2).      // 2 instead of 5
			WithNumLevelZeroTablesStall(4). // 4 instead of 15
			WithValueThreshold(1024).       // Store values > 1KB in value log
			WithBlockCacheSize(32 << 20).   // 32MB block cache
			WithIndexCacheSize(16 << 20)    // 16MB index cache
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	engine := &BadgerEngine{
		db:       db,
		schema:   NewSchemaManager(),
		inMemory: opts.InMemory,
	}
	if err := engine.loadSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	return engine, nil
}

// NewBadgerEngineInMemory creates an in-memory store for tests.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
	})
}

// CleanDataDir removes everything below dir and recreates it empty.
func CleanDataDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("clean data dir: empty path")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("clean data dir: %w", err)
	}
	if abs == string(filepath.Separator) {
		return fmt.Errorf("clean data dir: refusing to clean %s", abs)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("clean data dir: %w", err)
	}
	return os.MkdirAll(abs, 0755)
}

// ============================================================================
// Key encoding helpers
// ============================================================================

// nodeKey creates a key for storing a node.
func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

// edgeKey creates a key for storing an edge.
func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

// labelIndexKey creates a key for the label index.
// Format: prefix + label (lowercase) + 0x00 + nodeID
func labelIndexKey(label string, nodeID NodeID) []byte {
	normalizedLabel := strings.ToLower(label)
	key := make([]byte, 0, 1+len(normalizedLabel)+1+len(nodeID))
	key = append(key, prefixLabelIndex)
	key = append(key, []byte(normalizedLabel)...)
	key = append(key, 0x00) // Separator
	key = append(key, []byte(nodeID)...)
	return key
}

// labelIndexPrefix returns the prefix for scanning all nodes with a label.
func labelIndexPrefix(label string) []byte {
	normalizedLabel := strings.ToLower(label)
	key := make([]byte, 0, 1+len(normalizedLabel)+1)
	key = append(key, prefixLabelIndex)
	key = append(key, []byte(normalizedLabel)...)
	key = append(key, 0x00)
	return key
}

// outgoingIndexKey creates a key for the outgoing edge index.
func outgoingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	return append(outgoingIndexPrefix(nodeID), []byte(edgeID)...)
}

// outgoingIndexPrefix returns the prefix for scanning outgoing edges.
func outgoingIndexPrefix(nodeID NodeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1)
	key = append(key, prefixOutgoingIndex)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

// incomingIndexKey creates a key for the incoming edge index.
func incomingIndexKey(nodeID NodeID, edgeID EdgeID) []byte {
	return append(incomingIndexPrefix(nodeID), []byte(edgeID)...)
}

// incomingIndexPrefix returns the prefix for scanning incoming edges.
func incomingIndexPrefix(nodeID NodeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1)
	key = append(key, prefixIncomingIndex)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

// extractEdgeIDFromIndexKey extracts the edgeID from an adjacency index key.
// Format: prefix + nodeID + 0x00 + edgeID
func extractEdgeIDFromIndexKey(key []byte) EdgeID {
	for i := 1; i < len(key); i++ {
		if key[i] == 0x00 {
			return EdgeID(key[i+1:])
		}
	}
	return ""
}

// extractNodeIDFromLabelIndex extracts the nodeID from a label index key.
func extractNodeIDFromLabelIndex(key []byte, labelLen int) NodeID {
	// Skip prefix (1) + label (labelLen) + separator (1)
	offset := 1 + labelLen + 1
	if offset >= len(key) {
		return ""
	}
	return NodeID(key[offset:])
}

func (b *BadgerEngine) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// ============================================================================
// Read Operations
// ============================================================================

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var node *Node
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			node, decodeErr = decodeNode(val)
			return decodeErr
		})
	})
	return node, err
}

// GetEdge retrieves an edge by ID.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(edgeKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			edge, decodeErr = decodeEdge(val)
			return decodeErr
		})
	})
	return edge, err
}

// forEachNodeWithLabel streams the nodes carrying label. Returning an error
// from fn stops the scan with that error.
func (b *BadgerEngine) forEachNodeWithLabel(label string, fn func(*Node) error) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.View(func(txn *badger.Txn) error {
		prefix := labelIndexPrefix(label)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			nodeID := extractNodeIDFromLabelIndex(it.Item().Key(), len(strings.ToLower(label)))
			if nodeID == "" {
				continue
			}

			item, err := txn.Get(nodeKey(nodeID))
			if err != nil {
				return fmt.Errorf("label index %s points at missing node %s: %w", label, nodeID, err)
			}

			var node *Node
			if err := item.Value(func(val []byte) error {
				var decodeErr error
				node, decodeErr = decodeNode(val)
				return decodeErr
			}); err != nil {
				return err
			}
			// The index is case-insensitive, labels are not.
			if !node.HasLabel(label) {
				continue
			}
			if err := fn(node); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNodesByLabel returns all nodes with the specified label.
func (b *BadgerEngine) GetNodesByLabel(label string) ([]*Node, error) {
	var nodes []*Node
	err := b.forEachNodeWithLabel(label, func(n *Node) error {
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// forEachNode streams every node in key order.
func (b *BadgerEngine) forEachNode(fn func(*Node) error) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixNode}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var node *Node
			if err := it.Item().Value(func(val []byte) error {
				var decodeErr error
				node, decodeErr = decodeNode(val)
				return decodeErr
			}); err != nil {
				return err
			}
			if err := fn(node); err != nil {
				return err
			}
		}
		return nil
	})
}

// forEachEdge streams every edge in key order.
func (b *BadgerEngine) forEachEdge(fn func(*Edge) error) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixEdge}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var edge *Edge
			if err := it.Item().Value(func(val []byte) error {
				var decodeErr error
				edge, decodeErr = decodeEdge(val)
				return decodeErr
			}); err != nil {
				return err
			}
			if err := fn(edge); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllNodes returns all nodes.
func (b *BadgerEngine) AllNodes() ([]*Node, error) {
	var nodes []*Node
	err := b.forEachNode(func(n *Node) error {
		nodes = append(nodes, n)
		return nil
	})
	return nodes, err
}

// AllEdges returns all edges.
func (b *BadgerEngine) AllEdges() ([]*Edge, error) {
	var edges []*Edge
	err := b.forEachEdge(func(e *Edge) error {
		edges = append(edges, e)
		return nil
	})
	return edges, err
}

// GetOutgoingEdges returns all edges where the given node is the source.
func (b *BadgerEngine) GetOutgoingEdges(nodeID NodeID) ([]*Edge, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}
	return b.edgesByIndex(outgoingIndexPrefix(nodeID))
}

// GetIncomingEdges returns all edges where the given node is the target.
func (b *BadgerEngine) GetIncomingEdges(nodeID NodeID) ([]*Edge, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}
	return b.edgesByIndex(incomingIndexPrefix(nodeID))
}

func (b *BadgerEngine) edgesByIndex(prefix []byte) ([]*Edge, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edges []*Edge
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			edgeID := extractEdgeIDFromIndexKey(it.Item().Key())
			if edgeID == "" {
				continue
			}
			item, err := txn.Get(edgeKey(edgeID))
			if err != nil {
				return fmt.Errorf("adjacency index points at missing edge %s: %w", edgeID, err)
			}
			var edge *Edge
			if err := item.Value(func(val []byte) error {
				var decodeErr error
				edge, decodeErr = decodeEdge(val)
				return decodeErr
			}); err != nil {
				return err
			}
			edges = append(edges, edge)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// ============================================================================
// Stats and Lifecycle
// ============================================================================

func (b *BadgerEngine) countPrefix(prefix []byte) (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// NodeCount returns the total number of nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	return b.countPrefix([]byte{prefixNode})
}

// EdgeCount returns the total number of edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	return b.countPrefix([]byte{prefixEdge})
}

// LabelCount is the number of nodes carrying one label.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// LabelCounts counts nodes per label, largest first.
func (b *BadgerEngine) LabelCounts() ([]LabelCount, error) {
	counts := make(map[string]int64)
	err := b.forEachNode(func(n *Node) error {
		for _, l := range n.Labels {
			counts[l]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedCounts(counts), nil
}

// EdgeTypeCounts counts relationships per type, largest first.
func (b *BadgerEngine) EdgeTypeCounts() ([]LabelCount, error) {
	counts := make(map[string]int64)
	err := b.forEachEdge(func(e *Edge) error {
		counts[e.Type]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedCounts(counts), nil
}

func sortedCounts(counts map[string]int64) []LabelCount {
	out := make([]LabelCount, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelCount{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// GetSchema returns the schema manager.
func (b *BadgerEngine) GetSchema() *SchemaManager {
	return b.schema
}

// Close closes the BadgerDB database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	return b.db.Close()
}

// Sync forces a sync of all data to disk. It is a no-op in memory.
func (b *BadgerEngine) Sync() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.inMemory {
		return nil
	}
	return b.db.Sync()
}
