// Package neo4jload bulk loads an import run into a live Neo4j server.
//
// Nodes and relationships are buffered and written in UNWIND batches, one
// statement per label set or relationship type. The server assigns element
// ids; the loader keeps the mapping from its own sequential node ids so
// relationships can be matched by elementId. Constraints and indexes are
// created with IF NOT EXISTS once the data is written.
package neo4jload

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/orneryd/pathwaygraph/pkg/convert"
	"github.com/orneryd/pathwaygraph/pkg/logging"
	"github.com/orneryd/pathwaygraph/pkg/storage"
)

// Config describes the Neo4j target.
type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	BatchSize   int
	Timeout     time.Duration
	MaxPoolSize int
	// Clean deletes every node and relationship in the database before the
	// load starts.
	Clean bool
}

const (
	defaultBatchSize = 1000
	defaultTimeout   = 30 * time.Second
)

// runner executes one Cypher statement and returns all records.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error)
	Close(ctx context.Context) error
}

type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.database),
	)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (r *driverRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

type pendingNode struct {
	id     storage.NodeID
	labels []string
	props  map[string]any
}

type pendingRel struct {
	from, to storage.NodeID
	relType  string
	props    map[string]any
}

// Loader implements the importer's BulkLoader against Neo4j.
type Loader struct {
	run       runner
	ctx       context.Context
	batchSize int
	timeout   time.Duration
	log       *logging.Logger

	mu        sync.Mutex
	nextID    uint64
	elementID map[storage.NodeID]string
	nodes     []pendingNode
	rels      []pendingRel
	written   struct{ nodes, rels int64 }
	sealed    bool
	closed    bool
}

// Open connects to Neo4j and verifies connectivity. ctx bounds every
// statement the loader issues afterwards.
func Open(ctx context.Context, cfg Config, log *logging.Logger) (*Loader, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4jload: uri required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jload: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jload: verify connectivity: %w", err)
	}

	l := newLoader(ctx, &driverRunner{driver: driver, database: cfg.Database}, cfg, log)
	if cfg.Clean {
		if err := l.clean(); err != nil {
			_ = driver.Close(ctx)
			return nil, err
		}
	}
	return l, nil
}

func newLoader(ctx context.Context, r runner, cfg Config, log *logging.Logger) *Loader {
	if log == nil {
		log = logging.NewNop()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Loader{
		run:       r,
		ctx:       ctx,
		batchSize: batch,
		timeout:   timeout,
		log:       log.Component("neo4jload"),
		elementID: make(map[storage.NodeID]string),
	}
}

// clean empties the database, batchSize nodes per statement.
func (l *Loader) clean() error {
	cypher := "MATCH (n) WITH n LIMIT $limit DETACH DELETE n RETURN count(n) AS deleted"
	var total int64
	for {
		records, err := l.exec(cypher, map[string]any{"limit": l.batchSize})
		if err != nil {
			return fmt.Errorf("neo4jload: clean: %w", err)
		}
		var deleted int64
		if len(records) > 0 {
			v, _ := records[0].Get("deleted")
			deleted, _ = v.(int64)
		}
		if deleted == 0 {
			break
		}
		total += deleted
	}
	l.log.Info("neo4j database cleaned", "deleted", total)
	return nil
}

func (l *Loader) writable() error {
	if l.closed {
		return storage.ErrStorageClosed
	}
	if l.sealed {
		return storage.ErrLoadSealed
	}
	return nil
}

func (l *Loader) issued(id storage.NodeID) bool {
	n, err := strconv.ParseUint(string(id), 10, 64)
	return err == nil && n >= 1 && n <= l.nextID
}

// CreateNode buffers a node and returns its loader id.
func (l *Loader) CreateNode(labels []string, props map[string]any) (storage.NodeID, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("%w: node without labels", storage.ErrInvalidData)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writable(); err != nil {
		return "", err
	}

	l.nextID++
	id := storage.NodeID(strconv.FormatUint(l.nextID, 10))
	l.nodes = append(l.nodes, pendingNode{
		id:     id,
		labels: append([]string(nil), labels...),
		props:  convert.NormalizeProperties(props),
	})
	if len(l.nodes) >= l.batchSize {
		if err := l.flushNodes(); err != nil {
			return "", err
		}
	}
	return id, nil
}

// CreateRelationship buffers a relationship between two loader ids.
func (l *Loader) CreateRelationship(from, to storage.NodeID, relType string, props map[string]any) error {
	if relType == "" {
		return fmt.Errorf("%w: relationship without type", storage.ErrInvalidData)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writable(); err != nil {
		return err
	}
	if !l.issued(from) || !l.issued(to) {
		return fmt.Errorf("%w: %s -[%s]-> %s", storage.ErrInvalidEdge, from, relType, to)
	}

	l.rels = append(l.rels, pendingRel{from: from, to: to, relType: relType, props: convert.NormalizeProperties(props)})
	if len(l.rels) >= l.batchSize {
		return l.flush()
	}
	return nil
}

// flush writes pending nodes, then pending relationships.
func (l *Loader) flush() error {
	if err := l.flushNodes(); err != nil {
		return err
	}
	return l.flushRels()
}

func (l *Loader) exec(cypher string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
	defer cancel()
	return l.run.Run(ctx, cypher, params)
}

func (l *Loader) flushNodes() error {
	if len(l.nodes) == 0 {
		return nil
	}

	groups := make(map[string][]pendingNode)
	for _, n := range l.nodes {
		key := labelClause(n.labels)
		groups[key] = append(groups[key], n)
	}

	for _, clause := range sortedKeys(groups) {
		batch := groups[clause]
		rows := make([]map[string]any, len(batch))
		for i, n := range batch {
			rows[i] = map[string]any{"id": string(n.id), "props": n.props}
		}
		cypher := "UNWIND $rows AS row\nCREATE (n" + clause + ")\nSET n = row.props\nRETURN row.id AS id, elementId(n) AS eid"
		records, err := l.exec(cypher, map[string]any{"rows": rows})
		if err != nil {
			return fmt.Errorf("neo4jload: create %d nodes %s: %w", len(batch), clause, err)
		}
		for _, rec := range records {
			id, _ := rec.Get("id")
			eid, _ := rec.Get("eid")
			idStr, ok1 := id.(string)
			eidStr, ok2 := eid.(string)
			if !ok1 || !ok2 {
				return fmt.Errorf("neo4jload: unexpected node record %v", rec.Values)
			}
			l.elementID[storage.NodeID(idStr)] = eidStr
		}
		l.written.nodes += int64(len(batch))
	}

	l.nodes = l.nodes[:0]
	l.log.Debug("nodes flushed", "total", l.written.nodes)
	return nil
}

func (l *Loader) flushRels() error {
	if len(l.rels) == 0 {
		return nil
	}

	groups := make(map[string][]pendingRel)
	for _, r := range l.rels {
		groups[r.relType] = append(groups[r.relType], r)
	}

	for _, relType := range sortedKeys(groups) {
		batch := groups[relType]
		rows := make([]map[string]any, len(batch))
		for i, r := range batch {
			from, ok1 := l.elementID[r.from]
			to, ok2 := l.elementID[r.to]
			if !ok1 || !ok2 {
				return fmt.Errorf("neo4jload: %w: %s -[%s]-> %s not written", storage.ErrInvalidEdge, r.from, relType, r.to)
			}
			rows[i] = map[string]any{"from": from, "to": to, "props": r.props}
		}
		cypher := "UNWIND $rows AS row\n" +
			"MATCH (a) WHERE elementId(a) = row.from\n" +
			"MATCH (b) WHERE elementId(b) = row.to\n" +
			"CREATE (a)-[r:" + quote(relType) + "]->(b)\n" +
			"SET r = row.props"
		if _, err := l.exec(cypher, map[string]any{"rows": rows}); err != nil {
			return fmt.Errorf("neo4jload: create %d %s relationships: %w", len(batch), relType, err)
		}
		l.written.rels += int64(len(batch))
	}

	l.rels = l.rels[:0]
	l.log.Debug("relationships flushed", "total", l.written.rels)
	return nil
}

// seal flushes everything and closes the loader for new data.
func (l *Loader) seal() error {
	if l.closed {
		return storage.ErrStorageClosed
	}
	if l.sealed {
		return nil
	}
	if err := l.flush(); err != nil {
		return err
	}
	l.sealed = true
	return nil
}

// CreateDeferredUniqueConstraint flushes and creates a unique constraint.
func (l *Loader) CreateDeferredUniqueConstraint(label, property string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.seal(); err != nil {
		return err
	}
	cypher := fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
		quote(storage.ConstraintName(label, property)), quote(label), quote(property))
	if _, err := l.exec(cypher, nil); err != nil {
		return fmt.Errorf("neo4jload: unique constraint %s.%s: %w", label, property, err)
	}
	return nil
}

// CreateIndex flushes and creates a range index.
func (l *Loader) CreateIndex(label, property string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.seal(); err != nil {
		return err
	}
	cypher := fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)",
		quote(storage.IndexName(label, property)), quote(label), quote(property))
	if _, err := l.exec(cypher, nil); err != nil {
		return fmt.Errorf("neo4jload: index %s.%s: %w", label, property, err)
	}
	return nil
}

// Counts returns the number of nodes and relationships written so far.
func (l *Loader) Counts() (nodes, relationships int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written.nodes, l.written.rels
}

// Finalize flushes what is left and closes the driver. Calling it again is
// a no-op.
func (l *Loader) Finalize() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	err := l.seal()
	l.closed = true
	if cerr := l.run.Close(l.ctx); cerr != nil && err == nil {
		err = fmt.Errorf("neo4jload: close driver: %w", cerr)
	}
	l.log.Info("neo4j load finalized", "nodes", l.written.nodes, "relationships", l.written.rels)
	return err
}

// Abort drops anything still buffered and closes the driver. Batches already
// sent stay in the database. Calling Finalize or Abort afterwards is a no-op.
func (l *Loader) Abort(cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.nodes, l.rels = nil, nil
	l.log.Warn("neo4j load aborted", "error", cause, "nodes", l.written.nodes, "relationships", l.written.rels)
	if err := l.run.Close(l.ctx); err != nil {
		return fmt.Errorf("neo4jload: close driver: %w", err)
	}
	return nil
}

// quote renders a Cypher identifier in backticks.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func labelClause(labels []string) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteByte(':')
		b.WriteString(quote(l))
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
