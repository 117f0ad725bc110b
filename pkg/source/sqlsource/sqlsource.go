// Package sqlsource reads a relational Reactome dump through database/sql.
//
// The dump is three tables:
//
//	DatabaseObject(DB_ID, _class, _displayName, _timestamp)
//	attribute_value(DB_ID, attribute, rank, value_type, value, ref_DB_ID)
//	schema_attribute(class, attribute)        -- optional
//
// Instances are shells holding id, class and display name. Their attribute
// rows are read on first access and dropped again by Release, so memory
// stays bounded by the instances currently on the importer's stack.
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register the pure Go sqlite driver

	"github.com/orneryd/pathwaygraph/pkg/logging"
	"github.com/orneryd/pathwaygraph/pkg/source"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Value types stored in attribute_value.value_type.
const (
	valueString   = "string"
	valueInt      = "int"
	valueFloat    = "float"
	valueBool     = "bool"
	valueInstance = "instance"
)

var sqlOpen = sql.Open

// Config selects the database and the roots to import.
type Config struct {
	Driver string
	DSN    string

	// Roots overrides the FrontPage items when non-empty.
	Roots []int64
}

// Source is a source.Source over a relational dump.
type Source struct {
	db     *sql.DB
	driver string
	roots  []int64
	log    *logging.Logger

	mu        sync.Mutex
	ctx       context.Context
	instances map[int64]*instance
	valid     map[string]map[string]bool
	validErr  error
	validOnce sync.Once
}

var _ source.Source = (*Source)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config, log *logging.Logger) (*Source, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported source driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("open %s source: empty dsn", cfg.Driver)
	}

	db, err := sqlOpen(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s source: %w", cfg.Driver, err)
	}
	return New(db, cfg.Driver, cfg.Roots, log), nil
}

// New wraps an open database. The Source takes ownership of db.
func New(db *sql.DB, driver string, roots []int64, log *logging.Logger) *Source {
	if log == nil {
		log = logging.NewNop()
	}
	return &Source{
		db:        db,
		driver:    driver,
		roots:     append([]int64(nil), roots...),
		log:       log.Component("sqlsource"),
		ctx:       context.Background(),
		instances: make(map[int64]*instance),
	}
}

// DB exposes the underlying sql.DB.
func (s *Source) DB() *sql.DB { return s.db }

// Close implements source.Source.
func (s *Source) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Source) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Source) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Roots implements source.Source. The context also bounds the lazy
// attribute reads issued while the returned instances are imported.
func (s *Source) Roots(ctx context.Context) ([]source.Instance, error) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	ids := s.roots
	if len(ids) == 0 {
		var err error
		ids, err = s.frontPageItems(ctx)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, source.ErrNoRoots
	}

	roots := make([]source.Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := s.get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("root %d: %w", id, err)
		}
		roots = append(roots, inst)
	}
	return roots, nil
}

func (s *Source) frontPageItems(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT av.ref_DB_ID
		FROM DatabaseObject d
		JOIN attribute_value av ON av.DB_ID = d.DB_ID
		WHERE d._class = ? AND av.attribute = ? AND av.ref_DB_ID IS NOT NULL
		ORDER BY d.DB_ID, av.rank`), source.FrontPageClass, source.FrontPageAttribute)
	if err != nil {
		return nil, fmt.Errorf("select front page items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan front page item: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// get returns the identity-mapped shell for id.
func (s *Source) get(ctx context.Context, id int64) (*instance, error) {
	s.mu.Lock()
	inst, ok := s.instances[id]
	s.mu.Unlock()
	if ok {
		return inst, nil
	}

	var class string
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT _class, _displayName FROM DatabaseObject WHERE DB_ID = ?`), id).
		Scan(&class, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", source.ErrUnknownInstance, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select instance %d: %w", id, err)
	}
	return s.shell(id, class, name.String), nil
}

func (s *Source) shell(id int64, class, name string) *instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.instances[id]; ok {
		return inst
	}
	inst := &instance{src: s, id: id, class: class, name: name}
	s.instances[id] = inst
	return inst
}

// accepts reports whether class declares attr. Without schema_attribute
// rows for a class, every attribute is accepted.
func (s *Source) accepts(class, attr string) bool {
	s.validOnce.Do(func() {
		s.valid, s.validErr = s.loadValidAttributes(s.runContext())
		if s.validErr != nil {
			s.log.Debug("schema_attribute unavailable, accepting all attributes", "error", s.validErr)
		}
	})
	set, ok := s.valid[class]
	if !ok {
		return true
	}
	return set[attr]
}

func (s *Source) loadValidAttributes(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT class, attribute FROM schema_attribute`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	valid := make(map[string]map[string]bool)
	for rows.Next() {
		var class, attr string
		if err := rows.Scan(&class, &attr); err != nil {
			return nil, err
		}
		if valid[class] == nil {
			valid[class] = make(map[string]bool)
		}
		valid[class][attr] = true
	}
	return valid, rows.Err()
}

// attributeRow is one row of attribute_value joined with the referenced
// instance, if any.
type attributeRow struct {
	attribute string
	valueType string
	value     sql.NullString
	ref       sql.NullInt64
	refClass  sql.NullString
	refName   sql.NullString
}

func (s *Source) loadAttributes(ctx context.Context, id int64) (map[string][]any, map[string]error, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT av.attribute, av.value_type, av.value, av.ref_DB_ID, d._class, d._displayName
		FROM attribute_value av
		LEFT JOIN DatabaseObject d ON d.DB_ID = av.ref_DB_ID
		WHERE av.DB_ID = ?
		ORDER BY av.attribute, av.rank`), id)
	if err != nil {
		return nil, nil, fmt.Errorf("select attributes of %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	attrs := make(map[string][]any)
	failures := make(map[string]error)
	for rows.Next() {
		var r attributeRow
		if err := rows.Scan(&r.attribute, &r.valueType, &r.value, &r.ref, &r.refClass, &r.refName); err != nil {
			return nil, nil, fmt.Errorf("scan attribute of %d: %w", id, err)
		}
		if _, failed := failures[r.attribute]; failed {
			continue
		}
		v, err := s.decode(r)
		if err != nil {
			failures[r.attribute] = fmt.Errorf("attribute %s of %d: %w", r.attribute, id, err)
			delete(attrs, r.attribute)
			continue
		}
		attrs[r.attribute] = append(attrs[r.attribute], v)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("read attributes of %d: %w", id, err)
	}
	return attrs, failures, nil
}

func (s *Source) decode(r attributeRow) (any, error) {
	if r.valueType == valueInstance {
		if !r.ref.Valid {
			return nil, nil
		}
		if !r.refClass.Valid {
			return nil, fmt.Errorf("%w: %d", source.ErrUnknownInstance, r.ref.Int64)
		}
		return s.shell(r.ref.Int64, r.refClass.String, r.refName.String), nil
	}
	if !r.value.Valid {
		return nil, nil
	}

	raw := r.value.String
	switch r.valueType {
	case valueString:
		return raw, nil
	case valueInt:
		return strconv.ParseInt(raw, 10, 64)
	case valueFloat:
		return strconv.ParseFloat(raw, 64)
	case valueBool:
		return strconv.ParseBool(raw)
	default:
		return nil, fmt.Errorf("unknown value type %q", r.valueType)
	}
}

// instance is a lazily loaded source.Instance.
type instance struct {
	src   *Source
	id    int64
	class string
	name  string

	mu       sync.Mutex
	attrs    map[string][]any
	failures map[string]error
}

func (i *instance) DBID() int64         { return i.id }
func (i *instance) SchemaClass() string { return i.class }
func (i *instance) DisplayName() string { return i.name }

func (i *instance) IsValidAttribute(name string) bool {
	return i.src.accepts(i.class, name)
}

func (i *instance) Value(name string) (any, error) {
	values, err := i.Values(name)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

func (i *instance) Values(name string) ([]any, error) {
	if !i.IsValidAttribute(name) {
		return nil, fmt.Errorf("%s is not a valid attribute for %s: %w", name, i.class, source.ErrInvalidAttribute)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.attrs == nil {
		attrs, failures, err := i.src.loadAttributes(i.src.runContext(), i.id)
		if err != nil {
			return nil, err
		}
		i.attrs, i.failures = attrs, failures
	}
	if err, ok := i.failures[name]; ok {
		return nil, err
	}
	return append([]any(nil), i.attrs[name]...), nil
}

func (i *instance) Referrers(name string) ([]source.Instance, error) {
	ctx := i.src.runContext()
	rows, err := i.src.db.QueryContext(ctx, i.src.rebind(`
		SELECT DISTINCT d.DB_ID, d._class, d._displayName
		FROM attribute_value av
		JOIN DatabaseObject d ON d.DB_ID = av.DB_ID
		WHERE av.attribute = ? AND av.ref_DB_ID = ?
		ORDER BY d.DB_ID`), name, i.id)
	if err != nil {
		return nil, fmt.Errorf("select referrers of %d via %s: %w", i.id, name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []source.Instance
	for rows.Next() {
		var id int64
		var class string
		var display sql.NullString
		if err := rows.Scan(&id, &class, &display); err != nil {
			return nil, fmt.Errorf("scan referrer of %d: %w", i.id, err)
		}
		out = append(out, i.src.shell(id, class, display.String))
	}
	return out, rows.Err()
}

// Release drops the loaded attribute rows; the shell stays registered.
func (i *instance) Release() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.attrs = nil
	i.failures = nil
}
