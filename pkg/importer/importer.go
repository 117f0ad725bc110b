package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/pathwaygraph/pkg/convert"
	"github.com/orneryd/pathwaygraph/pkg/logging"
	"github.com/orneryd/pathwaygraph/pkg/metrics"
	"github.com/orneryd/pathwaygraph/pkg/schema"
	"github.com/orneryd/pathwaygraph/pkg/source"
	"github.com/orneryd/pathwaygraph/pkg/storage"
)

// ErrMaxDepthExceeded is returned when a containment chain is deeper than
// Config.MaxDepth.
var ErrMaxDepthExceeded = errors.New("maximum import depth exceeded")

const (
	propDBID             = "dbId"
	propDisplayName      = "displayName"
	propStableIdentifier = "stableIdentifier"
	propCardinality      = "cardinality"

	// regulatedBy is stored on Regulation.regulatedEntity in older
	// releases; the live class may not declare it.
	attrRegulatedBy     = "regulatedBy"
	attrRegulatedEntity = "regulatedEntity"
	attrIdentifier      = "identifier"
)

// Config tunes an Importer. The zero value imports without constraints,
// metrics or a depth limit.
type Config struct {
	Constraints *ConstraintManager
	Metrics     *metrics.Recorder

	// MaxDepth bounds the recursion; 0 means unlimited.
	MaxDepth int

	// RunID identifies the run in logs and results; generated when empty.
	RunID string
}

// Importer converts one source graph into nodes and relationships. It is
// single use and not safe for concurrent use.
type Importer struct {
	catalog  *schema.Catalog
	loader   BulkLoader
	registry *Registry
	cfg      Config
	log      *logging.Logger
	result   *Result
}

// New creates an importer writing to loader.
func New(catalog *schema.Catalog, loader BulkLoader, log *logging.Logger, cfg Config) *Importer {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Importer{
		catalog:  catalog,
		loader:   loader,
		registry: NewRegistry(),
		cfg:      cfg,
		log:      log.Component("importer").With("run_id", cfg.RunID),
		result:   newResult(cfg.RunID),
	}
}

// Registry exposes the identity registry of the run.
func (im *Importer) Registry() *Registry { return im.registry }

// Run imports every root of src and then applies the constraints. The
// loader is not finalized. On a fatal error the partial result is returned
// together with the error.
func (im *Importer) Run(ctx context.Context, src source.Source) (*Result, error) {
	start := time.Now()
	defer func() { im.result.Duration = time.Since(start) }()

	roots, err := src.Roots(ctx)
	if err != nil {
		return im.result, fmt.Errorf("fetching roots: %w", err)
	}
	im.log.Info("import started", "roots", len(roots))

	for _, root := range roots {
		rootStart := time.Now()
		name := root.DisplayName()
		if _, err := im.ImportInstance(ctx, root); err != nil {
			return im.result, fmt.Errorf("importing root %d: %w", root.DBID(), err)
		}
		elapsed := time.Since(rootStart)
		im.result.Roots++
		im.cfg.Metrics.RootImported(elapsed)
		im.log.Info(fmt.Sprintf("%s processed within %s", name, formatElapsed(elapsed)),
			"db_id", root.DBID(),
			"nodes", im.result.NodesCreated,
		)
	}

	if im.cfg.Constraints != nil {
		report := im.cfg.Constraints.Apply(im.loader)
		im.result.Constraints = report
		for range report.Failures {
			im.cfg.Metrics.ConstraintFailed()
		}
	}

	im.log.Info("import finished",
		"nodes", im.result.NodesCreated,
		"relationships", im.result.RelationshipsCreated,
		"warnings", im.result.WarningCount(),
		"elapsed", time.Since(start).String(),
	)
	return im.result, nil
}

// ImportInstance imports inst and everything reachable from it and returns
// the node id of inst. Instances already imported return their existing id.
func (im *Importer) ImportInstance(ctx context.Context, inst source.Instance) (storage.NodeID, error) {
	return im.importInstance(ctx, inst, 0)
}

func (im *Importer) importInstance(ctx context.Context, inst source.Instance, depth int) (storage.NodeID, error) {
	if id, ok := im.registry.Lookup(inst.DBID()); ok {
		return id, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if im.cfg.MaxDepth > 0 && depth > im.cfg.MaxDepth {
		return "", fmt.Errorf("%w: limit %d reached at db_id %d", ErrMaxDepthExceeded, im.cfg.MaxDepth, inst.DBID())
	}

	cs := im.catalog.Lookup(inst.SchemaClass())

	id, err := im.loader.CreateNode(cs.Labels, im.properties(inst, cs))
	if err != nil {
		return "", fmt.Errorf("creating node for db_id %d: %w", inst.DBID(), err)
	}
	im.registry.Register(inst.DBID(), id)
	im.result.NodesCreated++
	im.result.NodesByLabel[cs.Name]++
	im.cfg.Metrics.NodeCreated(cs.Name)

	for _, attr := range cs.Relations {
		values, ok := im.relationValues(inst, attr)
		if !ok {
			continue
		}
		for _, group := range Aggregate(values) {
			target, err := im.importInstance(ctx, group.Instance, depth+1)
			if err != nil {
				return "", err
			}
			props := map[string]any{propCardinality: int64(group.Count)}
			if err := im.loader.CreateRelationship(id, target, attr, props); err != nil {
				return "", fmt.Errorf("creating %s relationship from db_id %d: %w", attr, inst.DBID(), err)
			}
			im.result.RelationshipsCreated++
			im.result.EdgesByType[attr]++
			im.cfg.Metrics.RelationshipCreated(attr)
		}
	}

	inst.Release()
	return id, nil
}

// properties collects dbId, displayName and the primitive attributes of inst.
func (im *Importer) properties(inst source.Instance, cs *schema.ClassSchema) map[string]any {
	props := map[string]any{propDBID: inst.DBID()}
	if name := inst.DisplayName(); name != "" {
		props[propDisplayName] = name
	} else {
		im.warn(WarnMissingDisplayName, "instance without display name",
			"db_id", inst.DBID(), "class", inst.SchemaClass())
	}

	for _, attr := range cs.Primitives {
		if !im.accepts(inst, attr) {
			continue
		}
		v, err := inst.Value(attr)
		if err != nil {
			im.readFailed(inst, attr, err)
			continue
		}
		if attr == propStableIdentifier {
			v, err = stableIdentifier(v)
			if err != nil {
				im.readFailed(inst, attr, err)
				continue
			}
		}
		if v == nil {
			continue
		}
		if ref, ok := v.(source.Instance); ok {
			im.warn(WarnSchemaDrift, "instance value in primitive attribute, skipping",
				"db_id", inst.DBID(), "class", inst.SchemaClass(), "attribute", attr, "value_db_id", ref.DBID())
			continue
		}
		v = convert.Normalize(v)
		if err := convert.CheckFinite(v); err != nil {
			im.readFailed(inst, attr, err)
			continue
		}
		props[attr] = v
	}

	for _, attr := range cs.PrimitiveLists {
		if !im.accepts(inst, attr) {
			continue
		}
		values, err := inst.Values(attr)
		if err != nil {
			im.readFailed(inst, attr, err)
			continue
		}
		list := convert.CompactStrings(values)
		if len(list) == 0 {
			continue
		}
		props[attr] = list
	}
	return props
}

// stableIdentifier dereferences a StableIdentifier instance to its
// identifier string and releases it. Plain values pass through.
func stableIdentifier(v any) (any, error) {
	ref, ok := v.(source.Instance)
	if !ok {
		return v, nil
	}
	defer ref.Release()
	id, err := ref.Value(attrIdentifier)
	if err != nil {
		return nil, err
	}
	return id, nil
}

// relationValues reads the targets of a relation attribute. ok is false when
// the attribute was skipped.
func (im *Importer) relationValues(inst source.Instance, attr string) ([]any, bool) {
	if !inst.IsValidAttribute(attr) {
		if attr != attrRegulatedBy {
			im.drift(inst, attr)
			return nil, false
		}
		referrers, err := inst.Referrers(attrRegulatedEntity)
		if err != nil {
			im.readFailed(inst, attr, err)
			return nil, false
		}
		values := make([]any, len(referrers))
		for i, r := range referrers {
			values[i] = r
		}
		return values, true
	}

	values, err := inst.Values(attr)
	if err != nil {
		im.readFailed(inst, attr, err)
		return nil, false
	}
	return values, true
}

func (im *Importer) accepts(inst source.Instance, attr string) bool {
	if inst.IsValidAttribute(attr) {
		return true
	}
	im.drift(inst, attr)
	return false
}

func (im *Importer) drift(inst source.Instance, attr string) {
	im.warn(WarnSchemaDrift, "attribute not accepted by live class, skipping",
		"db_id", inst.DBID(), "class", inst.SchemaClass(), "attribute", attr)
}

func (im *Importer) readFailed(inst source.Instance, attr string, err error) {
	im.warn(WarnAttributeRead, "could not read attribute, skipping",
		"db_id", inst.DBID(), "class", inst.SchemaClass(), "attribute", attr, "error", err)
}

func (im *Importer) warn(kind, msg string, keysAndValues ...interface{}) {
	im.result.Warnings[kind]++
	im.cfg.Metrics.Warning(kind)
	im.log.Warn(msg, keysAndValues...)
}

// formatElapsed renders d as "1 min 2 sec 345 ms".
func formatElapsed(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%d min %d sec %d ms", ms/60000, (ms/1000)%60, ms%1000)
}
