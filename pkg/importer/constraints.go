package importer

import (
	"github.com/orneryd/pathwaygraph/pkg/logging"
)

// LabelProperty names one (label, property) pair of the target schema.
type LabelProperty struct {
	Label    string
	Property string
}

// Constraint kinds reported in a ConstraintFailure.
const (
	KindUnique = "unique"
	KindIndex  = "index"
)

// ConstraintFailure is a constraint or index that could not be created.
type ConstraintFailure struct {
	Kind     string
	Label    string
	Property string
	Err      error
}

// ConstraintReport summarises one ConstraintManager.Apply call.
type ConstraintReport struct {
	Applied  int
	Failures []ConstraintFailure
}

var constrainedLabels = []string{
	"DatabaseObject",
	"Event",
	"Pathway",
	"ReactionLikeEvent",
	"Reaction",
	"PhysicalEntity",
	"Complex",
	"EntitySet",
	"GenomeEncodedEntity",
	"EntityWithAccessionedSequence",
	"ReferenceEntity",
	"ReferenceSequence",
}

// DefaultUniqueConstraints returns the unique dbId and stableIdentifier
// constraints for the core Reactome labels.
func DefaultUniqueConstraints() []LabelProperty {
	out := make([]LabelProperty, 0, 2*len(constrainedLabels))
	for _, label := range constrainedLabels {
		out = append(out,
			LabelProperty{Label: label, Property: "dbId"},
			LabelProperty{Label: label, Property: "stableIdentifier"},
		)
	}
	return out
}

// DefaultIndexes returns the identifier indexes on reference entities.
func DefaultIndexes() []LabelProperty {
	return []LabelProperty{
		{Label: "ReferenceEntity", Property: "identifier"},
		{Label: "ReferenceSequence", Property: "identifier"},
	}
}

// ConstraintManager creates the target schema once the data is loaded.
// Failures are logged and reported but never fail the run.
type ConstraintManager struct {
	unique  []LabelProperty
	indexes []LabelProperty
	log     *logging.Logger
}

// NewConstraintManager creates a manager. Nil lists fall back to the
// defaults; empty non-nil lists disable that part.
func NewConstraintManager(unique, indexes []LabelProperty, log *logging.Logger) *ConstraintManager {
	if unique == nil {
		unique = DefaultUniqueConstraints()
	}
	if indexes == nil {
		indexes = DefaultIndexes()
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &ConstraintManager{
		unique:  unique,
		indexes: indexes,
		log:     log.Component("constraints"),
	}
}

// Apply issues every unique constraint, then every index.
func (cm *ConstraintManager) Apply(loader BulkLoader) ConstraintReport {
	var report ConstraintReport

	for _, lp := range cm.unique {
		if err := loader.CreateDeferredUniqueConstraint(lp.Label, lp.Property); err != nil {
			cm.log.Warn("could not create unique constraint",
				"label", lp.Label, "property", lp.Property, "error", err)
			report.Failures = append(report.Failures, ConstraintFailure{
				Kind: KindUnique, Label: lp.Label, Property: lp.Property, Err: err,
			})
			continue
		}
		report.Applied++
	}

	for _, lp := range cm.indexes {
		if err := loader.CreateIndex(lp.Label, lp.Property); err != nil {
			cm.log.Warn("could not create index",
				"label", lp.Label, "property", lp.Property, "error", err)
			report.Failures = append(report.Failures, ConstraintFailure{
				Kind: KindIndex, Label: lp.Label, Property: lp.Property, Err: err,
			})
			continue
		}
		report.Applied++
	}

	cm.log.Info("schema applied", "applied", report.Applied, "failed", len(report.Failures))
	return report
}
