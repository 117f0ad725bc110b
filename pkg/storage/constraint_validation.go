// Package storage - Constraint validation when constraints are created.
package storage

import (
	"fmt"
)

// ConstraintViolationError is returned when existing data does not satisfy
// a constraint being created.
type ConstraintViolationError struct {
	Type       ConstraintType
	Label      string
	Properties []string
	Message    string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("Constraint violation (%s on %s.%v): %s",
		e.Type, e.Label, e.Properties, e.Message)
}

// ValidateConstraintOnCreation validates that all existing data satisfies the constraint.
// This is called before a constraint is persisted, matching Neo4j behavior.
func (b *BadgerEngine) ValidateConstraintOnCreation(c Constraint) error {
	switch c.Type {
	case ConstraintUnique:
		return b.validateUniqueConstraintOnCreation(c)
	default:
		return fmt.Errorf("unknown constraint type: %s", c.Type)
	}
}

// validateUniqueConstraintOnCreation streams the label and stops at the
// first duplicate value.
func (b *BadgerEngine) validateUniqueConstraintOnCreation(c Constraint) error {
	if len(c.Properties) != 1 {
		return fmt.Errorf("UNIQUE constraint requires exactly 1 property, got %d", len(c.Properties))
	}

	property := c.Properties[0]
	seen := make(map[string]NodeID)

	err := b.forEachNodeWithLabel(c.Label, func(node *Node) error {
		value := node.Properties[property]
		if value == nil {
			return nil // NULL values don't violate uniqueness
		}

		key := NewCompositeKey(value).Hash
		if existingNodeID, found := seen[key]; found {
			return &ConstraintViolationError{
				Type:       ConstraintUnique,
				Label:      c.Label,
				Properties: []string{property},
				Message: fmt.Sprintf("Cannot create UNIQUE constraint: nodes %s and %s both have %s=%v",
					existingNodeID, node.ID, property, value),
			}
		}
		seen[key] = node.ID
		return nil
	})
	return err
}
