// Package source defines how the importer reads the relational object graph.
//
// A Source hands out root instances; every Instance answers attribute reads
// by name and may reference further instances. Adapters own instance
// payloads and drop them again on Release, which the importer calls once an
// instance is fully processed.
package source

import (
	"context"
	"errors"
)

var (
	// ErrNoRoots is returned when a source has nothing to import.
	ErrNoRoots = errors.New("no root instances")

	// ErrInvalidAttribute is returned when an attribute is read that the
	// live class does not declare.
	ErrInvalidAttribute = errors.New("invalid attribute")

	// ErrUnknownInstance is returned when an identifier does not resolve.
	ErrUnknownInstance = errors.New("unknown instance")
)

// Instance is a handle to one source record.
//
// Values are string, int64, float64, bool, nil or Instance.
type Instance interface {
	DBID() int64
	SchemaClass() string
	DisplayName() string

	// IsValidAttribute reports whether the live class declares name.
	IsValidAttribute(name string) bool

	// Value returns the first value of a single valued attribute, or nil.
	Value(name string) (any, error)

	// Values returns every value of an attribute in source order.
	Values(name string) ([]any, error)

	// Referrers returns the instances whose attribute name references this
	// instance.
	Referrers(name string) ([]Instance, error)

	// Release drops the cached attribute payload.
	Release()
}

// Source produces the root instances of one import run.
type Source interface {
	Roots(ctx context.Context) ([]Instance, error)
	Close() error
}

// FrontPage conventions used when no explicit roots are configured.
const (
	FrontPageClass     = "FrontPage"
	FrontPageAttribute = "frontPageItem"
)
