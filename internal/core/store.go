package core

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no module has the requested moduleNo.
	ErrNotFound = errors.New("module not found")

	// ErrDuplicateKey is returned when a create or rekey collides with an
	// existing moduleNo.
	ErrDuplicateKey = errors.New("module number already exists")
)

// RecordStore is the persistence boundary for modules. Every method is keyed
// by moduleNo; storage identifiers never leave the implementation.
type RecordStore interface {
	// GetAll returns every module ordered by moduleNo.
	GetAll(ctx context.Context) ([]Module, error)

	// GetByKey returns the module with the given moduleNo. ok is false when
	// none exists.
	GetByKey(ctx context.Context, moduleNo string) (m Module, ok bool, err error)

	// Create stores a new module. Returns ErrDuplicateKey when the key exists.
	Create(ctx context.Context, m Module) (Module, error)

	// Update applies the set fields of p to the module stored under key.
	// If p changes ModuleNo the record is rekeyed.
	Update(ctx context.Context, key string, p Patch) (Module, error)

	// Delete removes the module stored under key.
	Delete(ctx context.Context, key string) error
}

// OpKind is the type of a grouped write.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// WriteOp is one write inside a Batch call.
type WriteOp struct {
	Kind   OpKind
	Key    string
	Module Module // OpCreate
	Patch  Patch  // OpUpdate
}

// Batcher is implemented by stores that can apply a group of writes
// atomically. A failed batch applies none of its operations.
type Batcher interface {
	Batch(ctx context.Context, ops []WriteOp) error
}
