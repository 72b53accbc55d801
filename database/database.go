// Package database provides the KV store backing repository metadata
// records.
package database

import "errors"

// Errors for Storage
var (
	ErrNotFound = errors.New("key not found")
)

// StorageProcessor is a function to process one single storage entry
type StorageProcessor func(key []byte, value []byte) error

// Reader provides KV read calls
type Reader interface {
	Get(key []byte) ([]byte, error)
}

// Writer provides KV update/delete calls
type Writer interface {
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// ReaderWriter combines Reader and Writer
type ReaderWriter interface {
	Reader
	Writer
}

// PrefixReader provides prefixed operations
type PrefixReader interface {
	HasPrefix(prefix []byte) bool
	ProcessByPrefix(prefix []byte, proc StorageProcessor) error
	KeysByPrefix(prefix []byte) [][]byte
	FetchByPrefix(prefix []byte) [][]byte
}

// Batch provides a way to pack many writes
type Batch interface {
	Writer

	// Write closes batch and sends accumulated writes to the database
	Write() error
}

// Transaction provides an isolated atomic way to perform updates.
// A transaction must always finish with either Discard() or Commit().
type Transaction interface {
	ReaderWriter

	Commit() error
	Discard()
}

// Storage is an interface to the KV storage
type Storage interface {
	ReaderWriter
	PrefixReader

	CreateBatch() Batch
	OpenTransaction() (Transaction, error)

	Open() error
	Close() error
	Drop() error
}
