package database

import (
	"bytes"
	"errors"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

type storage struct {
	path string
	db   *leveldb.DB
}

// NewDB creates new leveldb-backed storage, but doesn't open it (yet)
func NewDB(path string) Storage {
	return &storage{path: path}
}

// NewOpenDB creates new leveldb-backed storage and opens it
func NewOpenDB(path string) (Storage, error) {
	db := NewDB(path)
	return db, db.Open()
}

func (s *storage) Open() error {
	if s.db != nil {
		return nil
	}

	var err error
	s.db, err = leveldb.OpenFile(s.path, &opt.Options{
		Filter:                 filter.NewBloomFilter(10),
		OpenFilesCacheCapacity: 256,
	})
	return err
}

func (s *storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Drop removes all the DB files; the DB must be closed
func (s *storage) Drop() error {
	if s.db != nil {
		return errors.New("DB is still open")
	}
	return os.RemoveAll(s.path)
}

func (s *storage) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (s *storage) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *storage) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

func (s *storage) HasPrefix(prefix []byte) bool {
	iterator := s.db.NewIterator(nil, nil)
	defer iterator.Release()
	return iterator.Seek(prefix) && bytes.HasPrefix(iterator.Key(), prefix)
}

func (s *storage) ProcessByPrefix(prefix []byte, proc StorageProcessor) error {
	iterator := s.db.NewIterator(nil, nil)
	defer iterator.Release()

	for ok := iterator.Seek(prefix); ok && bytes.HasPrefix(iterator.Key(), prefix); ok = iterator.Next() {
		err := proc(iterator.Key(), iterator.Value())
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *storage) KeysByPrefix(prefix []byte) [][]byte {
	result := make([][]byte, 0, 20)

	iterator := s.db.NewIterator(nil, nil)
	defer iterator.Release()

	for ok := iterator.Seek(prefix); ok && bytes.HasPrefix(iterator.Key(), prefix); ok = iterator.Next() {
		key := iterator.Key()
		keyc := make([]byte, len(key))
		copy(keyc, key)
		result = append(result, keyc)
	}

	return result
}

func (s *storage) FetchByPrefix(prefix []byte) [][]byte {
	result := make([][]byte, 0, 20)

	iterator := s.db.NewIterator(nil, nil)
	defer iterator.Release()

	for ok := iterator.Seek(prefix); ok && bytes.HasPrefix(iterator.Key(), prefix); ok = iterator.Next() {
		value := iterator.Value()
		valuec := make([]byte, len(value))
		copy(valuec, value)
		result = append(result, valuec)
	}

	return result
}

type batch struct {
	db *leveldb.DB
	b  *leveldb.Batch
}

func (b *batch) Put(key, value []byte) error {
	b.b.Put(key, value)
	return nil
}

func (b *batch) Delete(key []byte) error {
	b.b.Delete(key)
	return nil
}

func (b *batch) Write() error {
	return b.db.Write(b.b, nil)
}

func (s *storage) CreateBatch() Batch {
	return &batch{db: s.db, b: &leveldb.Batch{}}
}

type transaction struct {
	t *leveldb.Transaction
}

func (t *transaction) Get(key []byte) ([]byte, error) {
	value, err := t.t.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (t *transaction) Put(key, value []byte) error {
	return t.t.Put(key, value, nil)
}

func (t *transaction) Delete(key []byte) error {
	return t.t.Delete(key, nil)
}

func (t *transaction) Commit() error {
	return t.t.Commit()
}

func (t *transaction) Discard() {
	t.t.Discard()
}

func (s *storage) OpenTransaction() (Transaction, error) {
	t, err := s.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &transaction{t: t}, nil
}

// Check interface
var (
	_ Storage = &storage{}
)
