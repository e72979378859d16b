package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("storage: not found")

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// Database is a generic interface for a content-addressed blob store.
// Implementations are safe for concurrent use. Values are copied on the way in
// and out, so callers may reuse their buffers.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Len() int
	Close() error
}

// Open returns a fresh, empty database for the named backend.
func Open(backend string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemDB(), nil
	case BackendLevelDB:
		return NewLevelDB()
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}

// --- In-Memory DB ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.data == nil {
		return errClosed
	}
	db.data[string(key)] = cloneBytes(value)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(value), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data)
}

// Close drops the contents.
func (db *MemDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data = nil
	return nil
}

// --- LevelDB ---

var errClosed = errors.New("storage: database closed")

// LevelDB keeps blobs in a goleveldb instance over in-memory storage, so
// nothing survives the process.
type LevelDB struct {
	mu    sync.Mutex
	db    *leveldb.DB
	count int
}

// NewLevelDB opens an empty goleveldb database backed by memory.
func NewLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or overwrites a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	ldb.mu.Lock()
	defer ldb.mu.Unlock()
	if ldb.db == nil {
		return errClosed
	}
	exists, err := ldb.db.Has(key, nil)
	if err != nil {
		return err
	}
	if err := ldb.db.Put(key, value, nil); err != nil {
		return err
	}
	if !exists {
		ldb.count++
	}
	return nil
}

// Get retrieves the value for key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	ldb.mu.Lock()
	db := ldb.db
	ldb.mu.Unlock()
	if db == nil {
		return nil, errClosed
	}
	value, err := db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	ldb.mu.Lock()
	db := ldb.db
	ldb.mu.Unlock()
	if db == nil {
		return false, errClosed
	}
	return db.Has(key, nil)
}

func (ldb *LevelDB) Len() int {
	ldb.mu.Lock()
	defer ldb.mu.Unlock()
	return ldb.count
}

// Close closes the database; its contents are gone afterwards.
func (ldb *LevelDB) Close() error {
	ldb.mu.Lock()
	defer ldb.mu.Unlock()
	if ldb.db == nil {
		return nil
	}
	err := ldb.db.Close()
	ldb.db = nil
	return err
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
