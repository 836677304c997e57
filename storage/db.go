package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// The registry node uses it both for raw metadata (head root) and as the
// backing store of the state trie.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// TrieDB returns the trie node database layered on top of the store.
	TrieDB() *triedb.Database
	Close()
}

// KVDB adapts a go-ethereum key-value store to Database. The same handle backs
// raw metadata and trie nodes, so a single Close releases both.
type KVDB struct {
	disk   ethdb.Database
	trieDB *triedb.Database
}

func newKVDB(kv ethdb.KeyValueStore) *KVDB {
	disk := rawdb.NewDatabase(kv)
	return &KVDB{
		disk:   disk,
		trieDB: triedb.NewDatabase(disk, triedb.HashDefaults),
	}
}

// --- In-Memory DB (for testing) ---

// NewMemDB returns a volatile database.
func NewMemDB() *KVDB {
	return newKVDB(memorydb.New())
}

// --- Persistent DB ---

const (
	levelDBCacheMB = 16
	levelDBHandles = 16
)

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*KVDB, error) {
	kv, err := ethleveldb.New(path, levelDBCacheMB, levelDBHandles, "vnr/db/", false)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return newKVDB(kv), nil
}

// Put inserts or updates a key-value pair.
func (db *KVDB) Put(key []byte, value []byte) error {
	return db.disk.Put(key, value)
}

// Get retrieves a value for a given key. Missing keys yield ErrNotFound for
// both the memory and LevelDB backends.
func (db *KVDB) Get(key []byte) ([]byte, error) {
	ok, err := db.disk.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	value, err := db.disk.Get(key)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Delete removes the key if present.
func (db *KVDB) Delete(key []byte) error {
	return db.disk.Delete(key)
}

// TrieDB exposes the hash-scheme trie database.
func (db *KVDB) TrieDB() *triedb.Database {
	return db.trieDB
}

// Close flushes the trie database and closes the underlying store.
func (db *KVDB) Close() {
	_ = db.trieDB.Close()
	_ = db.disk.Close()
}
