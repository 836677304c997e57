package trie

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"github.com/amalashkevich/vanitynamereg/storage"
)

// Trie holds registry state on top of a go-ethereum Merkle Patricia trie.
// Keys are keccak256 hashes produced by the state manager.
//
// The node never mutates its committed trie directly: each operation works on
// a Copy which is either committed as the next root or dropped. Trie is not
// safe for concurrent use.
type Trie struct {
	db   *triedb.Database
	tr   *gethtrie.Trie
	root common.Hash
}

// NewTrie opens the state at root. A nil or empty root opens the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	db := store.TrieDB()
	tr, err := gethtrie.New(gethtrie.TrieID(rootHash), db)
	if err != nil {
		return nil, err
	}
	return &Trie{db: db, tr: tr, root: rootHash}, nil
}

// Get returns nil for missing keys.
func (t *Trie) Get(key []byte) ([]byte, error) { return t.tr.Get(key) }

func (t *Trie) Update(key, value []byte) error { return t.tr.Update(key, value) }

// Delete is a no-op for absent keys.
func (t *Trie) Delete(key []byte) error { return t.tr.Delete(key) }

// Hash returns the root including uncommitted writes.
func (t *Trie) Hash() common.Hash { return t.tr.Hash() }

// Root returns the last committed root.
func (t *Trie) Root() common.Hash { return t.root }

// Copy returns a working copy over the same database. Writes to the copy are
// invisible to the receiver.
func (t *Trie) Copy() *Trie {
	return &Trie{db: t.db, tr: t.tr.Copy(), root: t.root}
}

// Discard drops uncommitted writes and reopens the trie at its last root.
func (t *Trie) Discard() error {
	return t.reopen(t.root)
}

// Commit writes pending nodes as the state for height, on top of the last
// committed root, and returns the new root.
func (t *Trie) Commit(height uint64) (common.Hash, error) {
	newRoot, nodes := t.tr.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.db.Update(newRoot, t.root, height, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.db.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	if err := t.reopen(newRoot); err != nil {
		return common.Hash{}, err
	}
	return newRoot, nil
}

// A committed geth trie cannot be written again, so both paths reopen it.
func (t *Trie) reopen(root common.Hash) error {
	tr, err := gethtrie.New(gethtrie.TrieID(root), t.db)
	if err != nil {
		return err
	}
	t.tr = tr
	t.root = root
	return nil
}
