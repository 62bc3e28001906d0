// Package mempool maintains the pool of transactions seen but not yet
// placed in an accepted block.
package mempool

import (
	"sort"
	"sync"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
)

// entry remembers when a transaction first arrived.
type entry struct {
	tx  database.Tx
	seq uint64
}

// Mempool represents a cache of transactions keyed by transaction hash.
// Nothing is validated on the way in; a transaction is only checked when a
// block carrying it is added to the forest.
type Mempool struct {
	pool map[database.Hash]entry
	seq  uint64
	mu   sync.RWMutex
}

// New constructs a new, empty mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[database.Hash]entry),
	}
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds a transaction to the pool and returns the new count. A
// transaction already in the pool keeps its place.
func (mp *Mempool) Upsert(tx database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	hash := tx.Hash()
	if _, exists := mp.pool[hash]; !exists {
		mp.seq++
		mp.pool[hash] = entry{tx: tx, seq: mp.seq}
	}

	return len(mp.pool)
}

// Exists reports whether a transaction with the hash is in the pool.
func (mp *Mempool) Exists(hash database.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[hash]
	return exists
}

// Delete removes the specified transactions from the pool and returns how
// many were present.
func (mp *Mempool) Delete(txs ...database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for _, tx := range txs {
		hash := tx.Hash()
		if _, exists := mp.pool[hash]; exists {
			delete(mp.pool, hash)
			removed++
		}
	}

	return removed
}

// Copy returns the transactions in the order they first arrived.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	entries := make([]entry, 0, len(mp.pool))
	for _, e := range mp.pool {
		entries = append(entries, e)
	}
	mp.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	txs := make([]database.Tx, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}

	return txs
}
