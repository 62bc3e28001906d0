package state

import (
	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/utxo"
)

// QueryUTXOsByAccount returns the unspent outputs the account owns on the
// tallest branch.
func (s *State) QueryUTXOsByAccount(account database.AccountID) []utxo.Entry {
	return s.forest.MaxHeightUTXOSet().ByOwner(account)
}

// QueryBalance returns the value the account owns on the tallest branch.
func (s *State) QueryBalance(account database.AccountID) int64 {
	return s.forest.MaxHeightUTXOSet().Balance(account)
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlockByHash returns a block still held by the forest and its height.
func (s *State) QueryBlockByHash(hash database.Hash) (database.Block, int, bool) {
	node, exists := s.forest.Node(hash)
	if !exists {
		return database.Block{}, 0, false
	}
	return node.Block, node.Height, true
}
