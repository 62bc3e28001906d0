package state

import "github.com/ardanlabs/blockforest/foundation/blockchain/database"

// AddTransaction puts the transaction into the mempool and returns the size
// of the pool. Nothing is validated here; a transaction is only checked when
// a block carrying it is added.
func (s *State) AddTransaction(tx database.Tx) int {
	hash := tx.Hash()
	if s.mempool.Exists(hash) {
		s.evHandler("state: AddTransaction: already pooled: tx[%s]", hash.TerminalString())
		return s.mempool.Count()
	}

	n := s.mempool.Upsert(tx)

	s.evHandler("state: AddTransaction: tx[%s]: mempool[%d]", hash.TerminalString(), n)

	return n
}
