// Package database defines the transaction and block data model shared by
// the ledger packages.
package database

import (
	"fmt"

	"github.com/ardanlabs/blockforest/foundation/blockchain/signature"
)

// Block represents a group of transactions batched together on top of a
// previous block, along with the reward paid to its assembler.
type Block struct {
	PrevBlockHash Hash `json:"prev_block_hash"` // Zero only for the genesis block.
	Trans         []Tx `json:"trans" validate:"dive"`
	Coinbase      Tx   `json:"coinbase"`
}

// NewBlock constructs a block that extends the block with the specified hash.
func NewBlock(prevBlockHash Hash, coinbase Tx, trans ...Tx) Block {
	return Block{
		PrevBlockHash: prevBlockHash,
		Trans:         trans,
		Coinbase:      coinbase,
	}
}

// NewGenesis constructs a block with no parent that only carries a coinbase.
func NewGenesis(coinbase Tx) Block {
	return Block{
		Coinbase: coinbase,
	}
}

// Hash returns the content hash for the Block.
func (b Block) Hash() Hash {
	return signature.Hash(b)
}

// IsGenesis reports whether the block declares no parent.
func (b Block) IsGenesis() bool {
	return b.PrevBlockHash == signature.ZeroHash
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("blk[%s] prev[%s] trans[%d]", b.Hash().TerminalString(), b.PrevBlockHash.TerminalString(), len(b.Trans))
}
