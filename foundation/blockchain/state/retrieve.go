package state

import (
	"io"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/utxo"
)

// Status summarizes the forest and the mempool.
type Status struct {
	Height      int           `json:"height"`
	HeadHash    database.Hash `json:"head_hash"`
	CutoffAge   int           `json:"cutoff_age"`
	Frontier    int           `json:"frontier"`
	LiveNodes   int           `json:"live_nodes"`
	Uncommitted int           `json:"uncommitted"`
}

// BranchBlock is a block held by the forest together with its height.
type BranchBlock struct {
	Block  database.Block
	Height int
}

// RetrieveGenesis returns the genesis block.
func (s *State) RetrieveGenesis() database.Block {
	return s.genesis
}

// RetrieveMaxHeightBlock returns the block at the tip of the tallest branch
// and its height.
func (s *State) RetrieveMaxHeightBlock() (database.Block, int) {
	node := s.forest.MaxHeightBranch()
	return node.Block, node.Height
}

// RetrieveHead returns the tip of the tallest branch and its unspent
// outputs, both read from the same forest node. The set is frozen.
func (s *State) RetrieveHead() (BranchBlock, *utxo.Set) {
	node := s.forest.MaxHeightBranch()
	return BranchBlock{Block: node.Block, Height: node.Height}, node.UTXOs()
}

// RetrieveMaxHeightChain returns the blocks of the tallest branch still held
// by the forest, tip first.
func (s *State) RetrieveMaxHeightChain() []BranchBlock {
	nodes := s.forest.MaxHeightChain()

	blocks := make([]BranchBlock, len(nodes))
	for i, node := range nodes {
		blocks[i] = BranchBlock{Block: node.Block, Height: node.Height}
	}
	return blocks
}

// RetrieveMempool returns a copy of the mempool in arrival order.
func (s *State) RetrieveMempool() []database.Tx {
	return s.mempool.Copy()
}

// RetrieveStatus returns a summary of the ledger.
func (s *State) RetrieveStatus() Status {
	head := s.forest.MaxHeightBranch()

	return Status{
		Height:      head.Height,
		HeadHash:    head.Hash,
		CutoffAge:   s.forest.CutoffAge(),
		Frontier:    len(s.forest.Frontier()),
		LiveNodes:   s.forest.Len(),
		Uncommitted: s.mempool.Count(),
	}
}

// RetrieveForestGraph writes the live forest in the DOT language.
func (s *State) RetrieveForestGraph(w io.Writer) error {
	return s.forest.WriteDOT(w)
}
