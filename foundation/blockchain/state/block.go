package state

import (
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/forest"
)

// AddBlock offers the block to the forest. The mempool follows the tallest
// branch: transactions in blocks that branch gains are removed, and
// transactions in blocks it abandons are put back unless the new branch
// carries them too. A block landing on a side fork leaves the mempool alone,
// as does a rejected block.
func (s *State) AddBlock(block database.Block) error {
	hash := block.Hash()

	s.evHandler("state: AddBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.PrevBlockHash.TerminalString(), hash.TerminalString(), len(block.Trans))
	defer s.evHandler("state: AddBlock: completed: newBlk[%s]", hash.TerminalString())

	// Admission and the mempool update happen as one step.
	s.mu.Lock()
	defer s.mu.Unlock()

	// Both branches are captured before admission since admission prunes.
	oldChain := s.forest.MaxHeightChain()
	parentChain := s.forest.Chain(block.PrevBlockHash)

	if err := s.forest.AddBlock(block); err != nil {
		return err
	}

	// Admitting a block either leaves the tallest branch alone or makes the
	// new block its tip.
	head := s.forest.MaxHeightBranch()
	if head.Hash != hash {
		s.evHandler("state: AddBlock: side fork: newBlk[%s]: mempool unchanged", hash.TerminalString())
		s.blockEvent(block)
		return nil
	}

	newChain := append([]*forest.BranchNode{head}, parentChain...)
	gained, abandoned := chainDiff(oldChain, newChain)

	included := make(map[database.Hash]struct{})
	var removed int
	for _, node := range gained {
		txs := append([]database.Tx{node.Block.Coinbase}, node.Block.Trans...)
		for _, tx := range txs {
			included[tx.Hash()] = struct{}{}
		}
		removed += s.mempool.Delete(txs...)
	}

	// Coinbases of abandoned blocks are dropped.
	var repooled int
	for _, node := range abandoned {
		for _, tx := range node.Block.Trans {
			if _, exists := included[tx.Hash()]; exists {
				continue
			}
			s.mempool.Upsert(tx)
			repooled++
		}
	}

	if len(abandoned) > 0 {
		s.evHandler("state: AddBlock: reorg: abandoned[%d]: gained[%d]: repooled[%d]", len(abandoned), len(gained), repooled)
	}
	s.evHandler("state: AddBlock: mempool: removed[%d]: remaining[%d]", removed, s.mempool.Count())

	s.blockEvent(block)

	return nil
}

// =============================================================================

// chainDiff compares the tallest branch before and after an admission. It
// returns the nodes only the new branch holds and the nodes only the old
// branch held. Both chains must be taken from the same forest view.
func chainDiff(oldChain, newChain []*forest.BranchNode) (gained, abandoned []*forest.BranchNode) {
	oldHashes := make(map[database.Hash]struct{}, len(oldChain))
	for _, node := range oldChain {
		oldHashes[node.Hash] = struct{}{}
	}

	newHashes := make(map[database.Hash]struct{}, len(newChain))
	for _, node := range newChain {
		newHashes[node.Hash] = struct{}{}
		if _, exists := oldHashes[node.Hash]; !exists {
			gained = append(gained, node)
		}
	}

	for _, node := range oldChain {
		if _, exists := newHashes[node.Hash]; !exists {
			abandoned = append(abandoned, node)
		}
	}

	return gained, abandoned
}

// blockEvent provides a specific event about a new block in the forest for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockJSON, err := json.Marshal(block)
	if err != nil {
		blockJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	node, _ := s.forest.Node(block.Hash())
	var height int
	if node != nil {
		height = node.Height
	}

	s.evHandler(`viewer: block: {"hash":%q,"height":%d,"block":%s}`, block.Hash().Hex(), height, string(blockJSON))
}
