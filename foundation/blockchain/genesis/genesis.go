// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
)

// Allocation is a genesis payout to a single account.
type Allocation struct {
	Account database.AccountID `json:"account"`
	Value   int64              `json:"value"`
}

// Genesis represents the genesis file.
type Genesis struct {
	Date        time.Time    `json:"date"`
	ChainID     uint16       `json:"chain_id"`   // The chain id represents an unique id for this running instance.
	CutoffAge   int          `json:"cutoff_age"` // Blocks may extend a branch at most this far below the tallest branch.
	Allocations []Allocation `json:"allocations"`
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	return genesis, nil
}

// Block constructs the genesis block. The allocations become the outputs of
// the genesis coinbase in file order, so the same file always produces the
// same genesis hash.
func (g Genesis) Block() (database.Block, error) {
	if len(g.Allocations) == 0 {
		return database.Block{}, fmt.Errorf("genesis has no allocations")
	}

	outputs := make([]database.Output, len(g.Allocations))
	for i, alloc := range g.Allocations {
		if !alloc.Account.IsAccountID() {
			return database.Block{}, fmt.Errorf("allocation %d: invalid account %q", i, alloc.Account)
		}
		if alloc.Value < 0 {
			return database.Block{}, fmt.Errorf("allocation %d: negative value %d", i, alloc.Value)
		}

		outputs[i] = database.Output{Value: alloc.Value, Owner: alloc.Account}
	}

	// The chain id is used as the coinbase nonce so two chains with the same
	// allocations still have distinct genesis blocks.
	return database.NewGenesis(database.NewCoinbase(uint64(g.ChainID), outputs...)), nil
}
