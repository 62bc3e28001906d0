// Package state is the core API for the ledger. It composes the block forest
// with the pool of pending transactions.
package state

import (
	"sync"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/forest"
	"github.com/ardanlabs/blockforest/foundation/blockchain/ledger"
	"github.com/ardanlabs/blockforest/foundation/blockchain/mempool"
	"github.com/prometheus/client_golang/prometheus"
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to start
// the ledger.
type Config struct {
	Genesis      database.Block
	CutoffAge    int
	SigCacheSize int
	Registerer   prometheus.Registerer
	EvHandler    EventHandler
}

// State manages the block forest and the mempool.
type State struct {
	evHandler EventHandler
	genesis   database.Block
	mu        sync.Mutex

	forest  *forest.Forest
	mempool *mempool.Mempool
}

// New constructs a new ledger rooted at the configured genesis block.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// The validator is shared by every branch so its signature cache pays off
	// when the same transaction lands on competing forks.
	validator, err := ledger.New(ledger.Config{
		SigCacheSize: cfg.SigCacheSize,
		EvHandler:    ledger.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	frst, err := forest.New(cfg.Genesis, forest.Config{
		CutoffAge:  cfg.CutoffAge,
		Validator:  validator,
		EvHandler:  forest.EventHandler(ev),
		Registerer: cfg.Registerer,
	})
	if err != nil {
		return nil, err
	}

	state := State{
		evHandler: ev,
		genesis:   cfg.Genesis,

		forest:  frst,
		mempool: mempool.New(),
	}

	return &state, nil
}
