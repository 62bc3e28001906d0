// Package forest maintains the tree of candidate chains rooted at a genesis
// block. Only the leaves of the tree, the frontier, are tracked directly and
// every branch carries the unspent outputs left after its block. Branches
// that fall too far below the tallest one are pruned so memory stays bounded.
package forest

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/ledger"
	"github.com/ardanlabs/blockforest/foundation/blockchain/utxo"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCutoffAge is the cutoff age used when none is configured.
const DefaultCutoffAge = 10

// Set of error variables for block admission.
var (
	ErrMalformedGenesis    = errors.New("malformed genesis block")
	ErrNoParent            = errors.New("block declares no parent")
	ErrOrphan              = errors.New("parent block is not in the forest")
	ErrDuplicateBlock      = errors.New("block is already in the forest")
	ErrCutoffAge           = errors.New("parent is too far below the tallest branch")
	ErrInvalidTransactions = errors.New("block carries invalid transactions")
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// =============================================================================

// BranchNode is one accepted block in the forest. It is created once and
// never changed afterwards.
type BranchNode struct {
	ID       uint64
	ParentID uint64 // Zero for the genesis node.
	Hash     database.Hash
	Block    database.Block
	Height   int
	utxos    *utxo.Set
}

// UTXOs returns the unspent outputs left after this node's block. The set is
// frozen; clone it before making changes.
func (bn *BranchNode) UTXOs() *utxo.Set {
	return bn.utxos
}

// =============================================================================

// Config represents the configuration required to construct a Forest.
type Config struct {
	CutoffAge  int               // Zero selects DefaultCutoffAge.
	Validator  *ledger.Validator // Nil constructs a validator without a signature cache.
	EvHandler  EventHandler
	Registerer prometheus.Registerer // Nil disables metrics.
}

// Forest manages every branch that can still be extended. Nodes live in an
// arena addressed by id and point at their parent by id.
type Forest struct {
	cutoffAge int
	validator *ledger.Validator
	ev        EventHandler
	metrics   *metrics

	mu        sync.RWMutex
	nodes     map[uint64]*BranchNode
	frontier  map[uint64]struct{}
	pruned    map[database.Hash]int
	nextID    uint64
	maxHeight int
}

// New constructs a forest holding only the specified genesis block. The
// genesis coinbase is applied without validation.
func New(genesis database.Block, cfg Config) (*Forest, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.CutoffAge < 0 {
		return nil, fmt.Errorf("cutoff age %d is negative", cfg.CutoffAge)
	}
	cutoffAge := cfg.CutoffAge
	if cutoffAge == 0 {
		cutoffAge = DefaultCutoffAge
	}

	if err := validateGenesis(genesis); err != nil {
		return nil, err
	}

	validator := cfg.Validator
	if validator == nil {
		var err error
		validator, err = ledger.New(ledger.Config{EvHandler: ledger.EventHandler(ev)})
		if err != nil {
			return nil, err
		}
	}

	var m *metrics
	if cfg.Registerer != nil {
		var err error
		if m, err = newMetrics(cfg.Registerer); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	set := utxo.New()
	if err := ledger.ApplyCoinbase(genesis.Coinbase, set); err != nil {
		return nil, err
	}
	set.Freeze()

	root := BranchNode{
		ID:     1,
		Hash:   genesis.Hash(),
		Block:  genesis,
		Height: 1,
		utxos:  set,
	}

	f := Forest{
		cutoffAge: cutoffAge,
		validator: validator,
		ev:        ev,
		metrics:   m,
		nodes:     map[uint64]*BranchNode{root.ID: &root},
		frontier:  map[uint64]struct{}{root.ID: {}},
		pruned:    make(map[database.Hash]int),
		nextID:    root.ID + 1,
		maxHeight: root.Height,
	}
	f.metrics.observe(&f)

	ev("forest: New: genesis: blk[%s]: outputs[%d]: cutoff[%d]", root.Hash.TerminalString(), set.Len(), cutoffAge)

	return &f, nil
}

// CutoffAge returns the configured cutoff age.
func (f *Forest) CutoffAge() int {
	return f.cutoffAge
}

// AddBlock validates the block against the branch it extends and, if every
// check passes, adds it to the frontier. A block is all or nothing: when an
// error is returned the forest is unchanged.
func (f *Forest) AddBlock(block database.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	hash := block.Hash()

	f.ev("forest: AddBlock: started: %s", block)
	defer f.ev("forest: AddBlock: completed: blk[%s]", hash.TerminalString())

	node, err := f.admit(block, hash)
	if err != nil {
		f.ev("forest: AddBlock: rejected: blk[%s]: %s", hash.TerminalString(), err)
		f.metrics.reject(err)
		return err
	}

	f.ev("forest: AddBlock: accepted: blk[%s]: height[%d]: outputs[%d]", hash.TerminalString(), node.Height, node.utxos.Len())
	f.metrics.accept()

	f.prune()
	f.metrics.observe(f)

	return nil
}

// MaxHeightBranch returns the tallest frontier node. Between frontier nodes
// of equal height the one with the lowest block hash wins, so every forest
// holding the same blocks reports the same branch.
func (f *Forest) MaxHeightBranch() *BranchNode {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.maxHeightBranch()
}

// MaxHeightBlock returns the block of the tallest frontier node.
func (f *Forest) MaxHeightBlock() database.Block {
	return f.MaxHeightBranch().Block
}

// MaxHeightUTXOSet returns the unspent outputs of the tallest frontier node.
// The set is frozen; clone it to build on top of it.
func (f *Forest) MaxHeightUTXOSet() *utxo.Set {
	return f.MaxHeightBranch().utxos
}

// MaxHeight returns the height of the tallest frontier node.
func (f *Forest) MaxHeight() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.maxHeight
}

// Frontier returns the current leaves, tallest first.
func (f *Forest) Frontier() []*BranchNode {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.sortedFrontier()
}

// Len returns the number of nodes still held by the forest.
func (f *Forest) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.nodes)
}

// Node looks up a node by block hash through the ancestry of the frontier.
func (f *Forest) Node(hash database.Hash) (*BranchNode, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	node := f.find(hash)
	return node, node != nil
}

// MaxHeightChain returns the nodes of the tallest branch from its tip back
// to the oldest ancestor still held.
func (f *Forest) MaxHeightChain() []*BranchNode {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.chain(f.maxHeightBranch())
}

// Chain returns the node with the block hash followed by its ancestors still
// held, tip first. It returns nil when the forest does not hold the hash.
func (f *Forest) Chain(hash database.Hash) []*BranchNode {
	f.mu.RLock()
	defer f.mu.RUnlock()

	node := f.find(hash)
	if node == nil {
		return nil
	}
	return f.chain(node)
}

// Reason maps an admission error to a short reason usable as a metric label
// or in an API response.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNoParent):
		return "no_parent"
	case errors.Is(err, ErrOrphan):
		return "orphan"
	case errors.Is(err, ErrDuplicateBlock):
		return "duplicate"
	case errors.Is(err, ErrCutoffAge):
		return "cutoff_age"
	case errors.Is(err, ErrInvalidTransactions):
		return "invalid_transactions"
	}
	return "other"
}

// =============================================================================

// admit runs every admission gate and links the new node. It must be called
// with the write lock held.
func (f *Forest) admit(block database.Block, hash database.Hash) (*BranchNode, error) {
	if block.IsGenesis() {
		return nil, ErrNoParent
	}

	parent := f.find(block.PrevBlockHash)
	if parent == nil {
		height, pruned := f.pruned[block.PrevBlockHash]
		if !pruned {
			return nil, fmt.Errorf("parent[%s]: %w", block.PrevBlockHash.TerminalString(), ErrOrphan)
		}
		return nil, fmt.Errorf("height %d, max height %d, cutoff %d: %w", height+1, f.maxHeight, f.cutoffAge, ErrCutoffAge)
	}

	if f.find(hash) != nil {
		return nil, ErrDuplicateBlock
	}

	if parent.Height+1 <= f.maxHeight-f.cutoffAge {
		return nil, fmt.Errorf("height %d, max height %d, cutoff %d: %w", parent.Height+1, f.maxHeight, f.cutoffAge, ErrCutoffAge)
	}

	// The batch runs against a clone so the parent snapshot is never touched.
	accepted, set := f.validator.ApplyBatch(block.Trans, parent.utxos)
	if len(accepted) != len(block.Trans) {
		return nil, fmt.Errorf("accepted %d of %d: %w", len(accepted), len(block.Trans), ErrInvalidTransactions)
	}

	if err := ledger.ApplyCoinbase(block.Coinbase, set); err != nil {
		return nil, err
	}
	set.Freeze()

	node := BranchNode{
		ID:       f.nextID,
		ParentID: parent.ID,
		Hash:     hash,
		Block:    block,
		Height:   parent.Height + 1,
		utxos:    set,
	}
	f.nextID++

	f.nodes[node.ID] = &node
	delete(f.frontier, parent.ID)
	f.frontier[node.ID] = struct{}{}

	if node.Height > f.maxHeight {
		f.maxHeight = node.Height
	}

	return &node, nil
}

// chain walks from the node back through the parents still held.
func (f *Forest) chain(tip *BranchNode) []*BranchNode {
	var chain []*BranchNode
	for node := tip; node != nil; node = f.nodes[node.ParentID] {
		chain = append(chain, node)
	}
	return chain
}

// find walks the ancestry of every frontier node looking for the block hash.
// Ancestors shared between branches are only visited once.
func (f *Forest) find(hash database.Hash) *BranchNode {
	visited := make(map[uint64]struct{}, len(f.nodes))

	for _, leaf := range f.sortedFrontier() {
		for node := leaf; node != nil; node = f.nodes[node.ParentID] {
			if _, seen := visited[node.ID]; seen {
				break
			}
			visited[node.ID] = struct{}{}

			if node.Hash == hash {
				return node
			}
		}
	}

	return nil
}

// prune drops frontier leaves that can no longer be extended and then every
// node that no surviving leaf can reach inside the extension window. The
// hashes of released nodes are remembered for another cutoff age so blocks
// naming them are reported as too old rather than orphaned.
func (f *Forest) prune() {
	minHeight := f.maxHeight - f.cutoffAge

	for id := range f.frontier {
		if f.nodes[id].Height < minHeight {
			f.ev("forest: prune: leaf: blk[%s]: height[%d]", f.nodes[id].Hash.TerminalString(), f.nodes[id].Height)
			delete(f.frontier, id)
		}
	}

	live := make(map[uint64]struct{}, len(f.nodes))
	for id := range f.frontier {
		for node := f.nodes[id]; node != nil && node.Height >= minHeight; node = f.nodes[node.ParentID] {
			if _, seen := live[node.ID]; seen {
				break
			}
			live[node.ID] = struct{}{}
		}
	}

	for id, node := range f.nodes {
		if _, keep := live[id]; !keep {
			f.pruned[node.Hash] = node.Height
			delete(f.nodes, id)
		}
	}

	for hash, height := range f.pruned {
		if height < minHeight-f.cutoffAge {
			delete(f.pruned, hash)
		}
	}
}

// maxHeightBranch must be called with a lock held.
func (f *Forest) maxHeightBranch() *BranchNode {
	var best *BranchNode
	for id := range f.frontier {
		node := f.nodes[id]
		if best == nil || higher(node, best) {
			best = node
		}
	}
	return best
}

// sortedFrontier must be called with a lock held.
func (f *Forest) sortedFrontier() []*BranchNode {
	leaves := make([]*BranchNode, 0, len(f.frontier))
	for id := range f.frontier {
		leaves = append(leaves, f.nodes[id])
	}

	sort.Slice(leaves, func(i, j int) bool {
		return higher(leaves[i], leaves[j])
	})
	return leaves
}

// higher orders nodes by height and then by lowest block hash.
func higher(a, b *BranchNode) bool {
	if a.Height != b.Height {
		return a.Height > b.Height
	}
	return bytes.Compare(a.Hash[:], b.Hash[:]) < 0
}

// validateGenesis rejects a genesis block this forest can't build from.
func validateGenesis(genesis database.Block) error {
	if !genesis.IsGenesis() {
		return fmt.Errorf("declares parent %s: %w", genesis.PrevBlockHash.Hex(), ErrMalformedGenesis)
	}

	if len(genesis.Trans) != 0 {
		return fmt.Errorf("carries %d transactions: %w", len(genesis.Trans), ErrMalformedGenesis)
	}

	if !genesis.Coinbase.IsCoinbase() {
		return fmt.Errorf("coinbase has %d inputs: %w", len(genesis.Coinbase.Inputs), ErrMalformedGenesis)
	}

	for i, output := range genesis.Coinbase.Outputs {
		if output.Value < 0 {
			return fmt.Errorf("coinbase output %d is negative: %w", i, ErrMalformedGenesis)
		}
	}

	return nil
}
