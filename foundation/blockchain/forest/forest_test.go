package forest_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/forest"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	miner    = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
)

func newGenesis(t *testing.T, outputs ...database.Output) database.Block {
	if len(outputs) == 0 {
		outputs = []database.Output{{Value: 25, Owner: miner}}
	}
	return database.NewGenesis(database.NewCoinbase(0, outputs...))
}

func newForest(t *testing.T, genesis database.Block, cutoffAge int) *forest.Forest {
	f, err := forest.New(genesis, forest.Config{CutoffAge: cutoffAge})
	require.NoError(t, err)
	return f
}

// empty builds a block carrying only a coinbase. The nonce keeps sibling
// blocks distinct.
func empty(prev database.Hash, nonce uint64) database.Block {
	return database.NewBlock(prev, database.NewCoinbase(nonce, database.Output{Value: 1, Owner: miner}))
}

// extend grows a chain of n empty blocks on top of prev and returns them.
func extend(t *testing.T, f *forest.Forest, prev database.Hash, n int, nonce uint64) []database.Block {
	blocks := make([]database.Block, n)
	for i := range blocks {
		blocks[i] = empty(prev, nonce+uint64(i))
		require.NoError(t, f.AddBlock(blocks[i]))
		prev = blocks[i].Hash()
	}
	return blocks
}

func TestScenario(t *testing.T) {
	aKey, err := crypto.HexToECDSA(pkHexKey)
	require.NoError(t, err)
	a := database.PublicKeyToAccountID(aKey.PublicKey)

	bKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	b := database.PublicKeyToAccountID(bKey.PublicKey)

	genesis := newGenesis(t, database.Output{Value: 25, Owner: a})
	o0 := genesis.Coinbase.OutputRef(0)
	f := newForest(t, genesis, 10)

	require.Equal(t, 1, f.MaxHeight())
	require.Equal(t, genesis.Hash(), f.MaxHeightBlock().Hash())
	require.Equal(t, 1, f.MaxHeightUTXOSet().Len())

	t1 := database.NewTx(1, []database.OutputRef{o0}, []database.Output{{Value: 25, Owner: b}})
	require.NoError(t, t1.SignAll(aKey))

	coinbase := database.NewCoinbase(1, database.Output{Value: 12, Owner: miner})
	block1 := database.NewBlock(genesis.Hash(), coinbase, t1)
	require.NoError(t, f.AddBlock(block1))

	require.Equal(t, 2, f.MaxHeight())
	require.Len(t, f.Frontier(), 1)

	set := f.MaxHeightUTXOSet()
	require.Equal(t, 2, set.Len())
	out, ok := set.Get(t1.OutputRef(0))
	require.True(t, ok)
	require.Equal(t, database.Output{Value: 25, Owner: b}, out)
	out, ok = set.Get(coinbase.OutputRef(0))
	require.True(t, ok)
	require.Equal(t, database.Output{Value: 12, Owner: miner}, out)

	// A rival spend of the same output on its own fork.
	rival := database.NewTx(2, []database.OutputRef{o0}, []database.Output{{Value: 25, Owner: a}})
	require.NoError(t, rival.SignAll(aKey))
	block2 := database.NewBlock(genesis.Hash(), database.NewCoinbase(2, database.Output{Value: 12, Owner: miner}), rival)
	require.NoError(t, f.AddBlock(block2))

	frontier := f.Frontier()
	require.Len(t, frontier, 2)
	require.Equal(t, 2, frontier[0].Height)
	require.Equal(t, 2, frontier[1].Height)

	// Each branch keeps its own view of who owns the output.
	n1, ok := f.Node(block1.Hash())
	require.True(t, ok)
	require.EqualValues(t, 25, n1.UTXOs().Balance(b))
	n2, ok := f.Node(block2.Hash())
	require.True(t, ok)
	require.EqualValues(t, 25, n2.UTXOs().Balance(a))
	require.EqualValues(t, 0, n2.UTXOs().Balance(b))

	// The genesis snapshot never changes.
	root, ok := f.Node(genesis.Hash())
	require.True(t, ok)
	require.True(t, root.UTXOs().Frozen())
	require.True(t, root.UTXOs().Contains(o0))

	// Extending one fork past the cutoff eliminates the other.
	extend(t, f, block1.Hash(), 11, 100)
	require.Len(t, f.Frontier(), 1)
	_, ok = f.Node(block2.Hash())
	require.False(t, ok)
}

func TestAtomicRejection(t *testing.T) {
	aKey, err := crypto.HexToECDSA(pkHexKey)
	require.NoError(t, err)
	a := database.PublicKeyToAccountID(aKey.PublicKey)

	genesis := newGenesis(t, database.Output{Value: 25, Owner: a})
	f := newForest(t, genesis, 10)

	good := database.NewTx(1, []database.OutputRef{genesis.Coinbase.OutputRef(0)}, []database.Output{{Value: 20, Owner: miner}})
	require.NoError(t, good.SignAll(aKey))
	bad := database.NewTx(2, []database.OutputRef{genesis.Coinbase.OutputRef(0)}, []database.Output{{Value: 5, Owner: miner}})
	require.NoError(t, bad.SignAll(aKey))

	head := f.MaxHeightBlock()
	set := f.MaxHeightUTXOSet().Clone()

	block := database.NewBlock(genesis.Hash(), database.NewCoinbase(1, database.Output{Value: 1, Owner: miner}), good, bad)
	require.ErrorIs(t, f.AddBlock(block), forest.ErrInvalidTransactions)

	require.Equal(t, head.Hash(), f.MaxHeightBlock().Hash())
	require.True(t, set.Equal(f.MaxHeightUTXOSet()))
	require.Equal(t, 1, f.Len())
	require.Len(t, f.Frontier(), 1)

	// The same block without the double spend is fine.
	block = database.NewBlock(genesis.Hash(), database.NewCoinbase(1, database.Output{Value: 1, Owner: miner}), good)
	require.NoError(t, f.AddBlock(block))
	require.Equal(t, 2, f.MaxHeight())
}

func TestCutoffBoundary(t *testing.T) {
	genesis := newGenesis(t)
	f := newForest(t, genesis, 10)

	// Heights 2 through 13.
	chain := extend(t, f, genesis.Hash(), 12, 1)
	const maxHeight = 13
	require.Equal(t, maxHeight, f.MaxHeight())

	byHeight := func(h int) database.Block {
		if h == 1 {
			return genesis
		}
		return chain[h-2]
	}

	t.Run("accepted at the edge", func(t *testing.T) {
		parent := byHeight(maxHeight - 10)
		require.NoError(t, f.AddBlock(empty(parent.Hash(), 1000)))
		require.Equal(t, maxHeight, f.MaxHeight())
		require.Len(t, f.Frontier(), 2)
	})

	t.Run("rejected past the edge", func(t *testing.T) {
		parent := byHeight(maxHeight - 11)
		head := f.MaxHeightBranch()

		require.ErrorIs(t, f.AddBlock(empty(parent.Hash(), 2000)), forest.ErrCutoffAge)
		require.Equal(t, head, f.MaxHeightBranch())
	})

	t.Run("forgotten after twice the cutoff", func(t *testing.T) {
		require.ErrorIs(t, f.AddBlock(empty(genesis.Hash(), 3000)), forest.ErrCutoffAge)

		extend(t, f, chain[len(chain)-1].Hash(), 10, 4000)
		require.ErrorIs(t, f.AddBlock(empty(genesis.Hash(), 3000)), forest.ErrOrphan)
	})
}

func TestVaryingCutoff(t *testing.T) {
	for _, cutoff := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("cutoff %d", cutoff), func(t *testing.T) {
			genesis := newGenesis(t)
			f := newForest(t, genesis, cutoff)
			require.Equal(t, cutoff, f.CutoffAge())

			chain := extend(t, f, genesis.Hash(), 3*cutoff, 1)
			tip := f.MaxHeight()

			// The oldest node inside the window can still take a child.
			edge := chain[len(chain)-1-cutoff]
			require.NoError(t, f.AddBlock(empty(edge.Hash(), 500)))

			below := chain[len(chain)-2-cutoff]
			require.ErrorIs(t, f.AddBlock(empty(below.Hash(), 600)), forest.ErrCutoffAge)

			require.Equal(t, tip, f.MaxHeight())
		})
	}
}

func TestPruningBound(t *testing.T) {
	const cutoff = 2

	genesis := newGenesis(t)
	f := newForest(t, genesis, cutoff)

	fork := extend(t, f, genesis.Hash(), 1, 900)
	extend(t, f, genesis.Hash(), 20, 1)

	require.Len(t, f.Frontier(), 1)
	require.Equal(t, cutoff+1, f.Len())

	_, ok := f.Node(fork[0].Hash())
	require.False(t, ok)
	_, ok = f.Node(genesis.Hash())
	require.False(t, ok)

	chain := f.MaxHeightChain()
	require.Len(t, chain, cutoff+1)
	require.Equal(t, f.MaxHeightBlock().Hash(), chain[0].Hash)
	for i := 1; i < len(chain); i++ {
		require.Equal(t, chain[i].Hash, chain[i-1].Block.PrevBlockHash)
	}
}

func TestTieBreak(t *testing.T) {
	genesis := newGenesis(t)
	b1 := empty(genesis.Hash(), 1)
	b2 := empty(genesis.Hash(), 2)

	lowest := b1.Hash()
	if bytes.Compare(b2.Hash().Bytes(), lowest.Bytes()) < 0 {
		lowest = b2.Hash()
	}

	for _, order := range [][]database.Block{{b1, b2}, {b2, b1}} {
		f := newForest(t, genesis, 10)
		for _, block := range order {
			require.NoError(t, f.AddBlock(block))
		}

		require.Equal(t, lowest, f.MaxHeightBlock().Hash())
		require.Equal(t, lowest, f.Frontier()[0].Hash)
	}
}

func TestRejections(t *testing.T) {
	genesis := newGenesis(t)
	f := newForest(t, genesis, 10)
	block := empty(genesis.Hash(), 1)
	require.NoError(t, f.AddBlock(block))

	t.Run("no parent", func(t *testing.T) {
		err := f.AddBlock(newGenesis(t))
		require.ErrorIs(t, err, forest.ErrNoParent)
		require.Equal(t, "no_parent", forest.Reason(err))
	})

	t.Run("orphan", func(t *testing.T) {
		unknown := database.Hash{0x01}
		err := f.AddBlock(empty(unknown, 1))
		require.ErrorIs(t, err, forest.ErrOrphan)
		require.Equal(t, "orphan", forest.Reason(err))
	})

	t.Run("duplicate", func(t *testing.T) {
		err := f.AddBlock(block)
		require.ErrorIs(t, err, forest.ErrDuplicateBlock)
		require.Equal(t, "duplicate", forest.Reason(err))
	})

	t.Run("other", func(t *testing.T) {
		require.Equal(t, "other", forest.Reason(fmt.Errorf("disk on fire")))
	})

	require.Equal(t, 2, f.Len())
	require.Len(t, f.Frontier(), 1)
}

func TestMalformedGenesis(t *testing.T) {
	good := newGenesis(t)

	withParent := good
	withParent.PrevBlockHash = database.Hash{0x01}

	withTrans := good
	withTrans.Trans = []database.Tx{database.NewCoinbase(1, database.Output{Value: 1, Owner: miner})}

	withInputs := good
	withInputs.Coinbase = database.NewTx(0, []database.OutputRef{{Index: 1}}, []database.Output{{Value: 1, Owner: miner}})

	negative := newGenesis(t, database.Output{Value: -1, Owner: miner})

	for name, genesis := range map[string]database.Block{
		"parent":       withParent,
		"transactions": withTrans,
		"inputs":       withInputs,
		"negative":     negative,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := forest.New(genesis, forest.Config{})
			require.ErrorIs(t, err, forest.ErrMalformedGenesis)
		})
	}

	_, err := forest.New(good, forest.Config{CutoffAge: -1})
	require.Error(t, err)

	f, err := forest.New(good, forest.Config{})
	require.NoError(t, err)
	require.Equal(t, forest.DefaultCutoffAge, f.CutoffAge())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	genesis := newGenesis(t)
	f, err := forest.New(genesis, forest.Config{Registerer: reg})
	require.NoError(t, err)

	extend(t, f, genesis.Hash(), 2, 1)
	require.ErrorIs(t, f.AddBlock(empty(database.Hash{0x01}, 1)), forest.ErrOrphan)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, label := range m.GetLabel() {
				name += "/" + label.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[name] = m.GetGauge().GetValue()
			}
		}
	}

	require.EqualValues(t, 2, values["blockforest_forest_blocks_accepted_total"])
	require.EqualValues(t, 1, values["blockforest_forest_blocks_rejected_total/orphan"])
	require.EqualValues(t, 3, values["blockforest_forest_max_height"])
	require.EqualValues(t, 1, values["blockforest_forest_frontier_size"])

	// A second forest can't claim the same collectors.
	_, err = forest.New(genesis, forest.Config{Registerer: reg})
	require.Error(t, err)
}

func TestWriteDOT(t *testing.T) {
	genesis := newGenesis(t)
	f := newForest(t, genesis, 10)
	a := extend(t, f, genesis.Hash(), 2, 1)
	b := extend(t, f, genesis.Hash(), 1, 50)

	g, err := f.Graph()
	require.NoError(t, err)
	adj, err := g.AdjacencyMap()
	require.NoError(t, err)
	require.Len(t, adj, 4)

	var edges int
	for _, children := range adj {
		edges += len(children)
	}
	require.Equal(t, 3, edges)
	require.Len(t, adj[genesis.Hash().Hex()], 2)

	var buf bytes.Buffer
	require.NoError(t, f.WriteDOT(&buf))

	dot := buf.String()
	require.Contains(t, dot, "digraph")
	for _, hash := range []database.Hash{genesis.Hash(), a[1].Hash(), b[0].Hash()} {
		require.Contains(t, dot, hash.Hex())
	}
}

func TestConcurrentReaders(t *testing.T) {
	genesis := newGenesis(t)
	f := newForest(t, genesis, 3)

	var wg sync.WaitGroup
	wg.Add(4)
	for i := 0; i < 4; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				head := f.MaxHeightBranch()
				if head.UTXOs().Len() == 0 {
					t.Error("head should always hold outputs")
				}
				f.Frontier()
			}
		}()
	}

	extend(t, f, genesis.Hash(), 30, 1)
	wg.Wait()

	require.Equal(t, 31, f.MaxHeight())
}
