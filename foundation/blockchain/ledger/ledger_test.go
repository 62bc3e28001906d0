package ledger_test

import (
	"crypto/ecdsa"
	"math"
	"testing"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/ledger"
	"github.com/ardanlabs/blockforest/foundation/blockchain/utxo"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

type party struct {
	key     *ecdsa.PrivateKey
	account database.AccountID
}

func newParty(t *testing.T) party {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return party{key: key, account: database.PublicKeyToAccountID(key.PublicKey)}
}

func alice(t *testing.T) party {
	key, err := crypto.HexToECDSA(pkHexKey)
	require.NoError(t, err)
	return party{key: key, account: database.PublicKeyToAccountID(key.PublicKey)}
}

// fixture builds a set holding the outputs of a single coinbase.
func fixture(t *testing.T, outputs ...database.Output) (database.Tx, *utxo.Set) {
	coinbase := database.NewCoinbase(1, outputs...)
	set := utxo.New()
	require.NoError(t, ledger.ApplyCoinbase(coinbase, set))
	return coinbase, set
}

func spend(t *testing.T, signer party, nonce uint64, refs []database.OutputRef, outputs ...database.Output) database.Tx {
	tx := database.NewTx(nonce, refs, outputs)
	require.NoError(t, tx.SignAll(signer.key))
	return tx
}

func newValidator(t *testing.T) *ledger.Validator {
	v, err := ledger.New(ledger.Config{})
	require.NoError(t, err)
	return v
}

func TestScenario(t *testing.T) {
	a := alice(t)
	b := newParty(t)
	v := newValidator(t)

	coinbase, set := fixture(t, database.Output{Value: 25, Owner: a.account})
	o0 := coinbase.OutputRef(0)

	t1 := spend(t, a, 1, []database.OutputRef{o0}, database.Output{Value: 25, Owner: b.account})
	require.True(t, v.IsValid(t1, set))

	accepted, newSet := v.ApplyBatch([]database.Tx{t1}, set)
	require.Equal(t, []database.Tx{t1}, accepted)
	require.Equal(t, 1, newSet.Len())

	out, ok := newSet.Get(t1.OutputRef(0))
	require.True(t, ok)
	require.Equal(t, database.Output{Value: 25, Owner: b.account}, out)

	// The input set is left alone.
	require.Equal(t, 1, set.Len())
	require.True(t, set.Contains(o0))
}

func TestValidate(t *testing.T) {
	a := alice(t)
	b := newParty(t)
	v := newValidator(t)

	coinbase, set := fixture(t,
		database.Output{Value: 25, Owner: a.account},
		database.Output{Value: 10, Owner: a.account},
	)
	o0, o1 := coinbase.OutputRef(0), coinbase.OutputRef(1)

	t.Run("valid with surplus", func(t *testing.T) {
		tx := spend(t, a, 1, []database.OutputRef{o0, o1}, database.Output{Value: 30, Owner: b.account})
		require.NoError(t, v.Validate(tx, set))
	})

	t.Run("missing input", func(t *testing.T) {
		missing := database.OutputRef{TxHash: coinbase.Hash(), Index: 9}
		tx := spend(t, a, 1, []database.OutputRef{missing}, database.Output{Value: 1, Owner: b.account})
		require.ErrorIs(t, v.Validate(tx, set), ledger.ErrMissingInput)
	})

	t.Run("same output twice", func(t *testing.T) {
		tx := spend(t, a, 1, []database.OutputRef{o0, o0}, database.Output{Value: 50, Owner: b.account})
		require.ErrorIs(t, v.Validate(tx, set), ledger.ErrDoubleSpend)
	})

	t.Run("wrong signer", func(t *testing.T) {
		tx := spend(t, b, 1, []database.OutputRef{o0}, database.Output{Value: 25, Owner: b.account})
		require.ErrorIs(t, v.Validate(tx, set), ledger.ErrBadSignature)
	})

	t.Run("signature over other outputs", func(t *testing.T) {
		tx := spend(t, a, 1, []database.OutputRef{o0}, database.Output{Value: 5, Owner: b.account})
		tx.Outputs[0].Value = 25
		require.ErrorIs(t, v.Validate(tx, set), ledger.ErrBadSignature)
	})

	t.Run("unsigned", func(t *testing.T) {
		tx := database.NewTx(1, []database.OutputRef{o0}, []database.Output{{Value: 25, Owner: b.account}})
		require.ErrorIs(t, v.Validate(tx, set), ledger.ErrBadSignature)
	})

	t.Run("negative output", func(t *testing.T) {
		tx := spend(t, a, 1, []database.OutputRef{o0},
			database.Output{Value: 30, Owner: b.account},
			database.Output{Value: -5, Owner: a.account},
		)
		require.ErrorIs(t, v.Validate(tx, set), ledger.ErrNegativeOutput)
	})

	t.Run("outputs exceed inputs", func(t *testing.T) {
		tx := spend(t, a, 1, []database.OutputRef{o0}, database.Output{Value: 26, Owner: b.account})
		require.ErrorIs(t, v.Validate(tx, set), ledger.ErrInsufficientFunds)
	})

	t.Run("outputs exceed inputs with any signature", func(t *testing.T) {
		trusting, err := ledger.New(ledger.Config{
			Verify: func(database.AccountID, []byte, []byte) bool { return true },
		})
		require.NoError(t, err)

		tx := database.NewTx(1, []database.OutputRef{o0}, []database.Output{{Value: 26, Owner: b.account}})
		require.ErrorIs(t, trusting.Validate(tx, set), ledger.ErrInsufficientFunds)
	})

	t.Run("overflow", func(t *testing.T) {
		tx := spend(t, a, 1, []database.OutputRef{o0},
			database.Output{Value: math.MaxInt64, Owner: b.account},
			database.Output{Value: math.MaxInt64, Owner: b.account},
		)
		require.ErrorIs(t, v.Validate(tx, set), ledger.ErrOverflow)
	})

	t.Run("validate is pure", func(t *testing.T) {
		before := set.Clone()
		tx := spend(t, a, 1, []database.OutputRef{o0}, database.Output{Value: 25, Owner: b.account})
		require.NoError(t, v.Validate(tx, set))
		require.True(t, before.Equal(set))
	})
}

func TestApplyCardinality(t *testing.T) {
	a := alice(t)
	b := newParty(t)
	v := newValidator(t)

	coinbase, set := fixture(t,
		database.Output{Value: 25, Owner: a.account},
		database.Output{Value: 10, Owner: a.account},
		database.Output{Value: 5, Owner: a.account},
	)

	tx := spend(t, a, 1, []database.OutputRef{coinbase.OutputRef(0), coinbase.OutputRef(1)},
		database.Output{Value: 10, Owner: b.account},
		database.Output{Value: 10, Owner: b.account},
		database.Output{Value: 15, Owner: a.account},
	)

	before := set.Len()
	require.NoError(t, v.Apply(tx, set))
	require.Equal(t, before+len(tx.Outputs)-len(tx.Inputs), set.Len())

	require.False(t, set.Contains(coinbase.OutputRef(0)))
	require.False(t, set.Contains(coinbase.OutputRef(1)))
	require.True(t, set.Contains(coinbase.OutputRef(2)))
	for i := range tx.Outputs {
		out, ok := set.Get(database.OutputRef{TxHash: tx.Hash(), Index: uint32(i)})
		require.True(t, ok)
		require.Equal(t, tx.Outputs[i], out)
	}

	// A rejected transaction changes nothing.
	snapshot := set.Clone()
	require.Error(t, v.Apply(tx, set))
	require.True(t, snapshot.Equal(set))

	set.Freeze()
	require.ErrorIs(t, v.Apply(tx, set), utxo.ErrFrozen)
}

func TestApplyBatchOrder(t *testing.T) {
	a := alice(t)
	b := newParty(t)
	c := newParty(t)
	v := newValidator(t)

	coinbase, set := fixture(t, database.Output{Value: 25, Owner: a.account})
	o0 := coinbase.OutputRef(0)

	t1 := spend(t, a, 1, []database.OutputRef{o0}, database.Output{Value: 25, Owner: b.account})
	t2 := spend(t, b, 2, []database.OutputRef{t1.OutputRef(0)}, database.Output{Value: 20, Owner: c.account})
	rival := spend(t, a, 3, []database.OutputRef{o0}, database.Output{Value: 25, Owner: c.account})

	t.Run("child after parent", func(t *testing.T) {
		accepted, newSet := v.ApplyBatch([]database.Tx{t1, t2}, set)
		require.Equal(t, []database.Tx{t1, t2}, accepted)
		require.Equal(t, 1, newSet.Len())
		require.EqualValues(t, 20, newSet.Balance(c.account))
	})

	t.Run("child before parent", func(t *testing.T) {
		accepted, _ := v.ApplyBatch([]database.Tx{t2, t1}, set)
		require.Equal(t, []database.Tx{t1}, accepted)
	})

	t.Run("double spend inside the batch", func(t *testing.T) {
		accepted, newSet := v.ApplyBatch([]database.Tx{rival, t1}, set)
		require.Equal(t, []database.Tx{rival}, accepted)
		require.EqualValues(t, 25, newSet.Balance(c.account))
		require.EqualValues(t, 0, newSet.Balance(b.account))
	})

	t.Run("frozen input set", func(t *testing.T) {
		frozen := set.Clone()
		frozen.Freeze()

		accepted, newSet := v.ApplyBatch([]database.Tx{t1}, frozen)
		require.Len(t, accepted, 1)
		require.False(t, newSet.Frozen())
		require.True(t, frozen.Contains(o0))
	})
}

func TestSignatureCache(t *testing.T) {
	a := alice(t)
	b := newParty(t)

	var calls int
	v, err := ledger.New(ledger.Config{
		SigCacheSize: 16,
		Verify: func(owner database.AccountID, payload []byte, sig []byte) bool {
			calls++
			return ledger.DefaultVerify(owner, payload, sig)
		},
	})
	require.NoError(t, err)

	coinbase, set := fixture(t, database.Output{Value: 25, Owner: a.account})
	good := spend(t, a, 1, []database.OutputRef{coinbase.OutputRef(0)}, database.Output{Value: 25, Owner: b.account})

	require.NoError(t, v.Validate(good, set))
	require.NoError(t, v.Validate(good, set))
	require.Equal(t, 1, calls)

	bad := spend(t, b, 1, []database.OutputRef{coinbase.OutputRef(0)}, database.Output{Value: 25, Owner: b.account})
	require.ErrorIs(t, v.Validate(bad, set), ledger.ErrBadSignature)
	require.ErrorIs(t, v.Validate(bad, set), ledger.ErrBadSignature)
	require.Equal(t, 3, calls)
}

func TestEvents(t *testing.T) {
	a := alice(t)
	b := newParty(t)

	var events []string
	v, err := ledger.New(ledger.Config{
		EvHandler: func(s string, args ...any) { events = append(events, s) },
	})
	require.NoError(t, err)

	_, set := fixture(t, database.Output{Value: 25, Owner: a.account})
	bogus := spend(t, a, 1, []database.OutputRef{{Index: 3}}, database.Output{Value: 1, Owner: b.account})

	accepted, _ := v.ApplyBatch([]database.Tx{bogus}, set)
	require.Empty(t, accepted)
	require.Len(t, events, 1)
}
