// Package ledger validates transactions against a set of unspent outputs
// and applies batches of them in order.
package ledger

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/signature"
	"github.com/ardanlabs/blockforest/foundation/blockchain/utxo"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Set of error variables for transaction validation.
var (
	ErrMissingInput      = errors.New("input claims an output that is not unspent")
	ErrDoubleSpend       = errors.New("output claimed more than once")
	ErrBadSignature      = errors.New("input signature does not match the output owner")
	ErrNegativeOutput    = errors.New("output value is negative")
	ErrInsufficientFunds = errors.New("outputs are worth more than inputs")
	ErrOverflow          = errors.New("value sum overflows")
)

// EventHandler defines a function that is called when events
// occur in the processing of transactions.
type EventHandler func(v string, args ...any)

// VerifyFunc reports whether sig is the owner's signature over payload.
type VerifyFunc func(owner database.AccountID, payload []byte, sig []byte) bool

// DefaultVerify checks signatures with the blockchain signature package.
func DefaultVerify(owner database.AccountID, payload []byte, sig []byte) bool {
	return signature.Verify(string(owner), payload, sig)
}

// =============================================================================

// Config represents the configuration required to construct a Validator.
type Config struct {
	Verify       VerifyFunc
	SigCacheSize int // Zero disables the signature cache.
	EvHandler    EventHandler
}

// sigKey identifies one successful signature check.
type sigKey struct {
	owner   database.AccountID
	payload common.Hash
	sig     string
}

// Validator checks transactions against unspent output sets. It holds no
// ledger state of its own so one value can serve every branch.
type Validator struct {
	verify   VerifyFunc
	sigCache *lru.Cache[sigKey, struct{}]
	ev       EventHandler
}

// New constructs a validator for use.
func New(cfg Config) (*Validator, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	verify := cfg.Verify
	if verify == nil {
		verify = DefaultVerify
	}

	v := Validator{
		verify: verify,
		ev:     ev,
	}

	// The same transaction is verified once per branch it lands on, so
	// successful checks are remembered.
	if cfg.SigCacheSize > 0 {
		cache, err := lru.New[sigKey, struct{}](cfg.SigCacheSize)
		if err != nil {
			return nil, fmt.Errorf("constructing signature cache: %w", err)
		}
		v.sigCache = cache
	}

	return &v, nil
}

// Validate checks the transaction against the set without changing it. A
// transaction is valid when every input claims a distinct unspent output,
// every input is signed by the owner of the output it claims, no output is
// negative and the outputs are worth no more than the inputs.
func (v *Validator) Validate(tx database.Tx, set *utxo.Set) error {
	claimed := make(map[database.OutputRef]struct{}, len(tx.Inputs))
	prevOutputs := make([]database.Output, len(tx.Inputs))

	for i, input := range tx.Inputs {
		if _, exists := claimed[input.Ref]; exists {
			return fmt.Errorf("input %d, ref %s: %w", i, input.Ref, ErrDoubleSpend)
		}
		claimed[input.Ref] = struct{}{}

		output, exists := set.Get(input.Ref)
		if !exists {
			return fmt.Errorf("input %d, ref %s: %w", i, input.Ref, ErrMissingInput)
		}
		prevOutputs[i] = output
	}

	var outputSum int64
	for i, output := range tx.Outputs {
		if output.Value < 0 {
			return fmt.Errorf("output %d, value %d: %w", i, output.Value, ErrNegativeOutput)
		}

		var ok bool
		if outputSum, ok = database.AddValue(outputSum, output.Value); !ok {
			return fmt.Errorf("outputs: %w", ErrOverflow)
		}
	}

	var inputSum int64
	for _, output := range prevOutputs {
		var ok bool
		if inputSum, ok = database.AddValue(inputSum, output.Value); !ok {
			return fmt.Errorf("inputs: %w", ErrOverflow)
		}
	}

	if inputSum < outputSum {
		return fmt.Errorf("inputs %d, outputs %d: %w", inputSum, outputSum, ErrInsufficientFunds)
	}

	// Signatures are the expensive part so they are checked last.
	for i, input := range tx.Inputs {
		payload, err := tx.SignablePayload(i)
		if err != nil {
			return err
		}

		if !v.verified(prevOutputs[i].Owner, payload, input.Signature) {
			return fmt.Errorf("input %d, owner %s: %w", i, prevOutputs[i].Owner, ErrBadSignature)
		}
	}

	return nil
}

// IsValid reports whether the transaction validates against the set.
func (v *Validator) IsValid(tx database.Tx, set *utxo.Set) bool {
	return v.Validate(tx, set) == nil
}

// Apply validates the transaction and then consumes its inputs and adds its
// outputs to the set. Either every change is made or none is.
func (v *Validator) Apply(tx database.Tx, set *utxo.Set) error {
	if set.Frozen() {
		return utxo.ErrFrozen
	}

	if err := v.Validate(tx, set); err != nil {
		return err
	}

	for _, input := range tx.Inputs {
		if err := set.Remove(input.Ref); err != nil {
			return err
		}
	}

	return addOutputs(tx, set)
}

// ApplyBatch processes the candidates in order against a copy of the set.
// Each candidate is validated against the copy as left by the candidates
// accepted before it, so a transaction may spend outputs created earlier in
// the batch and a contested output goes to the first valid claimant. Invalid
// candidates are skipped. The specified set is never changed.
func (v *Validator) ApplyBatch(candidates []database.Tx, set *utxo.Set) ([]database.Tx, *utxo.Set) {
	newSet := set.Clone()
	accepted := make([]database.Tx, 0, len(candidates))

	for _, tx := range candidates {
		if err := v.Apply(tx, newSet); err != nil {
			v.ev("ledger: ApplyBatch: skipped: tx[%s]: %s", tx, err)
			continue
		}

		accepted = append(accepted, tx)
	}

	return accepted, newSet
}

// ApplyCoinbase adds the coinbase outputs to the set. A coinbase is the
// block reward so nothing about it is validated.
func ApplyCoinbase(coinbase database.Tx, set *utxo.Set) error {
	return addOutputs(coinbase, set)
}

// =============================================================================

// verified checks a signature, consulting the cache first when enabled.
func (v *Validator) verified(owner database.AccountID, payload []byte, sig []byte) bool {
	if v.sigCache == nil {
		return v.verify(owner, payload, sig)
	}

	key := sigKey{
		owner:   owner,
		payload: crypto.Keccak256Hash(payload),
		sig:     string(sig),
	}

	if v.sigCache.Contains(key) {
		return true
	}

	if !v.verify(owner, payload, sig) {
		return false
	}

	v.sigCache.Add(key, struct{}{})
	return true
}

// addOutputs inserts every output of the transaction keyed by the
// transaction hash and output index.
func addOutputs(tx database.Tx, set *utxo.Set) error {
	hash := tx.Hash()
	for i, output := range tx.Outputs {
		ref := database.OutputRef{TxHash: hash, Index: uint32(i)}
		if err := set.Add(ref, output); err != nil {
			return err
		}
	}

	return nil
}
