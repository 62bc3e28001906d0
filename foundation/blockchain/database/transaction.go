package database

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/blockforest/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hash is the fixed length content identity of transactions and blocks.
type Hash = common.Hash

// =============================================================================

// OutputRef identifies a spendable output by the hash of the transaction
// that produced it and the position of the output in that transaction.
type OutputRef struct {
	TxHash Hash   `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

// String implements the fmt.Stringer interface for logging.
func (ref OutputRef) String() string {
	return fmt.Sprintf("%s:%d", ref.TxHash.Hex(), ref.Index)
}

// Output is an amount of value locked to an owner.
type Output struct {
	Value int64     `json:"value"`
	Owner AccountID `json:"owner" validate:"required"`
}

// Input claims a previously produced output. The signature is produced by
// the owner of the claimed output over the input's signable payload.
type Input struct {
	Ref       OutputRef     `json:"ref"`
	Signature hexutil.Bytes `json:"signature"`
}

// =============================================================================

// Tx moves value from the outputs claimed by its inputs to a new set of
// outputs. A transaction without inputs is a coinbase.
type Tx struct {
	Nonce   uint64   `json:"nonce"`
	Inputs  []Input  `json:"inputs" validate:"dive"`
	Outputs []Output `json:"outputs" validate:"dive"`
}

// NewTx constructs an unsigned transaction spending the specified outputs.
func NewTx(nonce uint64, refs []OutputRef, outputs []Output) Tx {
	inputs := make([]Input, len(refs))
	for i, ref := range refs {
		inputs[i] = Input{Ref: ref}
	}

	return Tx{
		Nonce:   nonce,
		Inputs:  inputs,
		Outputs: outputs,
	}
}

// NewCoinbase constructs a reward transaction. The nonce should be unique
// per block, like the block height, so coinbases paying the same owners
// the same amounts don't share a hash.
func NewCoinbase(nonce uint64, outputs ...Output) Tx {
	return Tx{
		Nonce:   nonce,
		Outputs: outputs,
	}
}

// Hash returns the content hash of the transaction, signatures included.
func (tx Tx) Hash() Hash {
	return signature.Hash(tx)
}

// OutputRef returns the reference for the output at the specified index.
func (tx Tx) OutputRef(index int) OutputRef {
	return OutputRef{
		TxHash: tx.Hash(),
		Index:  uint32(index),
	}
}

// IsCoinbase reports whether the transaction has no inputs.
func (tx Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// SignablePayload returns the canonical bytes the owner of the output
// claimed by the specified input must sign. It covers the input's own
// reference and every output, and never any signature, so each input can
// be signed independently.
func (tx Tx) SignablePayload(input int) ([]byte, error) {
	if input < 0 || input >= len(tx.Inputs) {
		return nil, fmt.Errorf("input %d out of range, tx has %d inputs", input, len(tx.Inputs))
	}

	payload := struct {
		Nonce   uint64    `json:"nonce"`
		Ref     OutputRef `json:"ref"`
		Outputs []Output  `json:"outputs"`
	}{
		Nonce:   tx.Nonce,
		Ref:     tx.Inputs[input].Ref,
		Outputs: tx.Outputs,
	}

	return json.Marshal(payload)
}

// Sign uses the specified private key to sign the specified input.
func (tx *Tx) Sign(input int, privateKey *ecdsa.PrivateKey) error {
	payload, err := tx.SignablePayload(input)
	if err != nil {
		return err
	}

	sig, err := signature.Sign(payload, privateKey)
	if err != nil {
		return fmt.Errorf("signing input %d: %w", input, err)
	}

	tx.Inputs[input].Signature = sig

	return nil
}

// SignAll signs every input with the specified private key.
func (tx *Tx) SignAll(privateKey *ecdsa.PrivateKey) error {
	for i := range tx.Inputs {
		if err := tx.Sign(i, privateKey); err != nil {
			return err
		}
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s[in:%d out:%d]", tx.Hash().TerminalString(), len(tx.Inputs), len(tx.Outputs))
}
