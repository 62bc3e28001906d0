package public

import (
	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/state"
)

type output struct {
	Value int64              `json:"value"`
	Owner database.AccountID `json:"owner"`
	Name  string             `json:"name"`
}

type input struct {
	Ref       database.OutputRef `json:"ref"`
	Signature string             `json:"signature"`
}

type tx struct {
	Hash    database.Hash `json:"hash"`
	Nonce   uint64        `json:"nonce"`
	Inputs  []input       `json:"inputs"`
	Outputs []output      `json:"outputs"`
}

type block struct {
	Hash          database.Hash `json:"hash"`
	PrevBlockHash database.Hash `json:"prev_block_hash"`
	Height        int           `json:"height"`
	Coinbase      tx            `json:"coinbase"`
	Trans         []tx          `json:"trans"`
}

type utxo struct {
	Ref   database.OutputRef `json:"ref"`
	Value int64              `json:"value"`
	Owner database.AccountID `json:"owner"`
	Name  string             `json:"name"`
}

type utxoInfo struct {
	HeadHash    database.Hash      `json:"head_hash"`
	Height      int                `json:"height"`
	Account     database.AccountID `json:"account,omitempty"`
	Balance     int64              `json:"balance"`
	Uncommitted int                `json:"uncommitted"`
	UTXOs       []utxo             `json:"utxos"`
}

type status struct {
	state.Status
	Subscribers int `json:"subscribers"`
}
