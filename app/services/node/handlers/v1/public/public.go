// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/blockforest/business/sys/validate"
	"github.com/ardanlabs/blockforest/business/web/errs"
	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/signature"
	"github.com/ardanlabs/blockforest/foundation/blockchain/state"
	"github.com/ardanlabs/blockforest/foundation/events"
	"github.com/ardanlabs/blockforest/foundation/nameservice"
	"github.com/ardanlabs/blockforest/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the ledger.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Block waiting for events from the ledger or ticker.
	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a new wallet transaction to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var dbTx database.Tx
	if err := web.Decode(r, &dbTx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(dbTx); err != nil {
		return err
	}

	// Rewards only enter the ledger inside a block.
	if dbTx.IsCoinbase() {
		return errs.NewTrusted(errors.New("transaction has no inputs"), http.StatusBadRequest)
	}

	n := h.State.AddTransaction(dbTx)
	h.Log.Infow("add wallet tran", "traceid", v.TraceID, "tx", dbTx.Hash().Hex(), "inputs", len(dbTx.Inputs), "outputs", len(dbTx.Outputs), "mempool", n)

	resp := struct {
		Status string        `json:"status"`
		Hash   database.Hash `json:"hash"`
	}{
		Status: "transaction added to mempool",
		Hash:   dbTx.Hash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis block.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.toBlock(h.State.RetrieveGenesis(), 1), http.StatusOK)
}

// Head returns the block at the tip of the tallest branch.
func (h Handlers) Head(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blk, height := h.State.RetrieveMaxHeightBlock()
	return web.Respond(ctx, w, h.toBlock(blk, height), http.StatusOK)
}

// Status returns a summary of the forest and the mempool.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st := status{
		Status:      h.State.RetrieveStatus(),
		Subscribers: h.Evts.Count(),
	}
	return web.Respond(ctx, w, st, http.StatusOK)
}

// Blocks returns the tallest branch as far back as the forest holds it,
// tip first.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	chain := h.State.RetrieveMaxHeightChain()

	blocks := make([]block, len(chain))
	for i, blk := range chain {
		blocks[i] = h.toBlock(blk.Block, blk.Height)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.RetrieveMempool()

	trans := make([]tx, len(mempool))
	for i, tran := range mempool {
		trans[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// UTXOs returns the unspent outputs of the tallest branch, optionally only
// those owned by one account.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	// Every figure comes from the same head even if a block lands meanwhile.
	head, set := h.State.RetrieveHead()

	info := utxoInfo{
		HeadHash:    head.Block.Hash(),
		Height:      head.Height,
		Uncommitted: h.State.QueryMempoolLength(),
	}

	entries := set.Entries()
	if acct := web.Param(r, "account"); acct != "" {
		account, err := database.ToAccountID(acct)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}

		info.Account = account
		info.Balance = set.Balance(account)
		entries = set.ByOwner(account)
	}

	info.UTXOs = make([]utxo, len(entries))
	for i, entry := range entries {
		info.UTXOs[i] = utxo{
			Ref:   entry.Ref,
			Value: entry.Output.Value,
			Owner: entry.Output.Owner,
			Name:  h.NS.Lookup(entry.Output.Owner),
		}
		if info.Account == "" {
			info.Balance += entry.Output.Value
		}
	}

	return web.Respond(ctx, w, info, http.StatusOK)
}

// =============================================================================

func (h Handlers) toTx(dbTx database.Tx) tx {
	inputs := make([]input, len(dbTx.Inputs))
	for i, in := range dbTx.Inputs {
		inputs[i] = input{
			Ref:       in.Ref,
			Signature: signature.SignatureString(in.Signature),
		}
	}

	outputs := make([]output, len(dbTx.Outputs))
	for i, out := range dbTx.Outputs {
		outputs[i] = output{
			Value: out.Value,
			Owner: out.Owner,
			Name:  h.NS.Lookup(out.Owner),
		}
	}

	return tx{
		Hash:    dbTx.Hash(),
		Nonce:   dbTx.Nonce,
		Inputs:  inputs,
		Outputs: outputs,
	}
}

func (h Handlers) toBlock(blk database.Block, height int) block {
	trans := make([]tx, len(blk.Trans))
	for i, tran := range blk.Trans {
		trans[i] = h.toTx(tran)
	}

	return block{
		Hash:          blk.Hash(),
		PrevBlockHash: blk.PrevBlockHash,
		Height:        height,
		Coinbase:      h.toTx(blk.Coinbase),
		Trans:         trans,
	}
}
