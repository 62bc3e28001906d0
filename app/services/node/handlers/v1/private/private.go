// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ardanlabs/blockforest/business/sys/validate"
	"github.com/ardanlabs/blockforest/business/web/errs"
	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
	"github.com/ardanlabs/blockforest/foundation/blockchain/forest"
	"github.com/ardanlabs/blockforest/foundation/blockchain/state"
	"github.com/ardanlabs/blockforest/foundation/web"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitNodeTransaction adds a transaction shared by another node to the
// mempool.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a transaction.
	var tx database.Tx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(tx); err != nil {
		return err
	}

	n := h.State.AddTransaction(tx)
	h.Log.Infow("add node tran", "traceid", v.TraceID, "tx", tx.Hash().Hex(), "mempool", n)

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProposeBlock takes a block assembled elsewhere, validates it and if that
// passes, adds the block to the forest.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a block.
	var block database.Block
	if err := web.Decode(r, &block); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(block); err != nil {
		return err
	}

	// Ask the state package to add the block to the forest. The forest
	// performs every consensus check.
	if err := h.State.AddBlock(block); err != nil {
		h.Log.Infow("propose block", "traceid", v.TraceID, "block", block.Hash().Hex(), "status", "rejected", "ERROR", err)
		return errs.NewTrustedReason(fmt.Errorf("block not accepted: %w", err), http.StatusNotAcceptable, forest.Reason(err))
	}

	_, height := h.State.RetrieveMaxHeightBlock()

	resp := struct {
		Status    string        `json:"status"`
		Hash      database.Hash `json:"hash"`
		MaxHeight int           `json:"max_height"`
	}{
		Status:    "accepted",
		Hash:      block.Hash(),
		MaxHeight: height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveStatus(), http.StatusOK)
}

// BlockByHash returns a block the forest still holds.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hashStr := web.Param(r, "hash")

	raw, err := hexToHash(hashStr)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	block, height, exists := h.State.QueryBlockByHash(raw)
	if !exists {
		return errs.NewTrusted(fmt.Errorf("block %s not found", hashStr), http.StatusNotFound)
	}

	resp := struct {
		Height int            `json:"height"`
		Block  database.Block `json:"block"`
	}{
		Height: height,
		Block:  block,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// hexToHash parses a 0x prefixed, 32 byte hex string.
func hexToHash(s string) (database.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return database.Hash{}, err
	}
	if len(b) != common.HashLength {
		return database.Hash{}, fmt.Errorf("hash %s has %d bytes", s, len(b))
	}
	return common.BytesToHash(b), nil
}
