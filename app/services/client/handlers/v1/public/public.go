// Package public maintains the group of handlers for public access to the
// rollup client.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quarrylabs/rollclient/business/web/errs"
	"github.com/quarrylabs/rollclient/foundation/events"
	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/state"
	"github.com/quarrylabs/rollclient/foundation/web"
)

// Handlers manages the set of rollup client endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide the activity stream to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Tip returns the current synchronized block number and accumulator peaks.
func (h Handlers) Tip(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cursor := h.State.ChainTip()

	resp := tip{
		BlockNum: cursor.BlockNum,
		Peaks:    h.State.ChainPeaks(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Header returns the stored header for the specified block.
func (h Handlers) Header(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blockNum, err := strconv.ParseUint(web.Param(r, "block"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block number: %w", err), http.StatusBadRequest)
	}

	header, err := h.State.QueryHeader(blockNum)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, header, http.StatusOK)
}

// Sync runs one synchronization round and returns its summary.
func (h Handlers) Sync(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	summary, err := h.State.Sync(ctx)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, summary, http.StatusOK)
}

// Accounts returns the current version of the tracked accounts, optionally
// narrowed by an id prefix.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accounts, err := h.State.QueryAccounts()
	if err != nil {
		return err
	}

	prefix := web.Param(r, "id")
	if prefix != "" {
		filtered := make([]database.Account, 0, len(accounts))
		for _, account := range accounts {
			if account.MatchesPrefix(prefix) {
				filtered = append(filtered, account)
			}
		}
		accounts = filtered
	}

	return web.Respond(ctx, w, accounts, http.StatusOK)
}

// AccountHistory returns every version row for the specified account.
func (h Handlers) AccountHistory(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := database.ToAccountID(web.Param(r, "id"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	history, err := h.State.QueryAccountHistory(id)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, history, http.StatusOK)
}

// NewAccount creates and tracks a new local account.
func (h Handlers) NewAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app newAccount
	if err := web.Decode(r, &app); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	codeRoot, err := toDigest(app.CodeRoot, "code/std-wallet")
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	storageRoot, err := toDigest(app.StorageRoot, "storage/empty")
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	vaultRoot, err := toDigest(app.VaultRoot, "vault/empty")
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	seed, err := database.GenerateSeed()
	if err != nil {
		return err
	}

	account := database.NewAccount(seed, codeRoot, storageRoot, vaultRoot)
	if err := h.State.AddAccount(account); err != nil {
		return err
	}

	return web.Respond(ctx, w, account, http.StatusCreated)
}

// ImportAccount tracks an account that already lives on chain.
func (h Handlers) ImportAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app importAccount
	if err := web.Decode(r, &app); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	id, err := database.ToAccountID(app.ID)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	codeRoot, err := digest.ToDigest(app.CodeRoot)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	storageRoot, err := digest.ToDigest(app.StorageRoot)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	vaultRoot, err := digest.ToDigest(app.VaultRoot)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	account := database.Account{
		ID:          id,
		Nonce:       app.Nonce,
		CodeRoot:    codeRoot,
		StorageRoot: storageRoot,
		VaultRoot:   vaultRoot,
		Seed:        app.Seed,
	}

	if err := h.State.ImportAccount(account); err != nil {
		return err
	}

	return web.Respond(ctx, w, account, http.StatusCreated)
}

// Notes returns notes matching the request, by id prefix or by state.
func (h Handlers) Notes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	filter := database.NoteFilter{
		IDPrefix: web.Param(r, "id"),
	}

	if stateName := r.URL.Query().Get("state"); stateName != "" {
		noteState, err := database.ParseNoteState(stateName)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		filter.States = []database.NoteState{noteState}
	}

	notes, err := h.State.QueryNotes(filter)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, notes, http.StatusOK)
}

// ImportNote tracks a note produced elsewhere that this client may consume.
func (h Handlers) ImportNote(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app importNote
	if err := web.Decode(r, &app); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	recipient, err := digest.ToDigest(app.Recipient)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	var nullifier digest.Digest
	if app.Nullifier != "" {
		if nullifier, err = digest.ToDigest(app.Nullifier); err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	note := database.Note{
		ID:        database.NoteID(app.ID),
		Recipient: recipient,
		Assets:    app.Assets,
		Metadata: database.NoteMetadata{
			Sender: database.AccountID(app.Sender),
			Kind:   app.Kind,
			Tag:    app.Tag,
			Hint:   app.Hint,
		},
		Nullifier:      nullifier,
		InclusionProof: app.Proof,
	}

	if err := h.State.ImportNote(note); err != nil {
		return err
	}

	return web.Respond(ctx, w, note, http.StatusCreated)
}

// Transactions returns transactions matching the request.
func (h Handlers) Transactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var filter database.TxFilter

	if statusName := r.URL.Query().Get("status"); statusName != "" {
		switch statusName {
		case database.TxPending.String():
			filter.Statuses = []database.TxStatus{database.TxPending}
		case database.TxCommitted.String():
			filter.Statuses = []database.TxStatus{database.TxCommitted}
		case database.TxDiscarded.String():
			filter.Statuses = []database.TxStatus{database.TxDiscarded}
		default:
			return errs.NewTrusted(fmt.Errorf("unknown transaction status %q", statusName), http.StatusBadRequest)
		}
	}

	txs, err := h.State.QueryTransactions(filter)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, txs, http.StatusOK)
}

// RecordTransaction registers a locally executed and proven transaction.
func (h Handlers) RecordTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app recordTransaction
	if err := web.Decode(r, &app); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := h.State.RecordTransaction(app.Transaction, app.Account, app.Produced); err != nil {
		return err
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction recorded",
	}

	return web.Respond(ctx, w, resp, http.StatusCreated)
}

// SubmitTransaction sends proven transaction bytes to the remote node.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app submitTransaction
	if err := web.Decode(r, &app); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := h.State.SubmitTransaction(ctx, database.TxID(app.ID), app.Proven); err != nil {
		return err
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction submitted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// DiscardTransaction abandons a pending transaction.
func (h Handlers) DiscardTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id := database.TxID(web.Param(r, "id"))

	if err := h.State.DiscardTransaction(id); err != nil {
		return err
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction discarded",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Snapshot assembles an execution snapshot for local transaction execution.
func (h Handlers) Snapshot(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var app snapshotRequest
	if err := web.Decode(r, &app); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	accountID, err := database.ToAccountID(app.AccountID)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	noteIDs := make([]database.NoteID, len(app.NoteIDs))
	for i, id := range app.NoteIDs {
		noteIDs[i] = database.NoteID(id)
	}

	snapshot, err := h.State.Snapshot(accountID, noteIDs)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, snapshot, http.StatusOK)
}

// Tags returns the active discovery tag set.
func (h Handlers) Tags(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tags, err := h.State.QueryTags()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, tags, http.StatusOK)
}
