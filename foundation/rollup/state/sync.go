package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient"
)

// Anomaly reports one chain observation that contradicted the local view
// but did not abort the round. The entity it concerns keeps its prior
// state.
type Anomaly struct {
	Kind   string `json:"kind"`
	Entity string `json:"entity"`
	Reason string `json:"reason"`
}

// SyncSummary reports what one sync round changed.
type SyncSummary struct {
	BlockNum              uint64               `json:"block_num"`
	CommittedNotes        []database.NoteID    `json:"committed_notes,omitempty"`
	ConsumedNotes         []database.NoteID    `json:"consumed_notes,omitempty"`
	CommittedTransactions []database.TxID      `json:"committed_transactions,omitempty"`
	DiscardedTransactions []database.TxID      `json:"discarded_transactions,omitempty"`
	DivergedAccounts      []database.AccountID `json:"diverged_accounts,omitempty"`
	Anomalies             []Anomaly            `json:"anomalies,omitempty"`
}

// =============================================================================

// Sync performs one synchronization round against the remote node: request
// the delta past the local tip, validate it against the local accumulator,
// and apply it as one atomic batch. A failed round leaves the store
// untouched. Rounds are serialized; local activity is only excluded during
// the apply phase.
func (s *State) Sync(ctx context.Context) (SyncSummary, error) {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	s.evHandler("state: sync: started: tip[%d]", cursor.BlockNum)

	tags, err := s.db.Tags()
	if err != nil {
		return SyncSummary{}, fmt.Errorf("read tags: %w", err)
	}

	req := nodeclient.SyncRequest{
		BlockNum: cursor.BlockNum,
		Tags:     tagValues(tags),
	}

	// The RPC happens outside any lock so local activity is never blocked
	// on the network.
	delta, err := s.node.SyncState(ctx, req)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("sync state rpc: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return SyncSummary{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A delta that doesn't move past the local tip carries nothing new.
	// Replaying a delta the store already absorbed lands here, which is
	// what makes rounds idempotent.
	if delta.ChainTip <= s.cursor.BlockNum {
		s.evHandler("state: sync: completed: tip[%d]: delta tip[%d]: nothing to apply", s.cursor.BlockNum, delta.ChainTip)
		return SyncSummary{BlockNum: s.cursor.BlockNum}, nil
	}

	accum, created, err := s.validateDelta(delta)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("%w: %v", ErrDeltaValidation, err)
	}

	rnd := newRound(s, delta, accum, created)
	if err := rnd.apply(); err != nil {
		return SyncSummary{}, fmt.Errorf("build sync round: %w", err)
	}

	if err := s.db.Apply(rnd.flush()); err != nil {
		return SyncSummary{}, fmt.Errorf("apply sync round: %w", err)
	}

	// The batch committed, swap in the new view.
	s.accum = accum
	s.cursor = database.SyncCursor{BlockNum: delta.ChainTip}
	for _, blockNum := range rnd.prunedHeaders {
		s.headerCache.Remove(blockNum)
	}
	for blockNum := range rnd.headers {
		s.headerCache.Remove(blockNum)
	}

	for _, anomaly := range rnd.summary.Anomalies {
		s.evHandler("state: sync: anomaly: %s[%s]: %s", anomaly.Kind, shortEntity(anomaly.Entity), anomaly.Reason)
	}
	for _, id := range rnd.summary.DivergedAccounts {
		s.evHandler("state: sync: account[%s]: local state diverges from chain", shortEntity(string(id)))
	}

	s.evHandler("state: sync: completed: tip[%d]: notes[%d committed, %d consumed]: txs[%d committed, %d discarded]",
		delta.ChainTip,
		len(rnd.summary.CommittedNotes), len(rnd.summary.ConsumedNotes),
		len(rnd.summary.CommittedTransactions), len(rnd.summary.DiscardedTransactions))

	return rnd.summary, nil
}

// =============================================================================

// validateDelta checks the delta consistently extends the local view. All
// work happens on a clone of the accumulator so a rejected delta leaves no
// trace. It returns the extended accumulator and the nodes the appends
// created.
func (s *State) validateDelta(delta nodeclient.SyncDelta) (*mmr.Mmr, []mmr.Node, error) {
	if uint64(len(delta.Headers)) != delta.ChainTip-s.cursor.BlockNum {
		return nil, nil, fmt.Errorf("%d headers do not cover blocks %d through %d", len(delta.Headers), s.cursor.BlockNum+1, delta.ChainTip)
	}

	prev, err := s.db.Header(s.cursor.BlockNum)
	if err != nil {
		return nil, nil, fmt.Errorf("read tip header %d: %v", s.cursor.BlockNum, err)
	}

	accum := s.accum.Clone()
	var created []mmr.Node

	deltaHeaders := make(map[uint64]database.BlockHeader, len(delta.Headers))
	for _, header := range delta.Headers {
		if err := prev.ValidateNext(header); err != nil {
			return nil, nil, err
		}

		created = append(created, accum.Append(header.Hash())...)

		// The peaks each header freezes must be the peaks the accumulator
		// reaches by appending that header.
		if !header.Peaks.Equal(accum.Peaks()) {
			return nil, nil, fmt.Errorf("block %d peaks do not extend the local accumulator", header.BlockNum)
		}

		deltaHeaders[header.BlockNum] = header
		prev = header
	}

	accum.AddNodes(delta.Nodes)

	tipForest := accum.Forest()
	tipPeaks := accum.Peaks()

	for _, update := range delta.Notes {
		proof := update.Proof

		header, exists := deltaHeaders[proof.BlockNum]
		if !exists {
			stored, err := s.db.Header(proof.BlockNum)
			if err != nil {
				return nil, nil, fmt.Errorf("note %s proof references unknown block %d", shortEntity(string(update.NoteID)), proof.BlockNum)
			}
			header = stored
		}

		if !database.VerifyNotePath(update.NoteID, proof.NoteIndex, proof.NotePath, header.NoteRoot) {
			return nil, nil, fmt.Errorf("note %s path does not match block %d note root", shortEntity(string(update.NoteID)), proof.BlockNum)
		}

		if proof.Path.Forest != tipForest {
			return nil, nil, fmt.Errorf("note %s proof is against forest %d, exp %d", shortEntity(string(update.NoteID)), proof.Path.Forest, tipForest)
		}

		if !mmr.VerifyInclusion(header.Hash(), proof.BlockNum, proof.Path, tipPeaks) {
			return nil, nil, fmt.Errorf("note %s block %d failed inclusion against the new tip", shortEntity(string(update.NoteID)), proof.BlockNum)
		}
	}

	return accum, created, nil
}

// =============================================================================

// round accumulates the effects of applying one validated delta. Entities
// touched more than once in the round are mutated in place and written
// exactly once at flush.
type round struct {
	s       *State
	delta   nodeclient.SyncDelta
	accum   *mmr.Mmr
	created []mmr.Node
	summary SyncSummary

	headers  map[uint64]*database.BlockHeader
	notes    map[database.NoteID]*database.Note
	txs      map[database.TxID]*database.Transaction
	accounts []database.Account

	keep          map[uint64]bool
	deletedTags   []database.Tag
	prunedHeaders []uint64
	prunedNodes   []uint64

	committedSeen map[database.NoteID]bool
	consumedSeen  map[database.NoteID]bool
}

// newRound constructs the working set for one validated delta.
func newRound(s *State, delta nodeclient.SyncDelta, accum *mmr.Mmr, created []mmr.Node) *round {
	headers := make(map[uint64]*database.BlockHeader, len(delta.Headers))
	for _, header := range delta.Headers {
		h := header
		headers[h.BlockNum] = &h
	}

	return &round{
		s:       s,
		delta:   delta,
		accum:   accum,
		created: created,
		summary: SyncSummary{BlockNum: delta.ChainTip},

		headers: headers,
		notes:   make(map[database.NoteID]*database.Note),
		txs:     make(map[database.TxID]*database.Transaction),

		committedSeen: make(map[database.NoteID]bool),
		consumedSeen:  make(map[database.NoteID]bool),
	}
}

// apply works the delta through the lifecycle machinery in a fixed order:
// note inclusions, nullifications, transaction settlement and expiry,
// account divergence, tag pruning, chain pruning.
func (r *round) apply() error {
	if err := r.applyNoteInclusions(); err != nil {
		return err
	}

	if err := r.applyNullifiers(); err != nil {
		return err
	}

	if err := r.applyTransactions(); err != nil {
		return err
	}

	if err := r.applyExpiry(); err != nil {
		return err
	}

	if err := r.applyAccounts(); err != nil {
		return err
	}

	if err := r.pruneTags(); err != nil {
		return err
	}

	return r.pruneChain()
}

// applyNoteInclusions records proofs for notes the chain committed. Known
// notes advance from Expected, unknown notes discovered by tag are adopted
// directly as Committed.
func (r *round) applyNoteInclusions() error {
	for _, update := range r.delta.Notes {
		proof := update.Proof

		note, err := r.note(update.NoteID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			if update.Note == nil {
				r.anomaly("note", string(update.NoteID), "inclusion for unknown note without a record")
				continue
			}

			discovered := *update.Note
			discovered.State = database.NoteCommitted
			if discovered.Origin == "" {
				discovered.Origin = database.OriginInput
			}
			p := proof
			discovered.InclusionProof = &p
			discovered.CreatedAt = proof.BlockNum

			r.notes[discovered.ID] = &discovered
			r.recordCommitted(discovered.ID)
			if err := r.markRelevant(proof.BlockNum); err != nil {
				return err
			}
			continue

		case err != nil:
			return err
		}

		switch note.State {
		case database.NoteExpected:
			if err := note.Transition(database.NoteCommitted); err != nil {
				r.anomaly("note", string(note.ID), err.Error())
				continue
			}
			p := proof
			note.InclusionProof = &p
			if note.CreatedAt == 0 {
				note.CreatedAt = proof.BlockNum
			}
			r.recordCommitted(note.ID)

		case database.NoteCommitted, database.NoteProcessing:
			// The proof can arrive for a note already known committed or
			// one mid consumption. Keep the state, retain the proof.
			if note.InclusionProof == nil {
				p := proof
				note.InclusionProof = &p
			}

		default:
			r.anomaly("note", string(note.ID), fmt.Sprintf("inclusion for %s note", note.State))
			continue
		}

		if err := r.markRelevant(proof.BlockNum); err != nil {
			return err
		}
	}

	return nil
}

// applyNullifiers settles notes whose nullifiers the chain published. A
// published nullifier wins over any local consumption attempt: a note in
// Processing moves straight to Consumed and a later expiry of its local
// consumer cannot pull it back.
func (r *round) applyNullifiers() error {
	for _, update := range r.delta.Nullifiers {
		note, err := r.noteByNullifier(update.Nullifier)
		switch {
		case errors.Is(err, database.ErrNotFound):
			// The node filters by tag, a superset of what this client
			// tracks. Nothing to settle.
			continue

		case err != nil:
			return err
		}

		if err := note.Transition(database.NoteConsumed); err != nil {
			r.anomaly("nullifier", string(note.ID), err.Error())
			continue
		}

		r.recordConsumed(note.ID)
		if err := r.markRelevant(update.BlockNum); err != nil {
			return err
		}
	}

	return nil
}

// applyTransactions settles locally submitted transactions the chain
// accepted and marks their consumed inputs.
func (r *round) applyTransactions() error {
	for _, update := range r.delta.Transactions {
		tx, err := r.tx(update.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			r.anomaly("transaction", string(update.ID), "commit for unknown transaction")
			continue

		case err != nil:
			return err
		}

		if err := tx.Commit(update.BlockNum); err != nil {
			r.anomaly("transaction", string(tx.ID), err.Error())
			continue
		}

		r.summary.CommittedTransactions = append(r.summary.CommittedTransactions, tx.ID)

		for _, id := range tx.InputNotes {
			note, err := r.note(id)
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			if note.State == database.NoteProcessing && note.ConsumerTx == tx.ID {
				if err := note.Transition(database.NoteConsumed); err != nil {
					r.anomaly("transaction", string(tx.ID), err.Error())
					continue
				}
				r.recordConsumed(note.ID)
			}
		}
	}

	return nil
}

// applyExpiry discards pending transactions the chain has moved past. The
// inputs each discarded transaction was consuming revert to their prior
// state, its outputs are discarded with it.
func (r *round) applyExpiry() error {
	pending, err := r.s.db.Transactions(database.TxFilter{Statuses: []database.TxStatus{database.TxPending}})
	if err != nil {
		return fmt.Errorf("read pending transactions: %w", err)
	}

	for _, tx := range pending {
		if _, touched := r.txs[tx.ID]; touched {
			continue
		}

		if r.delta.ChainTip <= tx.BlockNum+r.s.expiryDelta {
			continue
		}

		t := tx
		if err := t.Discard(); err != nil {
			r.anomaly("transaction", string(t.ID), err.Error())
			continue
		}

		r.txs[t.ID] = &t
		r.summary.DiscardedTransactions = append(r.summary.DiscardedTransactions, t.ID)

		if err := r.revertTransaction(&t); err != nil {
			return err
		}
	}

	return nil
}

// applyAccounts compares the chain's reported account states against the
// local rows. A match confirms the local state as committed; a mismatch is
// flagged for the caller to resolve, never repaired silently.
func (r *round) applyAccounts() error {
	for _, update := range r.delta.Accounts {
		local, err := r.s.db.Account(update.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
			continue

		case err != nil:
			return err
		}

		if local.Nonce == update.Nonce && local.StateDigest() == update.StateDigest {
			if !local.Committed {
				local.Committed = true
				r.accounts = append(r.accounts, local)
			}
			continue
		}

		r.summary.DivergedAccounts = append(r.summary.DivergedAccounts, update.ID)
	}

	return nil
}

// pruneTags drops note sourced tags whose note no longer needs discovery.
// Account sourced tags are standing subscriptions and are never pruned.
func (r *round) pruneTags() error {
	tags, err := r.s.db.Tags()
	if err != nil {
		return fmt.Errorf("read tags: %w", err)
	}

	for _, tag := range tags {
		if tag.Source != database.TagSourceNote {
			continue
		}

		note, err := r.lookupNote(tag.NoteID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		if note.State != database.NoteExpected {
			r.deletedTags = append(r.deletedTags, tag)
		}
	}

	return nil
}

// pruneChain drops headers and accumulator nodes the client no longer
// needs: everything except genesis, the new tip, and blocks carrying
// client note apparatus.
func (r *round) pruneChain() error {
	r.keep = map[uint64]bool{0: true, r.delta.ChainTip: true}

	stored, err := r.s.db.Headers(0, r.delta.ChainTip)
	if err != nil {
		return fmt.Errorf("read stored headers: %w", err)
	}

	for _, header := range stored {
		if header.HasClientNotes {
			r.keep[header.BlockNum] = true
		}
	}
	for blockNum, header := range r.headers {
		if header.HasClientNotes {
			r.keep[blockNum] = true
		}
	}

	for _, header := range stored {
		if !r.keep[header.BlockNum] {
			r.prunedHeaders = append(r.prunedHeaders, header.BlockNum)
		}
	}

	keepLeaves := make([]uint64, 0, len(r.keep))
	for blockNum := range r.keep {
		keepLeaves = append(keepLeaves, blockNum)
	}
	r.prunedNodes = r.accum.Prune(keepLeaves)

	return nil
}

// flush assembles the batch for the round. Deletes follow upserts so a
// node created and pruned within the same round ends up deleted.
func (r *round) flush() *database.MutationBatch {
	batch := database.NewBatch()

	for blockNum, header := range r.headers {
		if !r.keep[blockNum] {
			continue
		}
		batch.UpsertHeader(*header)
	}

	for _, node := range r.created {
		batch.UpsertChainNode(node)
	}
	for _, node := range r.delta.Nodes {
		batch.UpsertChainNode(node)
	}

	for _, note := range r.notes {
		batch.UpsertNote(*note)
	}
	for _, tx := range r.txs {
		batch.UpsertTransaction(*tx)
	}
	for _, account := range r.accounts {
		batch.UpsertAccount(account)
	}

	for _, tag := range r.deletedTags {
		batch.DeleteTag(tag)
	}
	for _, blockNum := range r.prunedHeaders {
		batch.DeleteHeader(blockNum)
	}
	for _, position := range r.prunedNodes {
		batch.DeleteChainNode(position)
	}

	batch.SetSyncCursor(database.SyncCursor{BlockNum: r.delta.ChainTip})

	return batch
}

// =============================================================================
// Round working set access.

// note returns the note for mutation, loading it into the working set on
// first access.
func (r *round) note(id database.NoteID) (*database.Note, error) {
	if note, exists := r.notes[id]; exists {
		return note, nil
	}

	note, err := r.s.db.Note(id)
	if err != nil {
		return nil, err
	}

	r.notes[id] = &note
	return &note, nil
}

// lookupNote reads a note without pulling it into the working set.
func (r *round) lookupNote(id database.NoteID) (database.Note, error) {
	if note, exists := r.notes[id]; exists {
		return *note, nil
	}

	return r.s.db.Note(id)
}

// noteByNullifier locates the note for a published nullifier, preferring
// notes already in the working set so a note committed and spent within
// the same round is found.
func (r *round) noteByNullifier(nullifier digest.Digest) (*database.Note, error) {
	for _, note := range r.notes {
		if !nullifier.IsZero() && note.Nullifier == nullifier {
			return note, nil
		}
	}

	note, err := r.s.db.NoteByNullifier(nullifier)
	if err != nil {
		return nil, err
	}

	r.notes[note.ID] = &note
	return &note, nil
}

// tx returns the transaction for mutation, loading it into the working set
// on first access.
func (r *round) tx(id database.TxID) (*database.Transaction, error) {
	if tx, exists := r.txs[id]; exists {
		return tx, nil
	}

	tx, err := r.s.db.Transaction(id)
	if err != nil {
		return nil, err
	}

	r.txs[id] = &tx
	return &tx, nil
}

// markRelevant flags the block as carrying client note apparatus so its
// header and authentication path survive pruning.
func (r *round) markRelevant(blockNum uint64) error {
	if header, exists := r.headers[blockNum]; exists {
		header.HasClientNotes = true
		return nil
	}

	header, err := r.s.db.Header(blockNum)
	if err != nil {
		return fmt.Errorf("read header %d: %w", blockNum, err)
	}

	header.HasClientNotes = true
	r.headers[blockNum] = &header
	return nil
}

// revertTransaction returns the inputs of a discarded transaction to their
// prior state and discards its outputs.
func (r *round) revertTransaction(tx *database.Transaction) error {
	for _, id := range tx.InputNotes {
		note, err := r.note(id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		if note.State != database.NoteProcessing || note.ConsumerTx != tx.ID {
			continue
		}

		if err := revertNoteConsumption(note); err != nil {
			r.anomaly("transaction", string(tx.ID), err.Error())
		}
	}

	for _, id := range tx.OutputNotes {
		note, err := r.note(id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		if note.State == database.NoteConsumed || note.State == database.NoteDiscarded {
			continue
		}

		if err := note.Transition(database.NoteDiscarded); err != nil {
			r.anomaly("transaction", string(tx.ID), err.Error())
		}
	}

	return nil
}

// anomaly records one skip-and-report observation.
func (r *round) anomaly(kind string, entity string, reason string) {
	r.summary.Anomalies = append(r.summary.Anomalies, Anomaly{Kind: kind, Entity: entity, Reason: reason})
}

// recordCommitted appends the note to the summary once.
func (r *round) recordCommitted(id database.NoteID) {
	if r.committedSeen[id] {
		return
	}
	r.committedSeen[id] = true
	r.summary.CommittedNotes = append(r.summary.CommittedNotes, id)
}

// recordConsumed appends the note to the summary once.
func (r *round) recordConsumed(id database.NoteID) {
	if r.consumedSeen[id] {
		return
	}
	r.consumedSeen[id] = true
	r.summary.ConsumedNotes = append(r.summary.ConsumedNotes, id)
}

// =============================================================================

// revertNoteConsumption returns a note to its pre-consumption state after
// its consuming transaction is discarded. A note whose commitment was
// observed returns to Committed, one never seen on chain returns to
// Expected.
func revertNoteConsumption(note *database.Note) error {
	note.ConsumerTx = ""

	if note.InclusionProof != nil {
		return note.Transition(database.NoteCommitted)
	}

	return note.Transition(database.NoteExpected)
}

// tagValues extracts the deduplicated value set from the tag registrations.
func tagValues(tags []database.Tag) []database.TagValue {
	seen := make(map[database.TagValue]bool, len(tags))
	values := make([]database.TagValue, 0, len(tags))

	for _, tag := range tags {
		if seen[tag.Value] {
			continue
		}
		seen[tag.Value] = true
		values = append(values, tag.Value)
	}

	return values
}

// shortEntity trims an entity id for log output.
func shortEntity(id string) string {
	if len(id) <= 10 {
		return id
	}

	return id[:10]
}
