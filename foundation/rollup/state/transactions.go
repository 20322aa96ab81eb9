package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
)

// RecordTransaction registers a locally executed and proven transaction in
// one atomic batch: the pending transaction row, the new uncommitted
// account version, the produced notes as Expected outputs with their
// discovery tags, and the Processing marks on the consumed inputs.
func (s *State) RecordTransaction(tx database.Transaction, account database.Account, produced []database.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Status != database.TxPending {
		return fmt.Errorf("transaction %s: must be recorded pending, got %s", shortEntity(string(tx.ID)), tx.Status)
	}

	if _, err := s.db.Transaction(tx.ID); err == nil {
		return fmt.Errorf("transaction %s already recorded", shortEntity(string(tx.ID)))
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("lookup transaction: %w", err)
	}

	if tx.AccountID != account.ID {
		return fmt.Errorf("transaction %s: account mismatch", shortEntity(string(tx.ID)))
	}

	batch := database.NewBatch()

	// Every input has to be sitting Committed right now. Processing means
	// another local transaction already claims it.
	for _, id := range tx.InputNotes {
		note, err := s.db.Note(id)
		if err != nil {
			return fmt.Errorf("input note %s: %w", shortEntity(string(id)), err)
		}

		if note.State != database.NoteCommitted {
			return fmt.Errorf("%w: note %s is %s", ErrNoteNotConsumable, shortEntity(string(id)), note.State)
		}

		if err := note.Transition(database.NoteProcessing); err != nil {
			return err
		}
		note.ConsumerTx = tx.ID
		batch.UpsertNote(note)
	}

	for _, note := range produced {
		note.State = database.NoteExpected
		note.Origin = database.OriginOutput
		note.InclusionProof = nil
		note.ConsumerTx = ""

		batch.UpsertNote(note)
		batch.UpsertTag(database.TagForNote(note))
	}

	// The new account version stays uncommitted until a sync round sees
	// the chain agree with it.
	account.Committed = false
	if account.Nonce > 0 {
		account.Seed = nil
	}
	if err := account.Validate(); err != nil {
		return fmt.Errorf("account version: %w", err)
	}
	batch.UpsertAccount(account)

	if tx.BlockNum == 0 {
		tx.BlockNum = s.cursor.BlockNum
	}
	batch.UpsertTransaction(tx)

	if err := s.db.Apply(batch); err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}

	s.evHandler("state: record tx[%s]: account[%s]: inputs[%d]: outputs[%d]: reference[%d]",
		shortEntity(string(tx.ID)), shortEntity(string(tx.AccountID)), len(tx.InputNotes), len(produced), tx.BlockNum)

	return nil
}

// SubmitTransaction sends the proven transaction bytes to the remote node
// and signals a sync round so the commit is picked up quickly. The
// transaction must already be recorded and still pending.
func (s *State) SubmitTransaction(ctx context.Context, id database.TxID, proven []byte) error {
	tx, err := s.db.Transaction(id)
	if err != nil {
		return fmt.Errorf("lookup transaction: %w", err)
	}

	if tx.Status != database.TxPending {
		return fmt.Errorf("transaction %s: submit of %s transaction not permitted", shortEntity(string(id)), tx.Status)
	}

	if err := s.node.SubmitProvenTransaction(ctx, proven); err != nil {
		return fmt.Errorf("submit transaction: %w", err)
	}

	s.evHandler("state: submit tx[%s]: bytes[%d]", shortEntity(string(id)), len(proven))

	if s.Worker != nil {
		s.Worker.SignalSync()
	}

	return nil
}

// DiscardTransaction abandons a pending transaction before the chain
// settles it. Its inputs revert to their prior state, its outputs are
// discarded, all in one atomic batch.
func (s *State) DiscardTransaction(id database.TxID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Transaction(id)
	if err != nil {
		return fmt.Errorf("lookup transaction: %w", err)
	}

	if err := tx.Discard(); err != nil {
		return err
	}

	batch := database.NewBatch()

	for _, noteID := range tx.InputNotes {
		note, err := s.db.Note(noteID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("input note %s: %w", shortEntity(string(noteID)), err)
		}

		if note.State != database.NoteProcessing || note.ConsumerTx != tx.ID {
			continue
		}

		if err := revertNoteConsumption(&note); err != nil {
			return err
		}
		batch.UpsertNote(note)
	}

	for _, noteID := range tx.OutputNotes {
		note, err := s.db.Note(noteID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("output note %s: %w", shortEntity(string(noteID)), err)
		}

		if note.State == database.NoteConsumed || note.State == database.NoteDiscarded {
			continue
		}

		if err := note.Transition(database.NoteDiscarded); err != nil {
			return err
		}
		batch.UpsertNote(note)
	}

	batch.UpsertTransaction(tx)

	if err := s.db.Apply(batch); err != nil {
		return fmt.Errorf("discard transaction: %w", err)
	}

	s.evHandler("state: discard tx[%s]", shortEntity(string(id)))

	return nil
}
