package state

import (
	"fmt"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// ExecutionSnapshot is the consistent read local transaction execution
// works against: the account's current version, the notes it intends to
// consume with their proofs, and the reference block the proofs anchor to.
type ExecutionSnapshot struct {
	Account         database.Account     `json:"account"`
	ConsumableNotes []database.Note      `json:"consumable_notes"`
	ReferenceBlock  database.BlockHeader `json:"reference_block"`
	Peaks           mmr.Peaks            `json:"peaks"`
}

// Snapshot assembles an execution snapshot under the same exclusion the
// sync apply phase uses, so execution never observes a half applied round.
// Every requested note must be Committed and carry its inclusion proof.
func (s *State) Snapshot(accountID database.AccountID, noteIDs []database.NoteID) (ExecutionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.db.Account(accountID)
	if err != nil {
		return ExecutionSnapshot{}, fmt.Errorf("lookup account: %w", err)
	}

	header, err := s.db.Header(s.cursor.BlockNum)
	if err != nil {
		return ExecutionSnapshot{}, fmt.Errorf("read tip header: %w", err)
	}

	notes := make([]database.Note, 0, len(noteIDs))
	for _, id := range noteIDs {
		note, err := s.db.Note(id)
		if err != nil {
			return ExecutionSnapshot{}, fmt.Errorf("lookup note %s: %w", shortEntity(string(id)), err)
		}

		if note.State != database.NoteCommitted || note.InclusionProof == nil {
			return ExecutionSnapshot{}, fmt.Errorf("%w: note %s is %s", ErrNoteNotConsumable, shortEntity(string(id)), note.State)
		}

		// The stored path is anchored at the forest of the round that
		// committed the note. Re-anchor it at the current forest so it
		// verifies against the reference peaks handed out below.
		path, err := s.accum.Proof(note.InclusionProof.BlockNum, s.accum.Forest())
		if err != nil {
			return ExecutionSnapshot{}, fmt.Errorf("prove note %s against block %d: %w", shortEntity(string(id)), note.InclusionProof.BlockNum, err)
		}

		proof := *note.InclusionProof
		proof.Path = path
		note.InclusionProof = &proof

		notes = append(notes, note)
	}

	return ExecutionSnapshot{
		Account:         account,
		ConsumableNotes: notes,
		ReferenceBlock:  header,
		Peaks:           header.Peaks,
	}, nil
}
