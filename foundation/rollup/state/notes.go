package state

import (
	"errors"
	"fmt"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
)

// ImportNote begins tracking a note produced elsewhere that this client
// may consume. A note imported without a proof starts Expected and gets a
// discovery tag so the next sync round can find its commitment. A note
// imported with its inclusion proof is already on chain and starts
// Committed.
func (s *State) ImportNote(note database.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Note(note.ID); err == nil {
		return ErrNoteExists
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("lookup note: %w", err)
	}

	note.Origin = database.OriginInput
	note.ConsumerTx = ""

	batch := database.NewBatch()

	switch {
	case note.InclusionProof != nil:
		note.State = database.NoteCommitted
		note.CreatedAt = note.InclusionProof.BlockNum

		// When the committing block's header is still around, the claimed
		// proof has to match it.
		if header, err := s.db.Header(note.InclusionProof.BlockNum); err == nil {
			if !database.VerifyNotePath(note.ID, note.InclusionProof.NoteIndex, note.InclusionProof.NotePath, header.NoteRoot) {
				return fmt.Errorf("note %s proof does not match block %d note root", shortEntity(string(note.ID)), note.InclusionProof.BlockNum)
			}
		}

	default:
		note.State = database.NoteExpected
		batch.UpsertTag(database.TagForNote(note))
	}

	batch.UpsertNote(note)

	if err := s.db.Apply(batch); err != nil {
		return fmt.Errorf("import note: %w", err)
	}

	s.evHandler("state: import note[%s]: state[%s]: tag[%08x]", shortEntity(string(note.ID)), note.State, uint32(note.Metadata.Tag))

	if s.Worker != nil {
		s.Worker.SignalSync()
	}

	return nil
}
