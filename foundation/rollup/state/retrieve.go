package state

import (
	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/genesis"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// Genesis returns the genesis record the client was started with.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// ChainTip returns the current synchronized block number.
func (s *State) ChainTip() database.SyncCursor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cursor
}

// ChainPeaks returns the current accumulator peaks.
func (s *State) ChainPeaks() mmr.Peaks {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accum.Peaks()
}

// QueryAccount returns the current version of the specified account.
func (s *State) QueryAccount(id database.AccountID) (database.Account, error) {
	return s.db.Account(id)
}

// QueryAccountHistory returns every version row for the specified account
// in nonce order.
func (s *State) QueryAccountHistory(id database.AccountID) ([]database.Account, error) {
	return s.db.AccountHistory(id)
}

// QueryAccounts returns the current version of every tracked account.
func (s *State) QueryAccounts() ([]database.Account, error) {
	return s.db.Accounts()
}

// QueryNote returns the note with the specified id.
func (s *State) QueryNote(id database.NoteID) (database.Note, error) {
	return s.db.Note(id)
}

// QueryNotes returns every note matching the filter.
func (s *State) QueryNotes(filter database.NoteFilter) ([]database.Note, error) {
	return s.db.Notes(filter)
}

// QueryTransaction returns the transaction with the specified id.
func (s *State) QueryTransaction(id database.TxID) (database.Transaction, error) {
	return s.db.Transaction(id)
}

// QueryTransactions returns every transaction matching the filter.
func (s *State) QueryTransactions(filter database.TxFilter) ([]database.Transaction, error) {
	return s.db.Transactions(filter)
}

// QueryTags returns the active discovery tag set.
func (s *State) QueryTags() ([]database.Tag, error) {
	return s.db.Tags()
}

// QueryHeader returns the stored header for the specified block. Recently
// served headers come from a small cache; headers with no relevance to
// tracked notes may have been pruned.
func (s *State) QueryHeader(blockNum uint64) (database.BlockHeader, error) {
	if header, exists := s.headerCache.Get(blockNum); exists {
		return header, nil
	}

	header, err := s.db.Header(blockNum)
	if err != nil {
		return database.BlockHeader{}, err
	}

	s.headerCache.Add(blockNum, header)
	return header, nil
}
