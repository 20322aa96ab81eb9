package state

import (
	"errors"
	"fmt"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
)

// AddAccount begins tracking a locally created account at nonce zero and
// registers its standing discovery tag with the node.
func (s *State) AddAccount(account database.Account) error {
	if account.Nonce != 0 {
		return fmt.Errorf("account %s: new accounts start at nonce 0", shortEntity(string(account.ID)))
	}

	return s.trackAccount(account)
}

// ImportAccount begins tracking an account that already lives on chain.
// The row arrives at whatever nonce the chain knows; the next sync round
// confirms or flags it.
func (s *State) ImportAccount(account database.Account) error {
	account.Committed = account.Nonce > 0

	return s.trackAccount(account)
}

// trackAccount stores the first version row and the discovery tag in one
// batch.
func (s *State) trackAccount(account database.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := account.Validate(); err != nil {
		return err
	}

	if _, err := s.db.Account(account.ID); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("lookup account: %w", err)
	}

	batch := database.NewBatch()
	batch.UpsertAccount(account)
	batch.UpsertTag(database.TagForAccount(account.ID))

	if err := s.db.Apply(batch); err != nil {
		return fmt.Errorf("track account: %w", err)
	}

	s.evHandler("state: track account[%s]: nonce[%d]", shortEntity(string(account.ID)), account.Nonce)

	if s.Worker != nil {
		s.Worker.SignalSync()
	}

	return nil
}
