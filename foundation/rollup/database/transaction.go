package database

import (
	"fmt"
	"strings"

	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
)

// TxID represents the identity commitment for a transaction as a hex
// encoded string.
type TxID string

// =============================================================================

// TxStatus represents where a locally executed transaction sits in its
// lifecycle.
type TxStatus int

// The transaction lifecycle. Committed and Discarded are terminal.
const (
	TxPending TxStatus = iota
	TxCommitted
	TxDiscarded
)

// txStatusNames maps statuses to their display names.
var txStatusNames = map[TxStatus]string{
	TxPending:   "pending",
	TxCommitted: "committed",
	TxDiscarded: "discarded",
}

// String implements the fmt.Stringer interface.
func (s TxStatus) String() string {
	name, exists := txStatusNames[s]
	if !exists {
		return "unknown"
	}

	return name
}

// =============================================================================

// Transaction represents a locally executed and proven transaction from
// submission to settlement or discard. Input and output notes are carried
// by id, the note records live in their own table.
type Transaction struct {
	ID                TxID          `json:"id"`
	AccountID         AccountID     `json:"account_id"`
	InitAccountState  digest.Digest `json:"init_account_state"`
	FinalAccountState digest.Digest `json:"final_account_state"`
	InputNotes        []NoteID      `json:"input_notes"`
	OutputNotes       []NoteID      `json:"output_notes"`
	ScriptRoot        digest.Digest `json:"script_root,omitempty"`
	BlockNum          uint64        `json:"block_num"`
	CommitHeight      uint64        `json:"commit_height,omitempty"`
	Status            TxStatus      `json:"status"`
}

// Commit marks the transaction settled at the specified block. The commit
// height is only ever set on a pending transaction observed in a sync
// delta.
func (tx *Transaction) Commit(blockNum uint64) error {
	if tx.Status != TxPending {
		return fmt.Errorf("transaction %s: commit of %s transaction not permitted", shortID(string(tx.ID)), tx.Status)
	}

	tx.Status = TxCommitted
	tx.CommitHeight = blockNum
	return nil
}

// Discard marks the transaction abandoned. Discard is terminal: only a
// pending transaction can be discarded, a settled or already discarded one
// never transitions again.
func (tx *Transaction) Discard() error {
	if tx.Status != TxPending {
		return fmt.Errorf("transaction %s: discard of %s transaction not permitted", shortID(string(tx.ID)), tx.Status)
	}

	tx.Status = TxDiscarded
	return nil
}

// =============================================================================

// TxFilter selects transactions by status, id set, partial id prefix, or
// by the reference block range. Zero values leave a dimension
// unconstrained.
type TxFilter struct {
	Statuses  []TxStatus
	IDs       []TxID
	IDPrefix  string
	FromBlock uint64
	ToBlock   uint64
}

// match reports whether the transaction passes every constrained dimension.
func (f TxFilter) match(tx Transaction) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, status := range f.Statuses {
			if tx.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if tx.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.IDPrefix != "" && !strings.HasPrefix(string(tx.ID), f.IDPrefix) {
		return false
	}

	if tx.BlockNum < f.FromBlock {
		return false
	}

	if f.ToBlock > 0 && tx.BlockNum > f.ToBlock {
		return false
	}

	return true
}
