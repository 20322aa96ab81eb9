// Package nodeclient defines the capability contract against the remote
// chain node and the wire types for the sync protocol. The coordinator
// depends only on the Client interface; concrete transports live in the
// subpackages.
package nodeclient

import (
	"context"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// Client interface represents the behavior required to be implemented by
// any package providing access to a remote chain node.
type Client interface {
	BlockHeaderByNumber(ctx context.Context, blockNum uint64) (database.BlockHeader, mmr.Peaks, error)
	SyncState(ctx context.Context, req SyncRequest) (SyncDelta, error)
	SubmitProvenTransaction(ctx context.Context, tx []byte) error
	Close() error
}

// =============================================================================

// SyncRequest asks the node for everything relevant that happened after
// the client's current tip.
type SyncRequest struct {
	BlockNum uint64              `json:"block_num"`
	Tags     []database.TagValue `json:"tags"`
}

// SyncDelta is the set of chain changes reported by the remote node since
// the client's last known tip. Headers are contiguous and ascending,
// covering every block after the requested tip through ChainTip.
type SyncDelta struct {
	ChainTip     uint64                 `json:"chain_tip"`
	Headers      []database.BlockHeader `json:"headers"`
	Nodes        []mmr.Node             `json:"nodes"`
	Notes        []NoteUpdate           `json:"notes"`
	Nullifiers   []NullifierUpdate      `json:"nullifiers"`
	Transactions []TransactionUpdate    `json:"transactions"`
	Accounts     []AccountUpdate        `json:"accounts"`
}

// NoteUpdate reports a note inclusion. Note carries the public note record
// for notes this client discovered by tag and doesn't know yet.
type NoteUpdate struct {
	NoteID database.NoteID         `json:"note_id"`
	Note   *database.Note          `json:"note,omitempty"`
	Proof  database.InclusionProof `json:"proof"`
}

// NullifierUpdate reports a published nullifier.
type NullifierUpdate struct {
	Nullifier digest.Digest `json:"nullifier"`
	BlockNum  uint64        `json:"block_num"`
}

// TransactionUpdate reports a transaction id observed in a block's
// accepted set.
type TransactionUpdate struct {
	ID        database.TxID      `json:"id"`
	AccountID database.AccountID `json:"account_id"`
	BlockNum  uint64             `json:"block_num"`
}

// AccountUpdate reports the on-chain state commitment for an account the
// client asked about.
type AccountUpdate struct {
	ID          database.AccountID `json:"id"`
	Nonce       uint64             `json:"nonce"`
	StateDigest digest.Digest      `json:"state_digest"`
}
