package public

import (
	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// tip is the response model for the chain tip endpoint.
type tip struct {
	BlockNum uint64    `json:"block_num"`
	Peaks    mmr.Peaks `json:"peaks"`
}

// newAccount is the request model for creating a local account. Roots are
// optional, missing roots default to the standard wallet layout.
type newAccount struct {
	CodeRoot    string `json:"code_root,omitempty"`
	StorageRoot string `json:"storage_root,omitempty"`
	VaultRoot   string `json:"vault_root,omitempty"`
}

// importAccount is the request model for tracking an on-chain account.
type importAccount struct {
	ID          string `json:"id" validate:"required"`
	Nonce       uint64 `json:"nonce"`
	CodeRoot    string `json:"code_root" validate:"required"`
	StorageRoot string `json:"storage_root" validate:"required"`
	VaultRoot   string `json:"vault_root" validate:"required"`
	Seed        []byte `json:"seed,omitempty"`
}

// importNote is the request model for tracking a note produced elsewhere.
type importNote struct {
	ID        string                   `json:"id" validate:"required"`
	Recipient string                   `json:"recipient" validate:"required"`
	Assets    []database.NoteAsset     `json:"assets"`
	Sender    string                   `json:"sender"`
	Kind      string                   `json:"kind" validate:"required"`
	Tag       database.TagValue        `json:"tag"`
	Hint      string                   `json:"hint,omitempty"`
	Nullifier string                   `json:"nullifier,omitempty"`
	Proof     *database.InclusionProof `json:"proof,omitempty"`
}

// recordTransaction is the request model for registering a locally
// executed and proven transaction.
type recordTransaction struct {
	Transaction database.Transaction `json:"transaction" validate:"required"`
	Account     database.Account     `json:"account" validate:"required"`
	Produced    []database.Note      `json:"produced,omitempty"`
}

// submitTransaction is the request model for sending proven transaction
// bytes to the node.
type submitTransaction struct {
	ID     string `json:"id" validate:"required"`
	Proven []byte `json:"proven" validate:"required"`
}

// snapshotRequest is the request model for assembling an execution
// snapshot.
type snapshotRequest struct {
	AccountID string   `json:"account_id" validate:"required"`
	NoteIDs   []string `json:"note_ids"`
}

// toDigest converts an optional hex field, falling back to a derived
// default.
func toDigest(hex string, fallback string) (digest.Digest, error) {
	if hex == "" {
		return digest.HashBytes([]byte(fallback)), nil
	}

	return digest.ToDigest(hex)
}
