package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
)

// AccountID represents the identity commitment for an account as a hex
// encoded string.
type AccountID string

// ToAccountID converts a hex encoded string to an account id and validates
// the hex encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	d, err := digest.ToDigest(hex)
	if err != nil {
		return "", errors.New("invalid account id format")
	}

	return AccountID(d), nil
}

// =============================================================================

// Account represents one version of a tracked account. Rows are keyed by
// id and nonce; at most one row is current per id and historical rows are
// immutable once superseded.
type Account struct {
	ID          AccountID     `json:"id"`
	Nonce       uint64        `json:"nonce"`
	CodeRoot    digest.Digest `json:"code_root"`
	StorageRoot digest.Digest `json:"storage_root"`
	VaultRoot   digest.Digest `json:"vault_root"`
	Committed   bool          `json:"committed"`
	Seed        []byte        `json:"seed,omitempty"`
}

// NewAccount constructs a locally created account at nonce zero. The id is
// the commitment over the seed and the initial roots.
func NewAccount(seed []byte, codeRoot digest.Digest, storageRoot digest.Digest, vaultRoot digest.Digest) Account {
	id := digest.Hash(struct {
		Seed        []byte        `json:"seed"`
		CodeRoot    digest.Digest `json:"code_root"`
		StorageRoot digest.Digest `json:"storage_root"`
		VaultRoot   digest.Digest `json:"vault_root"`
	}{seed, codeRoot, storageRoot, vaultRoot})

	return Account{
		ID:          AccountID(id),
		Nonce:       0,
		CodeRoot:    codeRoot,
		StorageRoot: storageRoot,
		VaultRoot:   vaultRoot,
		Seed:        seed,
	}
}

// GenerateSeed produces fresh key material for a new account.
func GenerateSeed() ([]byte, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate account seed: %w", err)
	}

	return crypto.FromECDSA(pk), nil
}

// StateDigest returns the commitment over the account's current state.
func (a Account) StateDigest() digest.Digest {
	return digest.Hash(struct {
		ID          AccountID     `json:"id"`
		Nonce       uint64        `json:"nonce"`
		CodeRoot    digest.Digest `json:"code_root"`
		StorageRoot digest.Digest `json:"storage_root"`
		VaultRoot   digest.Digest `json:"vault_root"`
	}{a.ID, a.Nonce, a.CodeRoot, a.StorageRoot, a.VaultRoot})
}

// Validate checks the account row invariants. A seed is required for an
// account that has never transacted and must be absent afterwards.
func (a Account) Validate() error {
	if _, err := ToAccountID(string(a.ID)); err != nil {
		return err
	}

	if a.Nonce == 0 && len(a.Seed) == 0 {
		return errors.New("account at nonce 0 requires a seed")
	}

	if a.Nonce > 0 && len(a.Seed) != 0 {
		return errors.New("account past nonce 0 must not carry a seed")
	}

	return nil
}

// MatchesPrefix supports user facing lookup by partial id.
func (a Account) MatchesPrefix(prefix string) bool {
	return strings.HasPrefix(string(a.ID), prefix)
}
