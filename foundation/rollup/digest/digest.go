// Package digest provides the hash digest type shared by every rollup
// entity. Digests are hex encoded strings so they serialize cleanly and
// can be used directly as storage keys.
package digest

import (
	"crypto/sha256"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Zero represents a digest of zeros.
const Zero Digest = "0x0000000000000000000000000000000000000000000000000000000000000000"

// digestLength is the number of bytes in a raw digest.
const digestLength = 32

// Digest represents a 32 byte hash as a hex encoded string.
type Digest string

// Hash returns the digest for the specified value. The value is marshaled
// to JSON first so any entity with stable field ordering can be hashed.
func Hash(value any) Digest {
	data, err := json.Marshal(value)
	if err != nil {
		return Zero
	}

	hash := sha256.Sum256(data)
	return Digest(hexutil.Encode(hash[:]))
}

// HashBytes returns the digest over the raw bytes.
func HashBytes(data []byte) Digest {
	hash := sha256.Sum256(data)
	return Digest(hexutil.Encode(hash[:]))
}

// Join hashes the concatenation of the two digests. This is the node
// combining function for the chain accumulator: Join(left, right) is the
// parent of the two children.
func Join(left Digest, right Digest) Digest {
	lft, err := left.Bytes()
	if err != nil {
		return Zero
	}

	rgt, err := right.Bytes()
	if err != nil {
		return Zero
	}

	hash := sha256.Sum256(append(lft, rgt...))
	return Digest(hexutil.Encode(hash[:]))
}

// ToDigest converts a hex encoded string to a digest and validates the
// hex encoded string is formatted correctly.
func ToDigest(hex string) (Digest, error) {
	d := Digest(hex)
	if !d.IsValid() {
		return "", errors.New("invalid digest format")
	}

	return d, nil
}

// IsValid verifies whether the underlying data represents a properly hex
// encoded 32 byte value.
func (d Digest) IsValid() bool {
	data, err := hexutil.Decode(string(d))
	if err != nil {
		return false
	}

	return len(data) == digestLength
}

// IsZero reports whether the digest is empty or the zero digest.
func (d Digest) IsZero() bool {
	return d == "" || d == Zero
}

// Bytes returns the raw bytes for the digest.
func (d Digest) Bytes() ([]byte, error) {
	return hexutil.Decode(string(d))
}

// String implements the fmt.Stringer interface.
func (d Digest) String() string {
	return string(d)
}
