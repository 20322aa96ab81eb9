package database

import (
	"fmt"

	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// BlockHeader represents one sealed block header together with the client
// side bookkeeping needed to authenticate against it later: the
// accumulator peaks frozen as of this block and whether any locally
// relevant note apparatus appears in the block.
type BlockHeader struct {
	BlockNum       uint64        `json:"block_num"`
	PrevHash       digest.Digest `json:"prev_hash"`
	AccountRoot    digest.Digest `json:"account_root"`
	NoteRoot       digest.Digest `json:"note_root"`
	NullifierRoot  digest.Digest `json:"nullifier_root"`
	Timestamp      uint64        `json:"timestamp"`
	Peaks          mmr.Peaks     `json:"peaks"`
	HasClientNotes bool          `json:"has_client_notes"`
}

// Hash returns the commitment for the sealed header. The peaks and the
// relevance flag are client bookkeeping and are not part of the sealed
// header.
func (h BlockHeader) Hash() digest.Digest {
	if h.BlockNum == 0 && h.PrevHash.IsZero() && h.NoteRoot.IsZero() {
		return digest.Zero
	}

	return digest.Hash(struct {
		BlockNum      uint64        `json:"block_num"`
		PrevHash      digest.Digest `json:"prev_hash"`
		AccountRoot   digest.Digest `json:"account_root"`
		NoteRoot      digest.Digest `json:"note_root"`
		NullifierRoot digest.Digest `json:"nullifier_root"`
		Timestamp     uint64        `json:"timestamp"`
	}{h.BlockNum, h.PrevHash, h.AccountRoot, h.NoteRoot, h.NullifierRoot, h.Timestamp})
}

// Forest returns the accumulator leaf count as of this block. Block n is
// leaf n, so a chain synchronized through block n holds n+1 leaves.
func (h BlockHeader) Forest() uint64 {
	return h.BlockNum + 1
}

// ValidateNext checks that the specified header is the direct child of
// this one.
func (h BlockHeader) ValidateNext(next BlockHeader) error {
	if next.BlockNum != h.BlockNum+1 {
		return fmt.Errorf("block %d is not the next number, exp %d", next.BlockNum, h.BlockNum+1)
	}

	if next.PrevHash != h.Hash() {
		return fmt.Errorf("block %d parent hash doesn't match our known parent, got %s, exp %s", next.BlockNum, next.PrevHash, h.Hash())
	}

	return nil
}
