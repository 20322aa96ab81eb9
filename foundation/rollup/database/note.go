package database

import (
	"fmt"
	"strings"

	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// NoteID represents the identity commitment for a note as a hex encoded
// string.
type NoteID string

// =============================================================================

// NoteState represents where a note sits in its lifecycle.
type NoteState int

// The note lifecycle. State only ever advances along the transition graph,
// no transition removes a note record.
const (
	NoteExpected NoteState = iota
	NoteCommitted
	NoteProcessing
	NoteConsumed
	NoteDiscarded
)

// noteStateNames maps states to their display names.
var noteStateNames = map[NoteState]string{
	NoteExpected:   "expected",
	NoteCommitted:  "committed",
	NoteProcessing: "processing",
	NoteConsumed:   "consumed",
	NoteDiscarded:  "discarded",
}

// String implements the fmt.Stringer interface.
func (s NoteState) String() string {
	name, exists := noteStateNames[s]
	if !exists {
		return "unknown"
	}

	return name
}

// ParseNoteState converts a display name back to a note state.
func ParseNoteState(name string) (NoteState, error) {
	for state, n := range noteStateNames {
		if n == name {
			return state, nil
		}
	}

	return 0, fmt.Errorf("unknown note state %q", name)
}

// canTransition reports whether the lifecycle graph permits moving from
// this state to the specified one. Consumption directly from Committed
// covers a note committed and spent within one observed window as well as
// consumption by a party other than this client.
func (s NoteState) canTransition(to NoteState) bool {
	switch s {
	case NoteExpected:
		return to == NoteCommitted || to == NoteDiscarded
	case NoteCommitted:
		return to == NoteProcessing || to == NoteConsumed || to == NoteDiscarded
	case NoteProcessing:
		return to == NoteConsumed || to == NoteCommitted || to == NoteExpected || to == NoteDiscarded
	default:
		return false
	}
}

// =============================================================================

// NoteOrigin distinguishes notes this client can consume from notes its
// transactions produced.
type NoteOrigin string

// The two note origins.
const (
	OriginInput  NoteOrigin = "input"
	OriginOutput NoteOrigin = "output"
)

// NoteAsset represents one asset held by a note.
type NoteAsset struct {
	FaucetID AccountID `json:"faucet_id"`
	Amount   uint64    `json:"amount"`
}

// NoteMetadata carries the sender and discovery information for a note.
type NoteMetadata struct {
	Sender AccountID `json:"sender"`
	Kind   string    `json:"kind"`
	Tag    TagValue  `json:"tag"`
	Hint   string    `json:"hint,omitempty"`
}

// InclusionProof authenticates a note against the block that committed it:
// the note path folds the note id up to the header's note root and the
// merkle path authenticates the header itself against the accumulator
// peaks frozen at that block.
type InclusionProof struct {
	BlockNum  uint64          `json:"block_num"`
	NoteIndex uint64          `json:"note_index"`
	NotePath  []digest.Digest `json:"note_path"`
	Path      mmr.MerklePath  `json:"path"`
}

// =============================================================================

// Note represents a note the client created or discovered.
type Note struct {
	ID             NoteID          `json:"id"`
	Recipient      digest.Digest   `json:"recipient"`
	Assets         []NoteAsset     `json:"assets"`
	Metadata       NoteMetadata    `json:"metadata"`
	Nullifier      digest.Digest   `json:"nullifier,omitempty"`
	State          NoteState       `json:"state"`
	Origin         NoteOrigin      `json:"origin"`
	InclusionProof *InclusionProof `json:"inclusion_proof,omitempty"`
	ConsumerTx     TxID            `json:"consumer_tx,omitempty"`
	CreatedAt      uint64          `json:"created_at"`
}

// Transition advances the note's lifecycle state. A transition outside the
// lifecycle graph is rejected; the caller treats that as a recoverable
// anomaly, not a fault.
func (n *Note) Transition(to NoteState) error {
	if !n.State.canTransition(to) {
		return fmt.Errorf("note %s: transition %s -> %s not permitted", shortID(string(n.ID)), n.State, to)
	}

	n.State = to
	return nil
}

// =============================================================================

// NoteFilter selects notes by state, id set, partial id prefix, or by the
// block range the notes were created in. Zero values leave a dimension
// unconstrained.
type NoteFilter struct {
	States    []NoteState
	IDs       []NoteID
	IDPrefix  string
	FromBlock uint64
	ToBlock   uint64
}

// match reports whether the note passes every constrained dimension.
func (f NoteFilter) match(note Note) bool {
	if len(f.States) > 0 {
		found := false
		for _, state := range f.States {
			if note.State == state {
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
			if note.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.IDPrefix != "" && !strings.HasPrefix(string(note.ID), f.IDPrefix) {
		return false
	}

	if note.CreatedAt < f.FromBlock {
		return false
	}

	if f.ToBlock > 0 && note.CreatedAt > f.ToBlock {
		return false
	}

	return true
}

// shortID trims an id for log and error output.
func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}

	return id[:10]
}
