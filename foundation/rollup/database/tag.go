package database

import (
	"encoding/binary"
	"fmt"

	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
)

// TagValue represents a discovery tag the remote node can filter chain
// activity by without learning full note or account details.
type TagValue uint32

// TagSource identifies where a tag came from. Empty source fields mean an
// account level subscription that outlives any single note.
type TagSource string

// The tag source kinds.
const (
	TagSourceNone    TagSource = "none"
	TagSourceNote    TagSource = "note"
	TagSourceAccount TagSource = "account"
)

// Tag maps a discovery value to the entity that registered interest in it.
// A tag sourced from a note is deleted once that note commits, it no
// longer needs discovery.
type Tag struct {
	Value     TagValue  `json:"value"`
	Source    TagSource `json:"source"`
	NoteID    NoteID    `json:"note_id,omitempty"`
	AccountID AccountID `json:"account_id,omitempty"`
}

// storageKey forms the table key. A tag value may be registered by several
// sources at once.
func (t Tag) storageKey() string {
	return fmt.Sprintf("%08x#%s#%s%s", uint32(t.Value), t.Source, t.NoteID, t.AccountID)
}

// TagForNote derives the discovery registration for a note still awaiting
// commitment. The tag is dropped once the note commits.
func TagForNote(note Note) Tag {
	return Tag{
		Value:  note.Metadata.Tag,
		Source: TagSourceNote,
		NoteID: note.ID,
	}
}

// TagForAccount derives the standing discovery registration for a tracked
// account. The value folds the id down to the 32 bits the node indexes
// activity by, so the node learns the tag but never the full id.
func TagForAccount(id AccountID) Tag {
	var value TagValue
	if d, err := digest.ToDigest(string(id)); err == nil {
		if raw, err := d.Bytes(); err == nil {
			value = TagValue(binary.BigEndian.Uint32(raw[:4]))
		}
	}

	return Tag{
		Value:     value,
		Source:    TagSourceAccount,
		AccountID: id,
	}
}
