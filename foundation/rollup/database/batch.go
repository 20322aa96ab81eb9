package database

import (
	"encoding/json"

	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// MutationBatch collects mutations across entity tables so they can be
// committed as a single atomic unit. References between transactions and
// notes are kept by id, never by pointer, so a batch can carry both sides
// of a relationship without ownership cycles.
type MutationBatch struct {
	writes []Write
	err    error
}

// NewBatch constructs an empty mutation batch.
func NewBatch() *MutationBatch {
	return &MutationBatch{}
}

// Len returns the number of mutations in the batch.
func (b *MutationBatch) Len() int {
	return len(b.writes)
}

// Err returns the first encoding error captured while building the batch.
func (b *MutationBatch) Err() error {
	return b.err
}

// UpsertAccount adds one account version row. Rows are keyed by id and
// nonce so superseded rows remain immutable history.
func (b *MutationBatch) UpsertAccount(account Account) {
	b.put(TableAccounts, accountKey(account.ID, account.Nonce), account)
}

// UpsertNote adds or replaces a note record.
func (b *MutationBatch) UpsertNote(note Note) {
	b.put(TableNotes, string(note.ID), note)
}

// UpsertTransaction adds or replaces a transaction record.
func (b *MutationBatch) UpsertTransaction(tx Transaction) {
	b.put(TableTransactions, string(tx.ID), tx)
}

// UpsertHeader adds or replaces a block header.
func (b *MutationBatch) UpsertHeader(header BlockHeader) {
	b.put(TableHeaders, headerKey(header.BlockNum), header)
}

// DeleteHeader removes a header that holds no relevance to tracked notes.
func (b *MutationBatch) DeleteHeader(blockNum uint64) {
	b.writes = append(b.writes, Write{Table: TableHeaders, Key: headerKey(blockNum), Delete: true})
}

// UpsertChainNode adds or replaces one accumulator node.
func (b *MutationBatch) UpsertChainNode(node mmr.Node) {
	b.put(TableChainNodes, nodeKey(node.Position), node)
}

// DeleteChainNode removes a pruned accumulator node.
func (b *MutationBatch) DeleteChainNode(position uint64) {
	b.writes = append(b.writes, Write{Table: TableChainNodes, Key: nodeKey(position), Delete: true})
}

// UpsertTag adds a discovery tag.
func (b *MutationBatch) UpsertTag(tag Tag) {
	b.put(TableTags, tag.storageKey(), tag)
}

// DeleteTag removes a discovery tag whose source no longer needs discovery.
func (b *MutationBatch) DeleteTag(tag Tag) {
	b.writes = append(b.writes, Write{Table: TableTags, Key: tag.storageKey(), Delete: true})
}

// SetSyncCursor advances the synchronized tip record.
func (b *MutationBatch) SetSyncCursor(cursor SyncCursor) {
	b.put(TableSync, cursorKey, cursor)
}

// put encodes the value and appends the write. The first encoding failure
// is captured and poisons the batch.
func (b *MutationBatch) put(table Table, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return
	}

	b.writes = append(b.writes, Write{Table: table, Key: key, Data: data})
}
