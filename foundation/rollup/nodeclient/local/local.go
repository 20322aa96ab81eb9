// Package local implements the nodeclient.Client interface with an
// in-process chain simulator. Tests script blocks against it and the sync
// coordinator consumes it exactly like a remote node.
package local

import (
	"context"
	"errors"
	"sync"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient"
)

// Compile-time interface check.
var _ nodeclient.Client = (*Local)(nil)

// ErrUnavailable simulates a transport failure for the next call.
var ErrUnavailable = errors.New("node unavailable")

// =============================================================================

// BlockContent describes what a scripted block carries.
type BlockContent struct {
	Notes        []database.Note
	Nullifiers   []digest.Digest
	Transactions []nodeclient.TransactionUpdate
}

// blockRecord keeps the sealed header plus the events tied to that block.
type blockRecord struct {
	header    database.BlockHeader
	notes     []database.Note
	notePaths [][]digest.Digest
	spent     []digest.Digest
	txs       []nodeclient.TransactionUpdate
}

// =============================================================================

// Local represents the in-process chain node.
type Local struct {
	mu        sync.Mutex
	accum     *mmr.Mmr
	blocks    []blockRecord
	accounts  map[database.AccountID]nodeclient.AccountUpdate
	submitted [][]byte
	failNext  bool
}

// New constructs a local node seeded with the genesis header.
func New(genesisHeader database.BlockHeader) *Local {
	l := Local{
		accum:    mmr.New(),
		accounts: make(map[database.AccountID]nodeclient.AccountUpdate),
	}

	l.accum.Append(genesisHeader.Hash())
	genesisHeader.Peaks = l.accum.Peaks()
	l.blocks = append(l.blocks, blockRecord{header: genesisHeader})

	return &l
}

// Close implements the nodeclient.Client interface.
func (l *Local) Close() error {
	return nil
}

// =============================================================================
// Scripting API used by tests and offline runs.

// SealBlock seals the next block with the specified content and returns
// its header.
func (l *Local) SealBlock(content BlockContent) database.BlockHeader {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.blocks[len(l.blocks)-1].header

	ids := make([]database.NoteID, len(content.Notes))
	for i, note := range content.Notes {
		ids[i] = note.ID
	}
	noteRoot, notePaths := database.NoteTree(ids)

	header := database.BlockHeader{
		BlockNum:      prev.BlockNum + 1,
		PrevHash:      prev.Hash(),
		AccountRoot:   digest.Hash(l.accounts),
		NoteRoot:      noteRoot,
		NullifierRoot: digest.Hash(content.Nullifiers),
		Timestamp:     prev.Timestamp + 1,
	}

	l.accum.Append(header.Hash())
	header.Peaks = l.accum.Peaks()

	l.blocks = append(l.blocks, blockRecord{
		header:    header,
		notes:     content.Notes,
		notePaths: notePaths,
		spent:     content.Nullifiers,
		txs:       content.Transactions,
	})

	return header
}

// SetAccount registers the on-chain state the node reports for an account.
func (l *Local) SetAccount(update nodeclient.AccountUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts[update.ID] = update
}

// FailNext makes the next RPC fail with ErrUnavailable.
func (l *Local) FailNext() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failNext = true
}

// Submitted returns the raw transactions submitted so far.
func (l *Local) Submitted() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([][]byte{}, l.submitted...)
}

// =============================================================================
// nodeclient.Client implementation.

// BlockHeaderByNumber implements the nodeclient.Client interface.
func (l *Local) BlockHeaderByNumber(ctx context.Context, blockNum uint64) (database.BlockHeader, mmr.Peaks, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(ctx); err != nil {
		return database.BlockHeader{}, nil, err
	}

	if blockNum >= uint64(len(l.blocks)) {
		return database.BlockHeader{}, nil, errors.New("block not found")
	}

	header := l.blocks[blockNum].header
	return header, header.Peaks, nil
}

// SyncState implements the nodeclient.Client interface. It reports every
// block after the requested tip, note inclusions matching the requested
// tags, published nullifiers, and committed transactions.
func (l *Local) SyncState(ctx context.Context, req nodeclient.SyncRequest) (nodeclient.SyncDelta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(ctx); err != nil {
		return nodeclient.SyncDelta{}, err
	}

	tip := uint64(len(l.blocks) - 1)
	delta := nodeclient.SyncDelta{ChainTip: tip}

	tags := make(map[database.TagValue]bool, len(req.Tags))
	for _, tag := range req.Tags {
		tags[tag] = true
	}

	for num := req.BlockNum + 1; num <= tip; num++ {
		record := l.blocks[num]
		delta.Headers = append(delta.Headers, record.header)

		for i, note := range record.notes {
			if !tags[note.Metadata.Tag] {
				continue
			}

			path, err := l.accum.Proof(num, l.accum.Forest())
			if err != nil {
				return nodeclient.SyncDelta{}, err
			}

			note := note
			delta.Notes = append(delta.Notes, nodeclient.NoteUpdate{
				NoteID: note.ID,
				Note:   &note,
				Proof: database.InclusionProof{
					BlockNum:  num,
					NoteIndex: uint64(i),
					NotePath:  record.notePaths[i],
					Path:      path,
				},
			})
		}

		for _, nullifier := range record.spent {
			delta.Nullifiers = append(delta.Nullifiers, nodeclient.NullifierUpdate{
				Nullifier: nullifier,
				BlockNum:  num,
			})
		}

		delta.Transactions = append(delta.Transactions, record.txs...)
	}

	for _, update := range l.accounts {
		delta.Accounts = append(delta.Accounts, update)
	}

	return delta, nil
}

// SubmitProvenTransaction implements the nodeclient.Client interface.
func (l *Local) SubmitProvenTransaction(ctx context.Context, tx []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkAvailable(ctx); err != nil {
		return err
	}

	l.submitted = append(l.submitted, append([]byte{}, tx...))
	return nil
}

// checkAvailable honors context cancellation and scripted failures.
func (l *Local) checkAvailable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if l.failNext {
		l.failNext = false
		return ErrUnavailable
	}

	return nil
}
