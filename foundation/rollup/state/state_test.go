package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/database/storage/memory"
	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/genesis"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient/local"
	"github.com/quarrylabs/rollclient/foundation/rollup/state"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func genesisHeader() database.BlockHeader {
	return database.BlockHeader{
		BlockNum:  0,
		NoteRoot:  digest.HashBytes([]byte("genesis")),
		Timestamp: 1,
	}
}

func newTestState(t *testing.T, stor database.Storage, node nodeclient.Client, expiry uint64) *state.State {
	gen := genesis.Genesis{ChainID: "rolltest", Header: genesisHeader()}

	st, err := state.New(state.Config{
		Genesis:       gen,
		Storage:       stor,
		Node:          node,
		TxExpiryDelta: expiry,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}

	return st
}

func testNote(seed string, tag database.TagValue) database.Note {
	return database.Note{
		ID:        database.NoteID(digest.HashBytes([]byte("note-" + seed))),
		Recipient: digest.HashBytes([]byte("rcpt-" + seed)),
		Assets: []database.NoteAsset{
			{FaucetID: database.AccountID(digest.HashBytes([]byte("faucet"))), Amount: 100},
		},
		Metadata: database.NoteMetadata{
			Sender: database.AccountID(digest.HashBytes([]byte("sender"))),
			Kind:   "p2id",
			Tag:    tag,
		},
		Nullifier: digest.HashBytes([]byte("null-" + seed)),
	}
}

func testAccount(t *testing.T) database.Account {
	seed, err := database.GenerateSeed()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to generate an account seed: %v", failed, err)
	}

	return database.NewAccount(seed,
		digest.HashBytes([]byte("code")),
		digest.HashBytes([]byte("storage")),
		digest.HashBytes([]byte("vault")))
}

// =============================================================================

func Test_SyncNoteLifecycle(t *testing.T) {
	t.Log("Given the need to track a note from import through consumption.")
	{
		t.Log("\tTest 0:\tWhen a tagged note is committed and then spent on chain.")
		{
			node := local.New(genesisHeader())
			st := newTestState(t, memory.New(), node, 0)

			note := testNote("lifecycle", 7)
			if err := st.ImportNote(note); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to import the note: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to import the note.", success)

			node.SealBlock(local.BlockContent{Notes: []database.Note{note}})

			summary, err := st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync the committing block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sync the committing block.", success)

			if summary.BlockNum != 1 || len(summary.CommittedNotes) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould report the note committed at block 1, got tip %d with %d commits.", failed, summary.BlockNum, len(summary.CommittedNotes))
			}
			t.Logf("\t%s\tTest 0:\tShould report the note committed at block 1.", success)

			got, err := st.QueryNote(note.ID)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to query the note: %v", failed, err)
			}
			if got.State != database.NoteCommitted || got.InclusionProof == nil {
				t.Fatalf("\t%s\tTest 0:\tShould hold a committed note with its proof, got %s.", failed, got.State)
			}
			t.Logf("\t%s\tTest 0:\tShould hold a committed note with its proof.", success)

			tags, err := st.QueryTags()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to query the tags: %v", failed, err)
			}
			for _, tag := range tags {
				if tag.Source == database.TagSourceNote && tag.NoteID == note.ID {
					t.Fatalf("\t%s\tTest 0:\tShould have pruned the note's discovery tag.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould have pruned the note's discovery tag.", success)

			// Consume the note with a local transaction.
			acct := testAccount(t)
			if err := st.AddAccount(acct); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to track the account: %v", failed, err)
			}

			next := acct
			next.Nonce = 1
			next.Seed = nil
			next.VaultRoot = digest.HashBytes([]byte("vault-after"))

			output := testNote("change", 9)
			output.Metadata.Sender = acct.ID

			tx := database.Transaction{
				ID:                database.TxID(digest.HashBytes([]byte("tx-lifecycle"))),
				AccountID:         acct.ID,
				InitAccountState:  acct.StateDigest(),
				FinalAccountState: next.StateDigest(),
				InputNotes:        []database.NoteID{note.ID},
				OutputNotes:       []database.NoteID{output.ID},
				Status:            database.TxPending,
			}

			if err := st.RecordTransaction(tx, next, []database.Note{output}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to record the transaction.", success)

			got, _ = st.QueryNote(note.ID)
			if got.State != database.NoteProcessing || got.ConsumerTx != tx.ID {
				t.Fatalf("\t%s\tTest 0:\tShould hold the input note in processing under the transaction, got %s.", failed, got.State)
			}
			t.Logf("\t%s\tTest 0:\tShould hold the input note in processing under the transaction.", success)

			// The chain settles the transaction, publishes the nullifier,
			// and seals the output note.
			node.SetAccount(nodeclient.AccountUpdate{ID: next.ID, Nonce: next.Nonce, StateDigest: next.StateDigest()})
			node.SealBlock(local.BlockContent{
				Notes:      []database.Note{output},
				Nullifiers: []digest.Digest{note.Nullifier},
				Transactions: []nodeclient.TransactionUpdate{
					{ID: tx.ID, AccountID: acct.ID, BlockNum: 2},
				},
			})

			summary, err = st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync the settling block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sync the settling block.", success)

			if len(summary.CommittedTransactions) != 1 || len(summary.ConsumedNotes) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould report one committed transaction and one consumed note, got %d and %d.", failed, len(summary.CommittedTransactions), len(summary.ConsumedNotes))
			}
			t.Logf("\t%s\tTest 0:\tShould report one committed transaction and one consumed note.", success)

			got, _ = st.QueryNote(note.ID)
			if got.State != database.NoteConsumed {
				t.Fatalf("\t%s\tTest 0:\tShould hold the input note consumed, got %s.", failed, got.State)
			}
			t.Logf("\t%s\tTest 0:\tShould hold the input note consumed.", success)

			gotOut, _ := st.QueryNote(output.ID)
			if gotOut.State != database.NoteCommitted || gotOut.InclusionProof == nil {
				t.Fatalf("\t%s\tTest 0:\tShould hold the output note committed with its proof, got %s.", failed, gotOut.State)
			}
			t.Logf("\t%s\tTest 0:\tShould hold the output note committed with its proof.", success)

			gotTx, _ := st.QueryTransaction(tx.ID)
			if gotTx.Status != database.TxCommitted || gotTx.CommitHeight != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould hold the transaction committed at block 2, got %s at %d.", failed, gotTx.Status, gotTx.CommitHeight)
			}
			t.Logf("\t%s\tTest 0:\tShould hold the transaction committed at block 2.", success)

			gotAcct, _ := st.QueryAccount(acct.ID)
			if gotAcct.Nonce != 1 || !gotAcct.Committed {
				t.Fatalf("\t%s\tTest 0:\tShould hold the account committed at nonce 1, got nonce %d committed %v.", failed, gotAcct.Nonce, gotAcct.Committed)
			}
			t.Logf("\t%s\tTest 0:\tShould hold the account committed at nonce 1.", success)
		}
	}
}

func Test_SyncIdempotent(t *testing.T) {
	t.Log("Given the need to make repeated sync rounds safe.")
	{
		t.Log("\tTest 0:\tWhen the chain tip has not moved since the last round.")
		{
			node := local.New(genesisHeader())
			st := newTestState(t, memory.New(), node, 0)

			note := testNote("idem", 3)
			if err := st.ImportNote(note); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to import the note: %v", failed, err)
			}

			node.SealBlock(local.BlockContent{Notes: []database.Note{note}})
			node.SealBlock(local.BlockContent{})

			first, err := st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync to the tip: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sync to the tip.", success)

			second, err := st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to run a second round: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to run a second round.", success)

			if second.BlockNum != first.BlockNum {
				t.Fatalf("\t%s\tTest 0:\tShould stay at tip %d, got %d.", failed, first.BlockNum, second.BlockNum)
			}
			if len(second.CommittedNotes) != 0 || len(second.ConsumedNotes) != 0 || len(second.Anomalies) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould apply nothing on the second round.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould apply nothing on the second round.", success)

			got, _ := st.QueryNote(note.ID)
			if got.State != database.NoteCommitted {
				t.Fatalf("\t%s\tTest 0:\tShould leave the note committed, got %s.", failed, got.State)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the note committed.", success)
		}
	}
}

// corruptNode hands back a delta whose first header does not link to the
// client's tip.
type corruptNode struct{}

func (corruptNode) BlockHeaderByNumber(ctx context.Context, blockNum uint64) (database.BlockHeader, mmr.Peaks, error) {
	return database.BlockHeader{}, nil, errors.New("not implemented")
}

func (corruptNode) SyncState(ctx context.Context, req nodeclient.SyncRequest) (nodeclient.SyncDelta, error) {
	return nodeclient.SyncDelta{
		ChainTip: 1,
		Headers: []database.BlockHeader{
			{BlockNum: 1, PrevHash: digest.HashBytes([]byte("wrong-parent")), Timestamp: 2},
		},
	}, nil
}

func (corruptNode) SubmitProvenTransaction(ctx context.Context, tx []byte) error {
	return errors.New("not implemented")
}

func (corruptNode) Close() error {
	return nil
}

func Test_SyncValidationAtomicity(t *testing.T) {
	t.Log("Given the need to reject a delta that does not extend the local view.")
	{
		t.Log("\tTest 0:\tWhen the first delta header does not link to the tip.")
		{
			st := newTestState(t, memory.New(), corruptNode{}, 0)

			_, err := st.Sync(context.Background())
			if !errors.Is(err, state.ErrDeltaValidation) {
				t.Fatalf("\t%s\tTest 0:\tShould fail the round with a validation error, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould fail the round with a validation error.", success)

			if tip := st.ChainTip(); tip.BlockNum != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the cursor at block 0, got %d.", failed, tip.BlockNum)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the cursor at block 0.", success)

			if _, err := st.QueryHeader(1); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould not have stored any delta header, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not have stored any delta header.", success)
		}
	}
}

func Test_DiscardReversal(t *testing.T) {
	t.Log("Given the need to unwind a transaction abandoned before settlement.")
	{
		t.Log("\tTest 0:\tWhen a pending transaction consuming a committed note is discarded.")
		{
			node := local.New(genesisHeader())
			st := newTestState(t, memory.New(), node, 0)

			note := testNote("unwind", 5)
			if err := st.ImportNote(note); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to import the note: %v", failed, err)
			}

			node.SealBlock(local.BlockContent{Notes: []database.Note{note}})
			if _, err := st.Sync(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync the committing block: %v", failed, err)
			}

			acct := testAccount(t)
			if err := st.AddAccount(acct); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to track the account: %v", failed, err)
			}

			next := acct
			next.Nonce = 1
			next.Seed = nil

			output := testNote("unwind-out", 6)
			tx := database.Transaction{
				ID:                database.TxID(digest.HashBytes([]byte("tx-unwind"))),
				AccountID:         acct.ID,
				InitAccountState:  acct.StateDigest(),
				FinalAccountState: next.StateDigest(),
				InputNotes:        []database.NoteID{note.ID},
				OutputNotes:       []database.NoteID{output.ID},
				Status:            database.TxPending,
			}

			if err := st.RecordTransaction(tx, next, []database.Note{output}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to record the transaction.", success)

			if err := st.DiscardTransaction(tx.ID); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to discard the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to discard the transaction.", success)

			got, _ := st.QueryNote(note.ID)
			if got.State != database.NoteCommitted || got.ConsumerTx != "" {
				t.Fatalf("\t%s\tTest 0:\tShould return the input note to committed, got %s.", failed, got.State)
			}
			t.Logf("\t%s\tTest 0:\tShould return the input note to committed.", success)

			gotOut, _ := st.QueryNote(output.ID)
			if gotOut.State != database.NoteDiscarded {
				t.Fatalf("\t%s\tTest 0:\tShould discard the output note, got %s.", failed, gotOut.State)
			}
			t.Logf("\t%s\tTest 0:\tShould discard the output note.", success)

			gotTx, _ := st.QueryTransaction(tx.ID)
			if gotTx.Status != database.TxDiscarded {
				t.Fatalf("\t%s\tTest 0:\tShould hold the transaction discarded, got %s.", failed, gotTx.Status)
			}
			t.Logf("\t%s\tTest 0:\tShould hold the transaction discarded.", success)

			if err := st.DiscardTransaction(tx.ID); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject a second discard.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a second discard.", success)
		}
	}
}

func Test_TransactionExpiry(t *testing.T) {
	t.Log("Given the need to expire transactions the chain has moved past.")
	{
		t.Log("\tTest 0:\tWhen the tip passes the reference block by more than the expiry delta.")
		{
			node := local.New(genesisHeader())
			st := newTestState(t, memory.New(), node, 2)

			acct := testAccount(t)
			if err := st.AddAccount(acct); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to track the account: %v", failed, err)
			}

			next := acct
			next.Nonce = 1
			next.Seed = nil

			output := testNote("expiry-out", 11)
			tx := database.Transaction{
				ID:                database.TxID(digest.HashBytes([]byte("tx-expiry"))),
				AccountID:         acct.ID,
				InitAccountState:  acct.StateDigest(),
				FinalAccountState: next.StateDigest(),
				OutputNotes:       []database.NoteID{output.ID},
				Status:            database.TxPending,
			}

			if err := st.RecordTransaction(tx, next, []database.Note{output}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to record the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to record the transaction.", success)

			// Reference block is 0, expiry delta is 2, so the transaction
			// survives through block 2 and expires at block 3.
			node.SealBlock(local.BlockContent{})
			node.SealBlock(local.BlockContent{})

			summary, err := st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync to block 2: %v", failed, err)
			}
			if len(summary.DiscardedTransactions) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the transaction pending at block 2.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the transaction pending at block 2.", success)

			node.SealBlock(local.BlockContent{})

			summary, err = st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync to block 3: %v", failed, err)
			}
			if len(summary.DiscardedTransactions) != 1 || summary.DiscardedTransactions[0] != tx.ID {
				t.Fatalf("\t%s\tTest 0:\tShould discard the expired transaction at block 3.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould discard the expired transaction at block 3.", success)

			gotTx, _ := st.QueryTransaction(tx.ID)
			if gotTx.Status != database.TxDiscarded {
				t.Fatalf("\t%s\tTest 0:\tShould hold the transaction discarded, got %s.", failed, gotTx.Status)
			}
			gotOut, _ := st.QueryNote(output.ID)
			if gotOut.State != database.NoteDiscarded {
				t.Fatalf("\t%s\tTest 0:\tShould discard the never committed output note, got %s.", failed, gotOut.State)
			}
			t.Logf("\t%s\tTest 0:\tShould discard the transaction and its output note.", success)
		}
	}
}

func Test_AnomalyReporting(t *testing.T) {
	t.Log("Given the need to absorb chain observations that contradict the local view.")
	{
		t.Log("\tTest 0:\tWhen a nullifier arrives for a note already consumed.")
		{
			node := local.New(genesisHeader())
			st := newTestState(t, memory.New(), node, 0)

			note := testNote("anomaly", 13)
			if err := st.ImportNote(note); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to import the note: %v", failed, err)
			}

			node.SealBlock(local.BlockContent{
				Notes:      []database.Note{note},
				Nullifiers: []digest.Digest{note.Nullifier},
			})

			summary, err := st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync commit and spend in one round: %v", failed, err)
			}
			if len(summary.ConsumedNotes) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould consume the note in the same round it commits.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould consume the note in the same round it commits.", success)

			// The same nullifier shows up again in a later block.
			node.SealBlock(local.BlockContent{Nullifiers: []digest.Digest{note.Nullifier}})

			summary, err = st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould complete the round despite the anomaly: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould complete the round despite the anomaly.", success)

			if len(summary.Anomalies) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould report the duplicate nullifier exactly once, got %d.", failed, len(summary.Anomalies))
			}
			t.Logf("\t%s\tTest 0:\tShould report the duplicate nullifier exactly once.", success)

			if summary.BlockNum != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould advance the cursor to block 2, got %d.", failed, summary.BlockNum)
			}
			t.Logf("\t%s\tTest 0:\tShould advance the cursor to block 2.", success)

			got, _ := st.QueryNote(note.ID)
			if got.State != database.NoteConsumed {
				t.Fatalf("\t%s\tTest 0:\tShould leave the note consumed, got %s.", failed, got.State)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the note consumed.", success)
		}
	}
}

func Test_ChainPruning(t *testing.T) {
	t.Log("Given the need to keep only the chain data the client still uses.")
	{
		t.Log("\tTest 0:\tWhen blocks without client notes fall behind the tip.")
		{
			node := local.New(genesisHeader())
			st := newTestState(t, memory.New(), node, 0)

			note := testNote("prune", 17)
			if err := st.ImportNote(note); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to import the note: %v", failed, err)
			}

			node.SealBlock(local.BlockContent{Notes: []database.Note{note}})
			node.SealBlock(local.BlockContent{})
			node.SealBlock(local.BlockContent{})

			if _, err := st.Sync(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync to block 3: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sync to block 3.", success)

			if _, err := st.QueryHeader(0); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould retain the genesis header: %v", failed, err)
			}
			noteHeader, err := st.QueryHeader(1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould retain the header carrying the client note: %v", failed, err)
			}
			if !noteHeader.HasClientNotes {
				t.Fatalf("\t%s\tTest 0:\tShould flag the retained header as carrying client notes.", failed)
			}
			if _, err := st.QueryHeader(3); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould retain the tip header: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould retain genesis, the note's block, and the tip.", success)

			if _, err := st.QueryHeader(2); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould prune the irrelevant header, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould prune the irrelevant header.", success)

			// The retained note's proof still verifies against the live peaks.
			got, _ := st.QueryNote(note.ID)
			if got.InclusionProof == nil {
				t.Fatalf("\t%s\tTest 0:\tShould still hold the note's proof.", failed)
			}
			if !mmr.VerifyInclusion(noteHeader.Hash(), noteHeader.BlockNum, got.InclusionProof.Path, st.ChainPeaks()) {
				t.Fatalf("\t%s\tTest 0:\tShould verify the retained proof against the live peaks.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould verify the retained proof against the live peaks.", success)
		}
	}
}

func Test_Resume(t *testing.T) {
	t.Log("Given the need to rebuild the view from the store after a restart.")
	{
		t.Log("\tTest 0:\tWhen a second state instance opens the same store.")
		{
			node := local.New(genesisHeader())
			stor := memory.New()

			st := newTestState(t, stor, node, 0)

			note := testNote("resume", 19)
			if err := st.ImportNote(note); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to import the note: %v", failed, err)
			}

			node.SealBlock(local.BlockContent{Notes: []database.Note{note}})
			node.SealBlock(local.BlockContent{})

			if _, err := st.Sync(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync before the restart: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sync before the restart.", success)

			// A fresh instance over the same storage picks up where the
			// first left off.
			st2 := newTestState(t, stor, node, 0)

			if tip := st2.ChainTip(); tip.BlockNum != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould resume at block 2, got %d.", failed, tip.BlockNum)
			}
			t.Logf("\t%s\tTest 0:\tShould resume at block 2.", success)

			// The rebuilt accumulator has to keep validating new blocks
			// and note proofs.
			note2 := testNote("resume-2", 23)
			if err := st2.ImportNote(note2); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to import a second note: %v", failed, err)
			}

			node.SealBlock(local.BlockContent{Notes: []database.Note{note2}})

			summary, err := st2.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync after the restart: %v", failed, err)
			}
			if len(summary.CommittedNotes) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould commit the second note after the restart.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould commit the second note after the restart.", success)
		}
	}
}

func Test_SnapshotAfterAdvance(t *testing.T) {
	t.Log("Given the need for snapshots to stay verifiable as the chain grows.")
	{
		t.Log("\tTest 0:\tWhen the tip has advanced past the note's committing block.")
		{
			node := local.New(genesisHeader())
			st := newTestState(t, memory.New(), node, 0)

			note := testNote("snapshot", 27)
			if err := st.ImportNote(note); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to import the note: %v", failed, err)
			}

			acct := testAccount(t)
			if err := st.AddAccount(acct); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to track the account: %v", failed, err)
			}

			node.SealBlock(local.BlockContent{Notes: []database.Note{note}})
			if _, err := st.Sync(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync the committing block: %v", failed, err)
			}

			// The tip moves on, changing the forest the live peaks answer
			// for.
			node.SealBlock(local.BlockContent{})
			if _, err := st.Sync(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync past the committing block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sync past the committing block.", success)

			snap, err := st.Snapshot(acct.ID, []database.NoteID{note.ID})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to assemble the snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to assemble the snapshot.", success)

			proof := snap.ConsumableNotes[0].InclusionProof
			if proof.Path.Forest != snap.ReferenceBlock.Forest() {
				t.Fatalf("\t%s\tTest 0:\tShould anchor the proof at the reference forest %d, got %d.", failed, snap.ReferenceBlock.Forest(), proof.Path.Forest)
			}
			t.Logf("\t%s\tTest 0:\tShould anchor the proof at the reference forest.", success)

			noteHeader, err := st.QueryHeader(proof.BlockNum)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould retain the committing header: %v", failed, err)
			}
			if !mmr.VerifyInclusion(noteHeader.Hash(), proof.BlockNum, proof.Path, snap.Peaks) {
				t.Fatalf("\t%s\tTest 0:\tShould verify the snapshot proof against the snapshot peaks.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould verify the snapshot proof against the snapshot peaks.", success)
		}
	}
}

// scriptedNode replays prepared deltas keyed by the tip the client reports.
type scriptedNode struct {
	deltas map[uint64]nodeclient.SyncDelta
}

func (n scriptedNode) BlockHeaderByNumber(ctx context.Context, blockNum uint64) (database.BlockHeader, mmr.Peaks, error) {
	return database.BlockHeader{}, nil, errors.New("not implemented")
}

func (n scriptedNode) SyncState(ctx context.Context, req nodeclient.SyncRequest) (nodeclient.SyncDelta, error) {
	return n.deltas[req.BlockNum], nil
}

func (n scriptedNode) SubmitProvenTransaction(ctx context.Context, tx []byte) error {
	return errors.New("not implemented")
}

func (n scriptedNode) Close() error {
	return nil
}

func Test_HeaderCacheRefresh(t *testing.T) {
	t.Log("Given the need for the header cache to see rows a round rewrites.")
	{
		t.Log("\tTest 0:\tWhen a cached header becomes relevant in a later round.")
		{
			// Script a chain where the note in block 1 is only reported in
			// the round that syncs block 2, so the already stored block 1
			// header is rewritten with its relevance flag.
			gh := genesisHeader()
			accum := mmr.New()
			accum.Append(gh.Hash())

			note := testNote("stale-cache", 29)
			noteRoot, notePaths := database.NoteTree([]database.NoteID{note.ID})

			h1 := database.BlockHeader{BlockNum: 1, PrevHash: gh.Hash(), NoteRoot: noteRoot, Timestamp: 2}
			accum.Append(h1.Hash())
			h1.Peaks = accum.Peaks()

			h2 := database.BlockHeader{BlockNum: 2, PrevHash: h1.Hash(), NoteRoot: digest.HashBytes([]byte("empty")), Timestamp: 3}
			accum.Append(h2.Hash())
			h2.Peaks = accum.Peaks()

			path, err := accum.Proof(1, accum.Forest())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the note's path: %v", failed, err)
			}

			node := scriptedNode{
				deltas: map[uint64]nodeclient.SyncDelta{
					0: {ChainTip: 1, Headers: []database.BlockHeader{h1}},
					1: {
						ChainTip: 2,
						Headers:  []database.BlockHeader{h2},
						Notes: []nodeclient.NoteUpdate{
							{
								NoteID: note.ID,
								Note:   &note,
								Proof: database.InclusionProof{
									BlockNum:  1,
									NoteIndex: 0,
									NotePath:  notePaths[0],
									Path:      path,
								},
							},
						},
					},
				},
			}

			st := newTestState(t, memory.New(), node, 0)

			if _, err := st.Sync(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync block 1: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sync block 1.", success)

			// Warm the cache with the header before the round that rewrites
			// it.
			cached, err := st.QueryHeader(1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to query the tip header: %v", failed, err)
			}
			if cached.HasClientNotes {
				t.Fatalf("\t%s\tTest 0:\tShould not flag the header before the note is known.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not flag the header before the note is known.", success)

			summary, err := st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sync block 2: %v", failed, err)
			}
			if len(summary.CommittedNotes) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould commit the discovered note.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould commit the discovered note.", success)

			refreshed, err := st.QueryHeader(1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould still serve the rewritten header: %v", failed, err)
			}
			if !refreshed.HasClientNotes {
				t.Fatalf("\t%s\tTest 0:\tShould serve the header with its relevance flag, not the cached row.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould serve the header with its relevance flag, not the cached row.", success)
		}
	}
}

func Test_NodeFailure(t *testing.T) {
	t.Log("Given the need to survive a failed round without corrupting the view.")
	{
		t.Log("\tTest 0:\tWhen the node is unavailable for one round.")
		{
			node := local.New(genesisHeader())
			st := newTestState(t, memory.New(), node, 0)

			node.SealBlock(local.BlockContent{})
			node.FailNext()

			if _, err := st.Sync(context.Background()); !errors.Is(err, local.ErrUnavailable) {
				t.Fatalf("\t%s\tTest 0:\tShould surface the transport failure, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould surface the transport failure.", success)

			if tip := st.ChainTip(); tip.BlockNum != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the cursor untouched, got %d.", failed, tip.BlockNum)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the cursor untouched.", success)

			summary, err := st.Sync(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould succeed on the retry: %v", failed, err)
			}
			if summary.BlockNum != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould reach block 1 on the retry, got %d.", failed, summary.BlockNum)
			}
			t.Logf("\t%s\tTest 0:\tShould reach block 1 on the retry.", success)
		}
	}
}
