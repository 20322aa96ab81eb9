package database_test

import (
	"errors"
	"testing"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/database/storage/memory"
	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_NoteLifecycle(t *testing.T) {
	type table struct {
		name  string
		from  database.NoteState
		to    database.NoteState
		valid bool
	}

	tt := []table{
		{"expected commits", database.NoteExpected, database.NoteCommitted, true},
		{"expected discards", database.NoteExpected, database.NoteDiscarded, true},
		{"expected cannot consume", database.NoteExpected, database.NoteConsumed, false},
		{"committed processes", database.NoteCommitted, database.NoteProcessing, true},
		{"committed consumed externally", database.NoteCommitted, database.NoteConsumed, true},
		{"processing consumes", database.NoteProcessing, database.NoteConsumed, true},
		{"processing reverts committed", database.NoteProcessing, database.NoteCommitted, true},
		{"processing reverts expected", database.NoteProcessing, database.NoteExpected, true},
		{"consumed is terminal", database.NoteConsumed, database.NoteCommitted, false},
		{"discarded is terminal", database.NoteDiscarded, database.NoteExpected, false},
	}

	t.Log("Given the need to validate the note lifecycle graph.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling %s.", testID, tst.name)
			{
				note := database.Note{ID: "note1", State: tst.from}
				err := note.Transition(tst.to)

				switch tst.valid {
				case true:
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to transition %s -> %s: %v", failed, testID, tst.from, tst.to, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to transition %s -> %s.", success, testID, tst.from, tst.to)

					if note.State != tst.to {
						t.Fatalf("\t%s\tTest %d:\tShould land in state %s, got %s.", failed, testID, tst.to, note.State)
					}
					t.Logf("\t%s\tTest %d:\tShould land in state %s.", success, testID, tst.to)

				case false:
					if err == nil {
						t.Fatalf("\t%s\tTest %d:\tShould reject transition %s -> %s.", failed, testID, tst.from, tst.to)
					}
					t.Logf("\t%s\tTest %d:\tShould reject transition %s -> %s.", success, testID, tst.from, tst.to)

					if note.State != tst.from {
						t.Fatalf("\t%s\tTest %d:\tShould leave the state at %s, got %s.", failed, testID, tst.from, note.State)
					}
					t.Logf("\t%s\tTest %d:\tShould leave the state at %s.", success, testID, tst.from)
				}
			}
		}
	}
}

func Test_TransactionLifecycle(t *testing.T) {
	t.Log("Given the need to validate transaction settlement rules.")
	{
		t.Log("\tTest 0:\tWhen committing a pending transaction.")
		{
			tx := database.Transaction{ID: "tx1", Status: database.TxPending}

			if err := tx.Commit(42); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to commit a pending transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to commit a pending transaction.", success)

			if tx.CommitHeight != 42 {
				t.Fatalf("\t%s\tTest 0:\tShould record the commit height 42, got %d.", failed, tx.CommitHeight)
			}
			t.Logf("\t%s\tTest 0:\tShould record the commit height.", success)

			if err := tx.Discard(); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject discarding a committed transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject discarding a committed transaction.", success)
		}

		t.Log("\tTest 1:\tWhen discarding a pending transaction.")
		{
			tx := database.Transaction{ID: "tx2", Status: database.TxPending}

			if err := tx.Discard(); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to discard a pending transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to discard a pending transaction.", success)

			if err := tx.Commit(43); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject committing a discarded transaction.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject committing a discarded transaction.", success)

			if err := tx.Discard(); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject discarding an already discarded transaction.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject discarding an already discarded transaction.", success)
		}
	}
}

func Test_AccountVersions(t *testing.T) {
	t.Log("Given the need to keep account history immutable across versions.")
	{
		t.Log("\tTest 0:\tWhen storing several versions of one account.")
		{
			db := database.New(memory.New())

			seed, err := database.GenerateSeed()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to generate a seed: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to generate a seed.", success)

			v0 := database.NewAccount(seed, digest.HashBytes([]byte("code")), digest.HashBytes([]byte("storage")), digest.HashBytes([]byte("vault")))

			v1 := v0
			v1.Nonce = 1
			v1.Seed = nil
			v1.VaultRoot = digest.HashBytes([]byte("vault2"))

			batch := database.NewBatch()
			batch.UpsertAccount(v0)
			batch.UpsertAccount(v1)
			if err := db.Apply(batch); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the batch: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the batch.", success)

			current, err := db.Account(v0.ID)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the account: %v", failed, err)
			}
			if current.Nonce != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould report nonce 1 as current, got %d.", failed, current.Nonce)
			}
			t.Logf("\t%s\tTest 0:\tShould report the highest nonce as current.", success)

			history, err := db.AccountHistory(v0.ID)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the history: %v", failed, err)
			}
			if len(history) != 2 || history[0].Nonce != 0 || history[1].Nonce != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould keep both versions in nonce order, got %d rows.", failed, len(history))
			}
			t.Logf("\t%s\tTest 0:\tShould keep both versions in nonce order.", success)

			accounts, err := db.Accounts()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to list accounts: %v", failed, err)
			}
			if len(accounts) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould list one current row per account, got %d.", failed, len(accounts))
			}
			t.Logf("\t%s\tTest 0:\tShould list one current row per account.", success)
		}
	}
}

func Test_BatchOrdering(t *testing.T) {
	t.Log("Given the need for deletes to win over upserts within one batch.")
	{
		t.Log("\tTest 0:\tWhen a header is written and pruned in the same batch.")
		{
			db := database.New(memory.New())

			header := database.BlockHeader{BlockNum: 7, NoteRoot: digest.HashBytes([]byte("root"))}

			batch := database.NewBatch()
			batch.UpsertHeader(header)
			batch.DeleteHeader(7)
			batch.SetSyncCursor(database.SyncCursor{BlockNum: 7})
			if err := db.Apply(batch); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the batch: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the batch.", success)

			if _, err := db.Header(7); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould not find the pruned header: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not find the pruned header.", success)

			cursor, err := db.SyncCursor()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the cursor: %v", failed, err)
			}
			if cursor.BlockNum != 7 {
				t.Fatalf("\t%s\tTest 0:\tShould advance the cursor to 7, got %d.", failed, cursor.BlockNum)
			}
			t.Logf("\t%s\tTest 0:\tShould advance the cursor.", success)
		}
	}
}

func Test_NoteTree(t *testing.T) {
	type table struct {
		name  string
		count int
	}

	tt := []table{
		{"single note", 1},
		{"even count", 4},
		{"odd count requires duplication", 5},
	}

	t.Log("Given the need to authenticate notes against a block's note root.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen sealing %s.", testID, tst.name)
			{
				ids := make([]database.NoteID, tst.count)
				for i := range ids {
					ids[i] = database.NoteID(digest.HashBytes([]byte{byte(i)}))
				}

				root, paths := database.NoteTree(ids)
				if len(paths) != tst.count {
					t.Fatalf("\t%s\tTest %d:\tShould produce one path per note, got %d.", failed, testID, len(paths))
				}
				t.Logf("\t%s\tTest %d:\tShould produce one path per note.", success, testID)

				for i, id := range ids {
					if !database.VerifyNotePath(id, uint64(i), paths[i], root) {
						t.Fatalf("\t%s\tTest %d:\tShould verify the path for note %d.", failed, testID, i)
					}
				}
				t.Logf("\t%s\tTest %d:\tShould verify the path for every note.", success, testID)

				if tst.count > 1 {
					if database.VerifyNotePath(ids[0], 1, paths[0], root) {
						t.Fatalf("\t%s\tTest %d:\tShould reject a path folded at the wrong index.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould reject a path folded at the wrong index.", success, testID)
				}
			}
		}
	}
}

func Test_TagDerivation(t *testing.T) {
	t.Log("Given the need to derive discovery tags for notes and accounts.")
	{
		t.Log("\tTest 0:\tWhen deriving from a note and its owning account.")
		{
			note := database.Note{
				ID:       "note1",
				Metadata: database.NoteMetadata{Tag: 0xdeadbeef},
			}

			tag := database.TagForNote(note)
			if tag.Value != 0xdeadbeef || tag.Source != database.TagSourceNote || tag.NoteID != note.ID {
				t.Fatalf("\t%s\tTest 0:\tShould carry the note's tag value and source.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould carry the note's tag value and source.", success)

			id := database.AccountID(digest.HashBytes([]byte("account")))
			atag := database.TagForAccount(id)
			if atag.Source != database.TagSourceAccount || atag.AccountID != id {
				t.Fatalf("\t%s\tTest 0:\tShould bind the account tag to the account id.", failed)
			}
			if atag.Value == 0 {
				t.Fatalf("\t%s\tTest 0:\tShould fold the account id into a non-zero tag value.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould bind the account tag to the account id.", success)
		}
	}
}
