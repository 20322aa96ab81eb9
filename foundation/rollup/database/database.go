// Package database handles all the lower level support for maintaining the
// client's view of the chain: accounts, notes, transactions, block headers,
// accumulator nodes and discovery tags. All mutations flow through a single
// atomic Apply so partial application is never observable.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/quarrylabs/rollclient/foundation/rollup/digest"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// =============================================================================

// Table identifies one logical entity collection.
type Table string

// The set of tables maintained by the client.
const (
	TableAccounts     Table = "accounts"
	TableNotes        Table = "notes"
	TableTransactions Table = "transactions"
	TableHeaders      Table = "headers"
	TableChainNodes   Table = "chainnodes"
	TableTags         Table = "tags"
	TableSync         Table = "sync"
)

// Write represents one mutation inside an atomic batch.
type Write struct {
	Table  Table
	Key    string
	Data   []byte
	Delete bool
}

// Storage interface represents the behavior required to be implemented by
// any package providing physical storage for the entity tables. Apply must
// commit all writes as a single atomic unit.
type Storage interface {
	Get(table Table, key string) ([]byte, error)
	ForEach(table Table, fn func(key string, data []byte) error) error
	Apply(writes []Write) error
	Close() error
}

// =============================================================================

// SyncCursor is the single-owner record holding the current synchronized
// block number. It is threaded explicitly through the sync coordinator
// rather than kept as implicit global state.
type SyncCursor struct {
	BlockNum uint64 `json:"block_num"`
}

// cursorKey is the key the cursor record is stored under.
const cursorKey = "cursor"

// =============================================================================

// Database manages the entity tables on top of a storage backend. Readers
// may proceed while a mutation is pending; writers serialize relative to
// each other so each Apply is a single-writer transaction.
type Database struct {
	mu      sync.RWMutex
	storage Storage
}

// New constructs a database on top of the specified storage backend.
func New(storage Storage) *Database {
	return &Database{
		storage: storage,
	}
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Apply commits the batch as a single atomic unit. Partial application on
// failure is not observable: the backend either writes everything or
// nothing.
func (db *Database) Apply(batch *MutationBatch) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if batch.err != nil {
		return fmt.Errorf("encode batch: %w", batch.err)
	}

	if len(batch.writes) == 0 {
		return nil
	}

	if err := db.storage.Apply(batch.writes); err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}

	return nil
}

// =============================================================================

// SyncCursor returns the current synchronized block number. A store that
// has never synchronized reports ErrNotFound.
func (db *Database) SyncCursor() (SyncCursor, error) {
	var cursor SyncCursor
	if err := db.get(TableSync, cursorKey, &cursor); err != nil {
		return SyncCursor{}, err
	}

	return cursor, nil
}

// Account returns the current row for the specified account id, the row
// with the highest nonce.
func (db *Database) Account(id AccountID) (Account, error) {
	history, err := db.AccountHistory(id)
	if err != nil {
		return Account{}, err
	}

	if len(history) == 0 {
		return Account{}, ErrNotFound
	}

	return history[len(history)-1], nil
}

// AccountHistory returns every stored row for the specified account id in
// nonce order. Historical rows are immutable once superseded.
func (db *Database) AccountHistory(id AccountID) ([]Account, error) {
	var history []Account

	prefix := string(id) + "#"
	err := db.forEach(TableAccounts, func(key string, data []byte) error {
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		var account Account
		if err := json.Unmarshal(data, &account); err != nil {
			return err
		}

		history = append(history, account)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(history, func(i, j int) bool { return history[i].Nonce < history[j].Nonce })
	return history, nil
}

// Accounts returns the current row for every tracked account.
func (db *Database) Accounts() ([]Account, error) {
	current := make(map[AccountID]Account)

	err := db.forEach(TableAccounts, func(key string, data []byte) error {
		var account Account
		if err := json.Unmarshal(data, &account); err != nil {
			return err
		}

		if cur, exists := current[account.ID]; !exists || account.Nonce > cur.Nonce {
			current[account.ID] = account
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, len(current))
	for _, account := range current {
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// Note returns the note with the specified id.
func (db *Database) Note(id NoteID) (Note, error) {
	var note Note
	if err := db.get(TableNotes, string(id), &note); err != nil {
		return Note{}, err
	}

	return note, nil
}

// Notes returns every note matching the specified filter.
func (db *Database) Notes(filter NoteFilter) ([]Note, error) {
	var notes []Note

	err := db.forEach(TableNotes, func(key string, data []byte) error {
		var note Note
		if err := json.Unmarshal(data, &note); err != nil {
			return err
		}

		if filter.match(note) {
			notes = append(notes, note)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	return notes, nil
}

// NoteByNullifier returns the note whose nullifier matches. Notes this
// client cannot consume carry no nullifier and never match.
func (db *Database) NoteByNullifier(nullifier digest.Digest) (Note, error) {
	if nullifier.IsZero() {
		return Note{}, ErrNotFound
	}

	var found *Note
	err := db.forEach(TableNotes, func(key string, data []byte) error {
		if found != nil {
			return nil
		}

		var note Note
		if err := json.Unmarshal(data, &note); err != nil {
			return err
		}

		if note.Nullifier == nullifier {
			found = &note
		}
		return nil
	})
	if err != nil {
		return Note{}, err
	}

	if found == nil {
		return Note{}, ErrNotFound
	}

	return *found, nil
}

// Transaction returns the transaction with the specified id.
func (db *Database) Transaction(id TxID) (Transaction, error) {
	var tx Transaction
	if err := db.get(TableTransactions, string(id), &tx); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// Transactions returns every transaction matching the specified filter.
func (db *Database) Transactions(filter TxFilter) ([]Transaction, error) {
	var txs []Transaction

	err := db.forEach(TableTransactions, func(key string, data []byte) error {
		var tx Transaction
		if err := json.Unmarshal(data, &tx); err != nil {
			return err
		}

		if filter.match(tx) {
			txs = append(txs, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
	return txs, nil
}

// Header returns the block header for the specified block number. Headers
// with no relevance to tracked notes may have been pruned.
func (db *Database) Header(blockNum uint64) (BlockHeader, error) {
	var header BlockHeader
	if err := db.get(TableHeaders, headerKey(blockNum), &header); err != nil {
		return BlockHeader{}, err
	}

	return header, nil
}

// Headers returns every stored header in the specified inclusive block
// range in block order.
func (db *Database) Headers(fromBlock uint64, toBlock uint64) ([]BlockHeader, error) {
	var headers []BlockHeader

	err := db.forEach(TableHeaders, func(key string, data []byte) error {
		var header BlockHeader
		if err := json.Unmarshal(data, &header); err != nil {
			return err
		}

		if header.BlockNum >= fromBlock && header.BlockNum <= toBlock {
			headers = append(headers, header)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(headers, func(i, j int) bool { return headers[i].BlockNum < headers[j].BlockNum })
	return headers, nil
}

// ChainNodes returns every stored accumulator node.
func (db *Database) ChainNodes() ([]mmr.Node, error) {
	var nodes []mmr.Node

	err := db.forEach(TableChainNodes, func(key string, data []byte) error {
		var node mmr.Node
		if err := json.Unmarshal(data, &node); err != nil {
			return err
		}

		nodes = append(nodes, node)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return nodes, nil
}

// Tags returns the active discovery tag set.
func (db *Database) Tags() ([]Tag, error) {
	var tags []Tag

	err := db.forEach(TableTags, func(key string, data []byte) error {
		var tag Tag
		if err := json.Unmarshal(data, &tag); err != nil {
			return err
		}

		tags = append(tags, tag)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].storageKey() < tags[j].storageKey() })
	return tags, nil
}

// =============================================================================

// get reads and decodes a single entity under the read lock.
func (db *Database) get(table Table, key string, value any) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	data, err := db.storage.Get(table, key)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, value)
}

// forEach walks a table under the read lock.
func (db *Database) forEach(table Table, fn func(key string, data []byte) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.storage.ForEach(table, fn)
}

// headerKey forms the storage key for a block header so keys sort in
// block order.
func headerKey(blockNum uint64) string {
	return fmt.Sprintf("%016x", blockNum)
}

// nodeKey forms the storage key for an accumulator node.
func nodeKey(position uint64) string {
	return fmt.Sprintf("%016x", position)
}

// accountKey forms the storage key for one account version.
func accountKey(id AccountID, nonce uint64) string {
	return fmt.Sprintf("%s#%016x", id, nonce)
}
