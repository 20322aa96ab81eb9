// Package state is the core API for the rollup client and implements all
// the business rules for reconciling the local view against the chain.
package state

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
	"github.com/quarrylabs/rollclient/foundation/rollup/genesis"
	"github.com/quarrylabs/rollclient/foundation/rollup/mmr"
	"github.com/quarrylabs/rollclient/foundation/rollup/nodeclient"
)

// defaultTxExpiryDelta is how many blocks past its reference block a
// pending transaction may wait before it is considered stale and
// discarded.
const defaultTxExpiryDelta = 256

// headerCacheSize bounds the header cache on the read path.
const headerCacheSize = 128

// =============================================================================

// EventHandler defines a function that is called when events occur in the
// processing of sync rounds and local activity.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for background synchronization.
type Worker interface {
	Shutdown()
	SignalSync()
}

// =============================================================================

// Config represents the configuration required to start the client state.
type Config struct {
	Genesis       genesis.Genesis
	Storage       database.Storage
	Node          nodeclient.Client
	TxExpiryDelta uint64
	EvHandler     EventHandler
}

// State manages the client's partial view of the chain. The entity store
// is the sole serialization point between sync rounds and local activity:
// roundMu serializes sync rounds end to end, mu makes the sync apply phase
// and local mutations mutually exclusive.
type State struct {
	mu      sync.Mutex
	roundMu sync.Mutex

	db          *database.Database
	node        nodeclient.Client
	genesis     genesis.Genesis
	accum       *mmr.Mmr
	cursor      database.SyncCursor
	headerCache *lru.Cache[uint64, database.BlockHeader]
	evHandler   EventHandler
	expiryDelta uint64

	Worker Worker
}

// New constructs the client state on top of the specified storage backend
// and node client. A fresh store is bootstrapped from the genesis header,
// an existing store resumes from its persisted cursor.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	expiryDelta := cfg.TxExpiryDelta
	if expiryDelta == 0 {
		expiryDelta = defaultTxExpiryDelta
	}

	headerCache, err := lru.New[uint64, database.BlockHeader](headerCacheSize)
	if err != nil {
		return nil, err
	}

	db := database.New(cfg.Storage)

	state := State{
		db:          db,
		node:        cfg.Node,
		genesis:     cfg.Genesis,
		headerCache: headerCache,
		evHandler:   ev,
		expiryDelta: expiryDelta,
	}

	cursor, err := db.SyncCursor()
	switch {
	case errors.Is(err, database.ErrNotFound):
		if err := state.bootstrap(); err != nil {
			return nil, fmt.Errorf("bootstrap from genesis: %w", err)
		}

	case err != nil:
		return nil, fmt.Errorf("read sync cursor: %w", err)

	default:
		if err := state.resume(cursor); err != nil {
			return nil, fmt.Errorf("resume from block %d: %w", cursor.BlockNum, err)
		}
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start the background synchronization.

	return &state, nil
}

// Shutdown cleanly brings the client down.
func (s *State) Shutdown() error {
	defer func() {
		s.node.Close()
		s.db.Close()
	}()

	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// bootstrap initializes an empty store: the genesis header becomes leaf
// zero of the accumulator and the cursor points at block zero.
func (s *State) bootstrap() error {
	s.evHandler("state: bootstrap: chain[%s]", s.genesis.ChainID)

	accum := mmr.New()
	created := accum.Append(s.genesis.Header.Hash())

	header := s.genesis.Header
	header.Peaks = accum.Peaks()

	batch := database.NewBatch()
	batch.UpsertHeader(header)
	for _, node := range created {
		batch.UpsertChainNode(node)
	}
	batch.SetSyncCursor(database.SyncCursor{BlockNum: 0})

	if err := s.db.Apply(batch); err != nil {
		return err
	}

	s.accum = accum
	s.cursor = database.SyncCursor{BlockNum: 0}

	return nil
}

// resume reconstructs the accumulator from the persisted tip header and
// node set. The tip header is never pruned so its peaks are always
// available.
func (s *State) resume(cursor database.SyncCursor) error {
	tipHeader, err := s.db.Header(cursor.BlockNum)
	if err != nil {
		return fmt.Errorf("read tip header: %w", err)
	}

	nodes, err := s.db.ChainNodes()
	if err != nil {
		return fmt.Errorf("read accumulator nodes: %w", err)
	}

	accum, err := mmr.NewFrom(tipHeader.Forest(), tipHeader.Peaks, nodes)
	if err != nil {
		return err
	}

	s.accum = accum
	s.cursor = cursor

	s.evHandler("state: resume: chain[%s]: tip[%d]", s.genesis.ChainID, cursor.BlockNum)
	return nil
}
