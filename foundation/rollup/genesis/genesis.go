// Package genesis maintains access to the chain genesis information the
// client bootstraps its partial view from.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/quarrylabs/rollclient/foundation/rollup/database"
)

// Genesis represents the genesis information for the chain this client
// follows. The genesis header becomes leaf zero of the accumulator.
type Genesis struct {
	ChainID string               `json:"chain_id"`
	Header  database.BlockHeader `json:"header"`
}

// Load reads the genesis information from the specified file.
func Load(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis file: %w", err)
	}

	var genesis Genesis
	if err := json.Unmarshal(data, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decode genesis file: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis information is usable.
func (g Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("genesis missing chain id")
	}

	if g.Header.BlockNum != 0 {
		return fmt.Errorf("genesis header must be block 0, got %d", g.Header.BlockNum)
	}

	return nil
}
