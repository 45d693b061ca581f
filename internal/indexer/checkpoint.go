package indexer

import (
	"fmt"
	"time"

	"traceScope/internal/jsonfile"
)

// Checkpoint tracks the last block whose traces were decoded and stored.
type Checkpoint struct {
	ChainID            uint64 `json:"chain_id"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// CheckpointStore persists checkpoints to disk. A disabled store loads
// nothing and saves nothing.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

// Load returns the stored checkpoint for chainID. A checkpoint written for
// another chain is an error.
func (c *CheckpointStore) Load(chainID uint64) (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}

	var cp Checkpoint
	ok, err := jsonfile.Read(c.path, &cp)
	if err != nil || !ok {
		return Checkpoint{}, false, err
	}
	if cp.ChainID != 0 && cp.ChainID != chainID {
		return Checkpoint{}, false, fmt.Errorf("checkpoint %s belongs to chain %d, connected to chain %d", c.path, cp.ChainID, chainID)
	}
	return cp, true, nil
}

func (c *CheckpointStore) Save(chainID, lastProcessed uint64) error {
	if !c.enabled {
		return nil
	}
	return jsonfile.Write(c.path, Checkpoint{
		ChainID:            chainID,
		LastProcessedBlock: lastProcessed,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	})
}
