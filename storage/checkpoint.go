package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Checkpoint is the per-pool progress the coordinator must not forget across
// restarts: what it submitted for the current epoch and whether the single
// replacement submission was already spent.
type Checkpoint struct {
	EpochID        uint64    `json:"epoch_id"`
	SubmittedScore string    `json:"submitted_score,omitempty"`
	Replaced       bool      `json:"replaced"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Checkpoints stores Checkpoint values keyed by pool id.
type Checkpoints struct {
	db Database
}

// NewCheckpoints wraps a key-value store.
func NewCheckpoints(db Database) *Checkpoints {
	if db == nil {
		db = NewMemDB()
	}
	return &Checkpoints{db: db}
}

func checkpointKey(poolID string) []byte {
	return []byte("checkpoint/" + strings.TrimSpace(poolID))
}

// Load returns the checkpoint for the pool. ok is false when none was saved.
func (c *Checkpoints) Load(poolID string) (Checkpoint, bool, error) {
	raw, err := c.db.Get(checkpointKey(poolID))
	if errors.Is(err, ErrNotFound) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("storage: load checkpoint %s: %w", poolID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("storage: decode checkpoint %s: %w", poolID, err)
	}
	return cp, true, nil
}

// Save overwrites the checkpoint for the pool.
func (c *Checkpoints) Save(poolID string, cp Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("storage: encode checkpoint %s: %w", poolID, err)
	}
	if err := c.db.Put(checkpointKey(poolID), raw); err != nil {
		return fmt.Errorf("storage: save checkpoint %s: %w", poolID, err)
	}
	return nil
}

// Clear removes the checkpoint for the pool.
func (c *Checkpoints) Clear(poolID string) error {
	return c.db.Delete(checkpointKey(poolID))
}

// Close closes the underlying store.
func (c *Checkpoints) Close() error {
	return c.db.Close()
}
