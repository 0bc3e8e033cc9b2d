package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Checkpoint is the persisted snapshot of a thread's state after a
// complete run. It is the payload stored as Record.Data.
type Checkpoint struct {
	// Metadata
	Version   int       `json:"version"`
	ThreadID  string    `json:"thread_id"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	// LastNode is the final node executed before END.
	LastNode string `json:"last_node,omitempty"`

	// Execution state
	State json.RawMessage `json:"state"`
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// New creates a new checkpoint with the given parameters.
// State must already be JSON-serialized.
func New(threadID, runID string, state []byte) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ThreadID:  threadID,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		State:     state,
	}
}

// WithLastNode records the final node of the run for debugging.
func (c *Checkpoint) WithLastNode(nodeID string) *Checkpoint {
	c.LastNode = nodeID
	return c
}
