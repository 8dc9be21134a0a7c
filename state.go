package enginebridge

import (
	"encoding/json"

	"github.com/wippyai/enginebridge/errors"
)

// State is the readiness of one consumer
type State uint8

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a consumer's readiness as observed at one point in time.
// Err is set only in the Failed state. Attempt counts initialization
// attempts issued by the consumer.
type Snapshot struct {
	State   State
	Err     error
	Attempt uint64
}

// Reason returns the user-facing failure message, or "" when not failed
func (s Snapshot) Reason() string {
	if s.State != Failed || s.Err == nil {
		return ""
	}
	return errors.Message(s.Err)
}

// MarshalJSON encodes the snapshot for API responses
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		State   State  `json:"state"`
		Error   string `json:"error,omitempty"`
		Attempt uint64 `json:"attempt"`
	}{s.State, s.Reason(), s.Attempt})
}
