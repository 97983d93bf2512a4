package graph

import (
	"encoding/json"
	"maps"
)

// State is the shared mapping threaded through every node of a run.
// Nodes return partial States which the engine merges in; keys are never removed.
type State map[string]any

// Clone returns a shallow copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	maps.Copy(out, s)
	return out
}

// Merge copies every key of update into s.
func (s State) Merge(update State) {
	maps.Copy(s, update)
}

// String returns the value at key if it is a string.
func (s State) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Update is one node's partial state as emitted on the stream.
type Update struct {
	Node   string
	Values State
}

// MarshalJSON encodes the update as {"<node>": {...}}.
func (u Update) MarshalJSON() ([]byte, error) {
	values := u.Values
	if values == nil {
		values = State{}
	}
	return json.Marshal(map[string]State{u.Node: values})
}
