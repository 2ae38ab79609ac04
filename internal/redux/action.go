// Package redux implements the store/reducer/action runtime: a process-local
// registry of dynamically created, prefix-keyed stateful nodes dispatched to
// through typed actions, with idle recycling and listener subscriptions.
package redux

import (
	"encoding/json"
	"sort"
)

// ReservedPrefix marks argument and state-slot keys that never cross the wire
// or appear in a listener notification.
const ReservedPrefix = "__"

// NoOpType is the reserved action dispatched to a freshly subscribed node so
// that initialize-from-store hooks observe activation even without an
// externally triggered action.
const NoOpType = "__NO_OP"

// Medium is the capability to address another node, whether in this process
// or across a WebSocket link. Local, Remote and Entry all implement it.
type Medium interface {
	Send(selfKey, targetKey string, act Action) error
	GetState(selfKey, targetKey string, fields []string) (map[string]any, error)
	Subscribe(selfKey, targetKey string, l Listener) (func(), error)
	Unsubscribe(selfKey, targetKey string)
}

// Action is an immutable tagged message: a type string plus a free-form
// argument map. SourceKey and Medium describe where it came from, when known.
type Action struct {
	Type       string
	Arguments  map[string]any
	Medium     Medium
	SourceKey  string
}

// NewAction constructs an Action with the given type and arguments. A nil
// arguments map is normalized to an empty map.
func NewAction(actionType string, arguments map[string]any) Action {
	if arguments == nil {
		arguments = map[string]any{}
	}
	return Action{Type: actionType, Arguments: arguments}
}

// NoOp returns the reserved no-op action used to wake a newly subscribed node.
func NoOp() Action {
	return NewAction(NoOpType, nil)
}

// Is reports whether the action's type equals the given string, mirroring the
// source implementation's string-equality convenience.
func (a Action) Is(actionType string) bool {
	return a.Type == actionType
}

// Soft reports whether this action carries a truthy "soft" argument: a soft
// action must never cause its target node to be created.
func (a Action) Soft() bool {
	v, ok := a.Arguments["soft"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Arg fetches a named argument, reporting whether it was present.
func (a Action) Arg(key string) (any, bool) {
	v, ok := a.Arguments[key]
	return v, ok
}

// IsReservedKey reports whether a key is reserved and must be stripped from
// both wire emission and state projection.
func IsReservedKey(key string) bool {
	return len(key) >= len(ReservedPrefix) && key[:len(ReservedPrefix)] == ReservedPrefix
}

// FilterReserved returns a copy of m with reserved keys removed.
func FilterReserved(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsReservedKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// ToData renders the action as a wire-ready map: "type" plus every
// non-reserved argument. Reserved argument keys are never emitted.
func (a Action) ToData() map[string]any {
	data := FilterReserved(a.Arguments)
	data["type"] = a.Type
	return data
}

// ToJSON renders the action as the entry-medium JSON wire shape: a flat
// object with "type" plus non-reserved arguments.
func (a Action) ToJSON() ([]byte, error) {
	return json.Marshal(a.ToData())
}

// FromData reconstructs an Action from a wire map, stripping the reserved
// "type" key into the Type field and dropping any other reserved keys.
func FromData(data map[string]any) Action {
	arguments := make(map[string]any, len(data))
	actionType, _ := data["type"].(string)
	for k, v := range data {
		if k == "type" || IsReservedKey(k) {
			continue
		}
		arguments[k] = v
	}
	return NewAction(actionType, arguments)
}

// FromJSON parses an entry-medium JSON frame into an Action.
func FromJSON(raw []byte) (Action, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Action{}, err
	}
	return FromData(data), nil
}

// SortedKeys returns the non-reserved keys of a state map in sorted order,
// the shape used for seed notifications and debug listings.
func SortedKeys(state map[string]any) []string {
	keys := make([]string, 0, len(state))
	for k := range state {
		if IsReservedKey(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
