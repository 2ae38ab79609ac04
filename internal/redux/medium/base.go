// Package medium implements the three Medium variants named in the runtime's
// data model: Local (in-process), Remote (peer WebSocket link, MessagePack
// framed) and Entry (external WebSocket client, JSON framed). base.go holds
// the framing helpers shared by Local and Remote so round-tripping a message
// is identical regardless of transport.
package medium

import (
	"time"

	"redux/runtime/internal/redux"
)

// Frame type tags carried in every peer wire message's reserved __t__
// field.
const (
	FrameAction      = "ACTION"
	FramePick        = "PICK"
	FramePickAck     = "PICKACK"
	FrameSubscribe   = "SUBSCRIBE"
	FrameUnsubscribe = "UNSUBSCRIBE"
	FrameState       = "STATE"
)

// Reserved wire field names.
const (
	fieldFrameType = "__t__"
	fieldTargetKey = "__k__"
	fieldSourceKey = "__r__"
	fieldFields    = "__f__"
	fieldState     = "__s__"
	fieldSequence  = "__q__"
	fieldSentAt    = "__a__"
)

// StampFrame attaches a sender-assigned sequence number and send timestamp to
// an outgoing peer frame. The receiving side's admission gate uses these to
// detect reordered, replayed, or stale frames; callers on a given connection
// must supply a strictly increasing seq.
func StampFrame(msg map[string]any, seq uint64, sentAt time.Time) map[string]any {
	msg[fieldSequence] = seq
	msg[fieldSentAt] = sentAt.UnixNano()
	return msg
}

// FrameMeta extracts the sequence number and send timestamp a peer stamped
// onto the frame via StampFrame. Both are zero-valued if absent.
func FrameMeta(msg map[string]any) (seq uint64, sentAt time.Time) {
	switch v := msg[fieldSequence].(type) {
	case uint64:
		seq = v
	case int64:
		seq = uint64(v)
	case float64:
		seq = uint64(v)
	}
	switch v := msg[fieldSentAt].(type) {
	case int64:
		sentAt = time.Unix(0, v)
	case uint64:
		sentAt = time.Unix(0, int64(v))
	case float64:
		sentAt = time.Unix(0, int64(v))
	}
	return seq, sentAt
}

// ToMessage renders an action as an ACTION frame targeting targetKey, from
// sourceKey.
func ToMessage(targetKey, sourceKey string, act redux.Action) map[string]any {
	msg := act.ToData()
	msg[fieldFrameType] = FrameAction
	msg[fieldTargetKey] = targetKey
	msg[fieldSourceKey] = sourceKey
	return msg
}

// FromMessage parses an ACTION frame into its target key and reconstructed
// Action. redux.FromData already strips every reserved (__-prefixed) key, so
// the frame's own __t__/__k__/__r__ fields never leak into act.Arguments.
func FromMessage(msg map[string]any) (targetKey string, act redux.Action) {
	targetKey, _ = msg[fieldTargetKey].(string)
	sourceKey, _ := msg[fieldSourceKey].(string)
	act = redux.FromData(msg)
	act.SourceKey = sourceKey
	return targetKey, act
}

// ToPickMessage renders a state-snapshot request for targetKey, optionally
// projected to fields.
func ToPickMessage(targetKey, sourceKey string, fields []string) map[string]any {
	msg := map[string]any{
		fieldFrameType: FramePick,
		fieldTargetKey: targetKey,
		fieldSourceKey: sourceKey,
	}
	if len(fields) > 0 {
		raw := make([]any, len(fields))
		for i, f := range fields {
			raw[i] = f
		}
		msg[fieldFields] = raw
	}
	return msg
}

// FromPickMessage parses a PICK frame.
func FromPickMessage(msg map[string]any) (targetKey, sourceKey string, fields []string) {
	targetKey, _ = msg[fieldTargetKey].(string)
	sourceKey, _ = msg[fieldSourceKey].(string)
	if raw, ok := msg[fieldFields].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				fields = append(fields, s)
			}
		}
	}
	return targetKey, sourceKey, fields
}

// ToPickAckMessage renders the response to a PICK: state is the snapshot, or
// nil if the target was absent.
func ToPickAckMessage(targetKey, sourceKey string, state map[string]any) map[string]any {
	msg := map[string]any{
		fieldFrameType: FramePickAck,
		fieldTargetKey: targetKey,
		fieldSourceKey: sourceKey,
	}
	if state != nil {
		msg[fieldState] = state
	}
	return msg
}

// FromPickAckMessage parses a PICKACK frame. found is false when the target
// held no state (absent node). sourceKey mirrors back the original
// requester's self key, used to correlate the ack with its pending PICK.
func FromPickAckMessage(msg map[string]any) (targetKey, sourceKey string, state map[string]any, found bool) {
	targetKey, _ = msg[fieldTargetKey].(string)
	sourceKey, _ = msg[fieldSourceKey].(string)
	raw, ok := msg[fieldState]
	if !ok || raw == nil {
		return targetKey, sourceKey, nil, false
	}
	state, ok = raw.(map[string]any)
	return targetKey, sourceKey, state, ok
}

// FrameType extracts the __t__ tag from a decoded frame map.
func FrameType(msg map[string]any) (string, bool) {
	t, ok := msg[fieldFrameType].(string)
	return t, ok
}

// StateFilter drops reserved slots and, when fields is non-empty, projects
// the state down to only the named slots.
func StateFilter(state map[string]any, fields []string) map[string]any {
	filtered := redux.FilterReserved(state)
	if len(fields) == 0 {
		return filtered
	}
	projected := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := filtered[f]; ok {
			projected[f] = v
		}
	}
	return projected
}
