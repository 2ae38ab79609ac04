package medium

import (
	"testing"

	"redux/runtime/internal/redux"
)

func TestToMessageFromMessageRoundTrip(t *testing.T) {
	act := redux.NewAction("MOVE", map[string]any{"dx": 1})
	msg := ToMessage("node:b", "node:a", act)

	if ft, _ := FrameType(msg); ft != FrameAction {
		t.Fatalf("expected frame type ACTION, got %q", ft)
	}

	target, got := FromMessage(msg)
	if target != "node:b" {
		t.Fatalf("expected target node:b, got %q", target)
	}
	if got.Type != "MOVE" {
		t.Fatalf("expected type MOVE, got %q", got.Type)
	}
	if got.SourceKey != "node:a" {
		t.Fatalf("expected source key node:a, got %q", got.SourceKey)
	}
	if got.Arguments["dx"] != 1 {
		t.Fatalf("expected dx argument to survive, got %v", got.Arguments)
	}
}

func TestPickMessageRoundTrip(t *testing.T) {
	msg := ToPickMessage("node:b", "node:a", []string{"x", "y"})
	target, source, fields := FromPickMessage(msg)
	if target != "node:b" || source != "node:a" {
		t.Fatalf("expected node:b/node:a, got %q/%q", target, source)
	}
	if len(fields) != 2 || fields[0] != "x" || fields[1] != "y" {
		t.Fatalf("expected [x y], got %v", fields)
	}
}

func TestPickAckMessageRoundTripFound(t *testing.T) {
	state := map[string]any{"count": 3}
	msg := ToPickAckMessage("node:b", "node:a", state)
	target, source, got, found := FromPickAckMessage(msg)
	if !found {
		t.Fatal("expected found==true when state is present")
	}
	if target != "node:b" || source != "node:a" {
		t.Fatalf("expected node:b/node:a, got %q/%q", target, source)
	}
	if got["count"] != 3 {
		t.Fatalf("expected count==3, got %v", got)
	}
}

func TestPickAckMessageRoundTripAbsent(t *testing.T) {
	msg := ToPickAckMessage("node:b", "node:a", nil)
	_, _, got, found := FromPickAckMessage(msg)
	if found {
		t.Fatal("expected found==false when the target held no state")
	}
	if got != nil {
		t.Fatalf("expected nil state, got %v", got)
	}
}

func TestStateFilterProjectsNamedFields(t *testing.T) {
	state := map[string]any{"count": 1, "name": "a", "__k__": "reserved"}
	filtered := StateFilter(state, []string{"count"})
	if len(filtered) != 1 || filtered["count"] != 1 {
		t.Fatalf("expected only count to survive, got %v", filtered)
	}
}

func TestStateFilterWithNoFieldsStripsOnlyReserved(t *testing.T) {
	state := map[string]any{"count": 1, "name": "a", "__k__": "reserved"}
	filtered := StateFilter(state, nil)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 surviving keys, got %v", filtered)
	}
	if _, ok := filtered["__k__"]; ok {
		t.Fatal("expected reserved key to be stripped")
	}
}
