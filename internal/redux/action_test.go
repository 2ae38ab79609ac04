package redux

import "testing"

func TestNewActionNormalizesNilArguments(t *testing.T) {
	act := NewAction("PING", nil)
	if act.Arguments == nil {
		t.Fatal("expected non-nil arguments map")
	}
	if len(act.Arguments) != 0 {
		t.Fatalf("expected empty arguments, got %v", act.Arguments)
	}
}

func TestActionSoft(t *testing.T) {
	soft := NewAction("PING", map[string]any{"soft": true})
	if !soft.Soft() {
		t.Fatal("expected soft action to report Soft()==true")
	}
	notSoft := NewAction("PING", map[string]any{"soft": false})
	if notSoft.Soft() {
		t.Fatal("expected Soft()==false")
	}
	absent := NewAction("PING", nil)
	if absent.Soft() {
		t.Fatal("expected Soft()==false when argument absent")
	}
}

func TestIsReservedKey(t *testing.T) {
	if !IsReservedKey("__k__") {
		t.Fatal("expected __-prefixed key to be reserved")
	}
	if IsReservedKey("count") {
		t.Fatal("expected ordinary key to not be reserved")
	}
}

func TestFilterReserved(t *testing.T) {
	in := map[string]any{"count": 1, "__k__": "target", "__r__": "source"}
	out := FilterReserved(in)
	if len(out) != 1 {
		t.Fatalf("expected one surviving key, got %v", out)
	}
	if out["count"] != 1 {
		t.Fatalf("expected count to survive, got %v", out)
	}
}

func TestToDataStripsReservedArgumentsAndAddsType(t *testing.T) {
	act := NewAction("MOVE", map[string]any{"dx": 1, "__hidden__": "nope"})
	data := act.ToData()
	if data["type"] != "MOVE" {
		t.Fatalf("expected type MOVE, got %v", data["type"])
	}
	if data["dx"] != 1 {
		t.Fatalf("expected dx to survive, got %v", data["dx"])
	}
	if _, ok := data["__hidden__"]; ok {
		t.Fatal("expected reserved argument to be stripped")
	}
}

func TestFromDataRoundTrip(t *testing.T) {
	data := map[string]any{"type": "MOVE", "dx": 1, "__k__": "ignored"}
	act := FromData(data)
	if act.Type != "MOVE" {
		t.Fatalf("expected type MOVE, got %q", act.Type)
	}
	if act.Arguments["dx"] != 1 {
		t.Fatalf("expected dx argument, got %v", act.Arguments)
	}
	if _, ok := act.Arguments["__k__"]; ok {
		t.Fatal("expected reserved key to be dropped from arguments")
	}
}

func TestToJSONFromJSONRoundTrip(t *testing.T) {
	act := NewAction("MOVE", map[string]any{"dx": float64(3)})
	raw, err := act.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	parsed, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if parsed.Type != "MOVE" {
		t.Fatalf("expected type MOVE, got %q", parsed.Type)
	}
	if parsed.Arguments["dx"] != float64(3) {
		t.Fatalf("expected dx==3, got %v", parsed.Arguments["dx"])
	}
}

func TestSortedKeys(t *testing.T) {
	state := map[string]any{"b": 1, "a": 2, "__k__": "x"}
	keys := SortedKeys(state)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("expected sorted [a b], got %v", keys)
	}
}

func TestNoOp(t *testing.T) {
	act := NoOp()
	if act.Type != NoOpType {
		t.Fatalf("expected type %q, got %q", NoOpType, act.Type)
	}
	if !act.Is(NoOpType) {
		t.Fatal("expected Is(NoOpType) to be true")
	}
}
