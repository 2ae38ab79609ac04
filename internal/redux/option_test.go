package redux

import (
	"errors"
	"testing"
)

func TestOptionSome(t *testing.T) {
	o := Some(42)
	if !o.IsSome() || o.IsNone() || o.IsError() {
		t.Fatalf("expected Some state, got %+v", o)
	}
	if o.Unwrap() != 42 {
		t.Fatalf("expected 42, got %v", o.Unwrap())
	}
	if o.Error() != nil {
		t.Fatalf("expected nil error, got %v", o.Error())
	}
}

func TestOptionNone(t *testing.T) {
	o := None[int]()
	if o.IsSome() || !o.IsNone() || o.IsError() {
		t.Fatalf("expected None state, got %+v", o)
	}
	if !errors.Is(o.Error(), ErrNone) {
		t.Fatalf("expected ErrNone, got %v", o.Error())
	}
}

func TestOptionErr(t *testing.T) {
	sentinel := errors.New("boom")
	o := Err[int](sentinel)
	if o.IsSome() || o.IsNone() || !o.IsError() {
		t.Fatalf("expected Error state, got %+v", o)
	}
	if !errors.Is(o.Error(), sentinel) {
		t.Fatalf("expected sentinel error, got %v", o.Error())
	}
}
