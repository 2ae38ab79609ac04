package redux

import (
	"reflect"
	"testing"
)

func TestStateWrapperSeedsFullStateOnFirstNotify(t *testing.T) {
	var got []string
	w := wrapListener(ListenerFunc(func(changed []string, state map[string]any) {
		got = changed
	}))

	state := map[string]any{"b": 1, "a": 2, "__k__": "reserved"}
	w.notify([]string{"b"}, state)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected seed notify to report all sorted non-reserved keys, got %v", got)
	}
}

func TestStateWrapperReportsDiffOnSubsequentNotify(t *testing.T) {
	var got []string
	w := wrapListener(ListenerFunc(func(changed []string, state map[string]any) {
		got = changed
	}))

	w.notify([]string{"a"}, map[string]any{"a": 1, "b": 2})
	w.notify([]string{"b"}, map[string]any{"a": 1, "b": 3})
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("expected the actual changed set on the second call, got %v", got)
	}
}

func TestSilenceListenerDiscardsNotifications(t *testing.T) {
	var l Listener = SilenceListener{}
	l.OnChanged([]string{"a"}, map[string]any{"a": 1})
}

func TestListenerFuncAdaptsPlainFunction(t *testing.T) {
	called := false
	var l Listener = ListenerFunc(func(changed []string, state map[string]any) {
		called = true
	})
	l.OnChanged(nil, nil)
	if !called {
		t.Fatal("expected ListenerFunc.OnChanged to invoke the wrapped function")
	}
}
