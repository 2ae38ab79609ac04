// Package node supplies the reducer role shims named in the runtime's node
// taxonomy: thin embeddable bases that capture a node's own key and give it
// Send/Response helpers plus whichever extra transport surface its role
// needs (bound entry client, named peer mediums, or a shared execution
// realm), on top of the bare redux.Reducer contract.
package node

import (
	"redux/runtime/internal/redux"
	"redux/runtime/internal/redux/medium"
)

// Base captures the node's own key at Initialize and provides the Send and
// Response helpers every role shares. Embedders that override Initialize for
// their own setup should call Base.Initialize first.
type Base struct {
	Key string
}

// Initialize implements the key-capture half of redux.Reducer.
func (b *Base) Initialize(key string) error {
	b.Key = key
	return nil
}

// Send addresses targetKey through act's medium. Actions synthesized
// locally (e.g. __NO_OP) carry no medium and Send reports ErrNone.
func (b *Base) Send(act redux.Action, targetKey string, out redux.Action) error {
	if act.Medium == nil {
		return redux.ErrNone
	}
	return act.Medium.Send(b.Key, targetKey, out)
}

// Response addresses act's own source key, the "reply to whoever sent this"
// pattern used throughout request/response-shaped reduce logic.
func (b *Base) Response(act redux.Action, out redux.Action) error {
	if act.Medium == nil || act.SourceKey == "" {
		return redux.ErrNone
	}
	return act.Medium.Send(b.Key, act.SourceKey, out)
}

// GeneralReducer is the role for ordinary internal nodes: no entry binding,
// no realm, just Base's Send/Response over whichever medium the triggering
// action arrived through.
type GeneralReducer struct {
	Base
}

// EntryKey returns the node's own key, the address other nodes use to reach
// it back.
func (g *GeneralReducer) EntryKey() string { return g.Key }

// PublicEntryReducer is the role for nodes reachable by exactly one external
// JSON client over an Entry link. EntryMedium is nil until that
// client's connection is accepted.
type PublicEntryReducer struct {
	Base
	EntryMedium *medium.Entry
}

// BindEntryMedium implements medium.EntryBinder, invoked once per accepted
// entry connection.
func (p *PublicEntryReducer) BindEntryMedium(em *medium.Entry) {
	p.EntryMedium = em
}

// PushToEntry sends act to the bound external client, if one is connected.
func (p *PublicEntryReducer) PushToEntry(act redux.Action) error {
	if p.EntryMedium == nil {
		return redux.ErrNone
	}
	return p.EntryMedium.Send(p.Key, p.Key, act)
}

// InternalEntryReducer is the role for nodes that bridge actions across one
// or more named peer links rather than a single bound client connection.
type InternalEntryReducer struct {
	Base
	EntryMediums map[string]redux.Medium
}

// SendVia addresses targetKey through the named peer medium.
func (i *InternalEntryReducer) SendVia(name, targetKey string, act redux.Action) error {
	m, ok := i.EntryMediums[name]
	if !ok {
		return redux.ErrUnknownPrefix
	}
	return m.Send(i.Key, targetKey, act)
}

// ExecutorReducer is the role for nodes whose reduce logic runs against a
// shared resource beyond their own state (a "realm" the reducer looks up
// but does not own), rather than just Base's Send/Response.
type ExecutorReducer struct {
	Base
	Realm any
}
