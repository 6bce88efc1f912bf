package router

import "sync/atomic"

// Epoch is a generation counter shared by the requests of one session.
// Issuing a new token supersedes every token issued before it.
type Epoch struct {
	n atomic.Uint64
}

func (e *Epoch) Next() Token {
	return Token{epoch: e, gen: e.n.Add(1)}
}

// Token identifies one request generation. The zero Token is always current.
type Token struct {
	epoch *Epoch
	gen   uint64
}

// Current reports whether no newer token has been issued since t.
func (t Token) Current() bool {
	return t.epoch == nil || t.epoch.n.Load() == t.gen
}
