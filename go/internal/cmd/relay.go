package main

import (
	"fmt"
	"sync"

	"github.com/webwizzz/chess-sub000/go/internal/protocol"
)

type messageSender interface {
	Send(msg protocol.ClientMessage) error
}

// senderRelay defers the session's outbound path until the gateway is
// dialed. Messages sent before that fail; the session only sends in
// response to state it can't have before the socket is up.
type senderRelay struct {
	mu   sync.RWMutex
	dest messageSender
}

func (r *senderRelay) set(dest messageSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dest = dest
}

func (r *senderRelay) Send(msg protocol.ClientMessage) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.dest == nil {
		return fmt.Errorf("gateway not connected")
	}
	return r.dest.Send(msg)
}
