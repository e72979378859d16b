package dht

import (
	"context"
	"sync"
)

// mailbox is a peer's inbound queue. Senders block while it is full; closing
// it is permanent and makes every later send fail with ErrPeerStopped.
type mailbox struct {
	ch        chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newMailbox(size int) *mailbox {
	if size < 1 {
		size = 1
	}
	return &mailbox{
		ch:   make(chan Message, size),
		done: make(chan struct{}),
	}
}

func (m *mailbox) send(ctx context.Context, msg Message) error {
	select {
	case <-m.done:
		return ErrPeerStopped
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case m.ch <- msg:
		return nil
	case <-m.done:
		return ErrPeerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mailbox) close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

func (m *mailbox) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// PeerInfo is the handle one peer uses to address another. It is a value type;
// copies share the target's mailbox and compare by ID only.
type PeerInfo struct {
	ID  ID
	box *mailbox
}

// Equal reports whether both handles name the same peer.
func (p PeerInfo) Equal(other PeerInfo) bool {
	return p.ID == other.ID
}

// Stopped reports whether the peer behind the handle has closed its mailbox.
func (p PeerInfo) Stopped() bool {
	return p.box == nil || p.box.closed()
}

func (p PeerInfo) String() string {
	return p.ID.Short()
}

// Send delivers msg to the peer's mailbox, blocking while the queue is full.
func (p PeerInfo) Send(ctx context.Context, msg Message) error {
	if p.box == nil {
		return ErrPeerStopped
	}
	return p.box.send(ctx, msg)
}

// Introduce tells the peer about peers, as if from had answered a lookup with
// them. The receiver observes from and every entry of peers.
func (p PeerInfo) Introduce(ctx context.Context, from PeerInfo, peers ...PeerInfo) error {
	return p.Send(ctx, Message{From: from, Body: FoundPeers{Peers: peers}})
}
