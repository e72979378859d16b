package dht

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
)

// Store puts data into the local store under its content hash and, when a
// known peer is closer to that hash than we are, forwards one copy to it.
// Forwarding is fire-and-forget; every receiver repeats the same step, so the
// copy walks toward its closest holder. The local copy is kept either way.
//
// Store drives the peer directly: do not call it while Run is active on
// another goroutine (use Client.Store).
func (p *Peer) Store(ctx context.Context, data []byte) (ID, error) {
	return p.storeAndForward(ctx, data)
}

func (p *Peer) storeAndForward(ctx context.Context, data []byte) (ID, error) {
	hash := p.hash(data)
	if err := p.db.Put(hash[:], data); err != nil {
		return hash, fmt.Errorf("dht: store %s: %w", hash.Short(), err)
	}
	closest := p.table.Closest(hash, 1)
	if len(closest) == 0 || closest[0].ID == p.id {
		p.logger.Debug("dht: holding blob", slog.String("hash", hash.Short()))
		return hash, nil
	}
	next := closest[0]
	if err := p.send(ctx, next, FoundData{MsgID: p.nextID(), Data: bytes.Clone(data), Propagate: true}); err != nil {
		return hash, err
	}
	p.logger.Debug("dht: forwarded blob",
		slog.String("hash", hash.Short()),
		slog.String("peer", next.ID.Short()))
	return hash, nil
}
