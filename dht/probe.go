package dht

import (
	"context"
	"time"
)

// Ping sends a liveness probe. The round trip is recorded when the Pong is
// handled by a later Run; see Latency.
func (p *Peer) Ping(ctx context.Context, target PeerInfo) error {
	now := p.now()
	msgID := p.nextID()
	p.pingSentAt[msgID] = now
	if err := p.send(ctx, target, Ping{MsgID: msgID, Time: now.UnixNano()}); err != nil {
		delete(p.pingSentAt, msgID)
		return err
	}
	return nil
}

func (p *Peer) handlePong(from PeerInfo, body Pong) {
	sent, ok := p.pingSentAt[body.MsgID]
	if !ok {
		return
	}
	delete(p.pingSentAt, body.MsgID)
	rtt := p.now().Sub(sent)
	p.peerLatency[from.ID] = rtt
	p.metrics.recordRTT(from.ID, rtt)
}

// Latency returns the last measured round trip to a peer. Informational only;
// routing ignores it.
func (p *Peer) Latency(id ID) (time.Duration, bool) {
	rtt, ok := p.peerLatency[id]
	return rtt, ok
}
