package dht

import "context"

// Find looks up hash and blocks until the lookup resolves. It drives the
// peer's own loop: a waiter goroutine injects Stop into our mailbox once the
// result arrives, and Run returns after handling it. The peer is stopped
// afterwards; long-lived peers should Run in the background and use a Client.
func (p *Peer) Find(ctx context.Context, hash ID) ([]byte, bool, error) {
	if p.box.closed() {
		return nil, false, ErrPeerStopped
	}
	results := make(chan LookupResult, 1)
	if err := p.startLookup(ctx, hash, results, p.cfg.TTL); err != nil {
		return nil, false, err
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	captured := make(chan LookupResult, 1)
	go func() {
		select {
		case result := <-results:
			captured <- result
			_ = p.self.Send(waitCtx, Message{From: p.self, Body: Stop{}})
		case <-waitCtx.Done():
		}
	}()

	if err := p.Run(ctx); err != nil {
		return nil, false, err
	}
	select {
	case result := <-captured:
		return result.Data, result.Found, nil
	default:
		return nil, false, ErrLookupAborted
	}
}
