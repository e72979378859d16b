package dht

import (
	"bytes"
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client submits work to a running peer through its mailbox, so the peer's
// loop stays the only writer of its state. It is safe for concurrent use; the
// peer must be running (Run) for calls to complete. Calls waiting on a peer
// that stops fail with ErrPeerStopped, or see a lookup resolved as not found.
type Client struct {
	peer   PeerInfo
	tracer trace.Tracer
}

// NewClient wraps a peer handle.
func NewClient(info PeerInfo) Client {
	return Client{peer: info, tracer: otel.Tracer("kelili/dht")}
}

// Client returns a concurrent handle to this peer.
func (p *Peer) Client() Client {
	return NewClient(p.self)
}

// Info returns the handle of the peer behind the client.
func (c Client) Info() PeerInfo {
	return c.peer
}

// Store is the concurrent form of Peer.Store.
func (c Client) Store(ctx context.Context, data []byte) (ID, error) {
	ctx, span := c.tracer.Start(ctx, "dht.store", trace.WithAttributes(
		attribute.String("dht.node", c.peer.ID.Short()),
		attribute.Int("dht.size", len(data)),
	))
	defer span.End()

	reply := make(chan storeReply, 1)
	req := storeRequest{data: bytes.Clone(data), reply: reply}
	if err := c.peer.Send(ctx, Message{From: c.peer, Body: req}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ID{}, fmt.Errorf("dht: submit store: %w", err)
	}
	r, err := await(ctx, c.peer, reply)
	if err == nil {
		err = r.err
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ID{}, err
	}
	span.SetAttributes(attribute.String("dht.hash", r.id.Short()))
	return r.id, nil
}

// Find runs a lookup on the peer and waits for its outcome. Unlike Peer.Find
// the peer keeps running afterwards.
func (c Client) Find(ctx context.Context, hash ID) ([]byte, bool, error) {
	return c.FindWithTTL(ctx, hash, 0)
}

// FindWithTTL is Find with an explicit round budget; zero uses the peer default.
func (c Client) FindWithTTL(ctx context.Context, hash ID, ttl int) ([]byte, bool, error) {
	ctx, span := c.tracer.Start(ctx, "dht.find", trace.WithAttributes(
		attribute.String("dht.node", c.peer.ID.Short()),
		attribute.String("dht.hash", hash.Short()),
	))
	defer span.End()

	results := make(chan LookupResult, 1)
	req := lookupRequest{hash: hash, ttl: ttl, results: results}
	if err := c.peer.Send(ctx, Message{From: c.peer, Body: req}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, false, fmt.Errorf("dht: submit lookup: %w", err)
	}
	r, err := await(ctx, c.peer, results)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("dht.found", r.Found))
	return r.Data, r.Found, nil
}

// Ping asks the peer to probe target.
func (c Client) Ping(ctx context.Context, target PeerInfo) error {
	reply := make(chan error, 1)
	if err := c.peer.Send(ctx, Message{From: c.peer, Body: pingRequest{target: target, reply: reply}}); err != nil {
		return fmt.Errorf("dht: submit ping: %w", err)
	}
	pingErr, err := await(ctx, c.peer, reply)
	if err != nil {
		return err
	}
	return pingErr
}

// Bootstrap makes the peer aware of seeds.
func (c Client) Bootstrap(ctx context.Context, seeds ...PeerInfo) error {
	for _, seed := range seeds {
		if err := c.peer.Introduce(ctx, seed); err != nil {
			return fmt.Errorf("dht: introduce %s: %w", seed.ID.Short(), err)
		}
	}
	return nil
}

// Stop asks the peer to close its mailbox.
func (c Client) Stop(ctx context.Context) error {
	err := c.peer.Send(ctx, Message{From: c.peer, Body: Stop{}})
	if IsPeerStopped(err) {
		return nil
	}
	return err
}

// await waits for the peer's answer. A reply already queued wins over the peer
// having stopped.
func await[T any](ctx context.Context, peer PeerInfo, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-peer.box.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrPeerStopped
		}
	}
}
