package dht

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LookupResult is the single outcome delivered for a lookup. Found is false
// when the round budget ran out, the known network was exhausted or the lookup
// expired; it does not prove the content is absent.
type LookupResult struct {
	Hash  ID
	Data  []byte
	Found bool
}

type pendingLookup struct {
	target   ID
	results  chan<- LookupResult
	ttl      int
	round    int
	started  time.Time
	deadline time.Time
}

// correlation ties one outbound Find to the lookup and round it served.
type correlation struct {
	findID uint64
	round  int
}

// Lookup starts an iterative lookup for target and returns immediately. The
// outcome is delivered exactly once on results, which must have room for one
// value. The caller is expected to drive the peer (Run, RunTimeout) afterwards.
// A ttl of zero uses the configured default.
func (p *Peer) Lookup(ctx context.Context, target ID, results chan<- LookupResult, ttl int) error {
	return p.startLookup(ctx, target, results, ttl)
}

func (p *Peer) startLookup(ctx context.Context, target ID, results chan<- LookupResult, ttl int) error {
	if ttl <= 0 {
		ttl = p.cfg.TTL
	}
	data, ok, err := p.loadLocal(target)
	if err != nil {
		p.deliver(results, LookupResult{Hash: target})
		return err
	}
	if ok {
		p.metrics.recordLookup(outcomeLocal, 0, 0)
		p.deliver(results, LookupResult{Hash: target, Data: data, Found: true})
		return nil
	}

	now := p.now()
	findID := p.nextID()
	l := &pendingLookup{
		target:   target,
		results:  results,
		ttl:      ttl,
		started:  now,
		deadline: now.Add(p.cfg.LookupTimeout),
	}
	p.lookups[findID] = l
	p.logger.Debug("dht: lookup started",
		slog.String("target", target.Short()),
		slog.Uint64("find_id", findID),
		slog.Int("ttl", ttl))
	p.runRound(ctx, findID, l)
	return nil
}

// runRound sends Find to the closest known peers other than self. A round that
// reaches nobody ends the lookup.
func (p *Peer) runRound(ctx context.Context, findID uint64, l *pendingLookup) {
	if l.round >= p.cfg.MaxRounds {
		p.resolve(findID, l, LookupResult{Hash: l.target}, outcomeNotFound)
		return
	}
	l.round++
	sent := 0
	for _, candidate := range p.table.Closest(l.target, p.cfg.Alpha) {
		if candidate.ID == p.id {
			continue
		}
		msgID := p.nextID()
		p.correlations[msgID] = correlation{findID: findID, round: l.round}
		if err := p.send(ctx, candidate, Find{MsgID: msgID, Hash: l.target}); err != nil {
			delete(p.correlations, msgID)
			p.logger.Warn("dht: lookup request failed",
				slog.String("target", l.target.Short()),
				slog.Any("error", err))
			continue
		}
		sent++
	}
	if sent == 0 {
		p.resolve(findID, l, LookupResult{Hash: l.target}, outcomeNotFound)
	}
}

func (p *Peer) handleFoundPeers(ctx context.Context, body FoundPeers) error {
	foundSelf := 0
	for _, peer := range body.Peers {
		if peer.ID == p.id {
			foundSelf++
			continue
		}
		p.observe(peer)
	}

	corr, ok := p.correlations[body.MsgID]
	if !ok {
		return nil
	}
	delete(p.correlations, body.MsgID)
	l := p.lookups[corr.findID]
	if l == nil {
		return nil
	}
	if corr.round != l.round {
		// Superseded round: the peers were learned, nothing else to do.
		return nil
	}
	l.ttl -= foundSelf
	if l.ttl <= 0 {
		p.resolve(corr.findID, l, LookupResult{Hash: l.target}, outcomeNotFound)
		return nil
	}
	p.runRound(ctx, corr.findID, l)
	return nil
}

func (p *Peer) handleFoundData(ctx context.Context, from PeerInfo, body FoundData) error {
	var rejected error
	if corr, ok := p.correlations[body.MsgID]; ok {
		delete(p.correlations, body.MsgID)
		if l := p.lookups[corr.findID]; l != nil {
			if p.hash(body.Data) == l.target {
				p.resolve(corr.findID, l, LookupResult{Hash: l.target, Data: body.Data, Found: true}, outcomeFound)
			} else {
				rejected = fmt.Errorf("dht: found data for %s from %s: %w", l.target.Short(), from.ID.Short(), ErrIntegrity)
				p.metrics.recordIntegrityViolation()
				p.table.Remove(from.ID)
				if !p.awaitingRound(corr.findID, l.round) {
					p.runRound(ctx, corr.findID, l)
				}
			}
		}
	}
	if body.Propagate {
		if _, err := p.storeAndForward(ctx, body.Data); err != nil {
			return err
		}
	}
	return rejected
}

// awaitingRound reports whether a Find of the given round is still unanswered.
func (p *Peer) awaitingRound(findID uint64, round int) bool {
	for _, corr := range p.correlations {
		if corr.findID == findID && corr.round == round {
			return true
		}
	}
	return false
}

// resolve delivers the outcome and drops every trace of the lookup.
func (p *Peer) resolve(findID uint64, l *pendingLookup, result LookupResult, outcome string) {
	delete(p.lookups, findID)
	for msgID, corr := range p.correlations {
		if corr.findID == findID {
			delete(p.correlations, msgID)
		}
	}
	p.metrics.recordLookup(outcome, l.round, p.now().Sub(l.started))
	p.logger.Debug("dht: lookup resolved",
		slog.String("target", l.target.Short()),
		slog.String("outcome", outcome),
		slog.Int("rounds", l.round))
	p.deliver(l.results, result)
}

func (p *Peer) deliver(results chan<- LookupResult, result LookupResult) {
	select {
	case results <- result:
	default:
		p.logger.Warn("dht: lookup result dropped", slog.String("target", result.Hash.Short()))
	}
}
