package dht

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranchuFranchu/kelili/storage"
)

// Config tunes a Peer. Zero fields fall back to DefaultConfig.
type Config struct {
	// K bounds every routing bucket and the size of FoundPeers answers.
	K int
	// Alpha is the fan-out of one lookup round.
	Alpha int
	// TTL is the round budget of a lookup, spent by rediscovering ourselves.
	TTL int
	// QueueSize is the capacity of the inbound mailbox.
	QueueSize int
	// SendTimeout bounds how long a send may wait on a full mailbox.
	SendTimeout time.Duration
	// LookupTimeout expires lookups (and ping ledger entries) that never resolve.
	LookupTimeout time.Duration
	// SweepInterval is how often Run checks for expired lookups.
	SweepInterval time.Duration
	// MaxRounds caps the rounds of one lookup regardless of TTL.
	MaxRounds int
}

// DefaultConfig mirrors the constants of the reference overlay.
func DefaultConfig() Config {
	return Config{
		K:             DefaultK,
		Alpha:         3,
		TTL:           5,
		QueueSize:     100,
		SendTimeout:   5 * time.Second,
		LookupTimeout: 30 * time.Second,
		SweepInterval: time.Second,
		MaxRounds:     32,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.K <= 0 {
		c.K = def.K
	}
	if c.Alpha <= 0 {
		c.Alpha = def.Alpha
	}
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = def.LookupTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = def.MaxRounds
	}
	return c
}

// Option customises a Peer at construction.
type Option func(*Peer)

// WithLogger sets the base logger. Component and node attributes are added.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Peer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDatabase replaces the default in-memory content store.
func WithDatabase(db storage.Database) Option {
	return func(p *Peer) {
		if db != nil {
			p.db = db
		}
	}
}

// WithHasher replaces the BLAKE2s content hash.
func WithHasher(h Hasher) Option {
	return func(p *Peer) {
		if h != nil {
			p.hash = h
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Peer) {
		if now != nil {
			p.now = now
		}
	}
}

// WithID pins the node id instead of drawing it from the random source.
func WithID(id ID) Option {
	return func(p *Peer) {
		p.id = id
	}
}

// Peer is one node of the overlay. All of its state is owned by the goroutine
// that drives it: either the caller of Store, Find, Ping and Bootstrap, or the
// Run loop, never both at once. Other goroutines talk to it through a Client.
type Peer struct {
	cfg    Config
	id     ID
	self   PeerInfo
	box    *mailbox
	table  *RoutingTable
	db     storage.Database
	hash   Hasher
	rng    RandomSource
	now    func() time.Time
	logger *slog.Logger

	metrics *dhtMetrics

	peerLatency  map[ID]time.Duration
	pingSentAt   map[uint64]time.Time
	lookups      map[uint64]*pendingLookup
	correlations map[uint64]correlation
}

// NewPeer creates a peer with a fresh mailbox. Its id and private random stream
// are drawn from src.
func NewPeer(cfg Config, src RandomSource, opts ...Option) *Peer {
	if src == nil {
		src = NewCryptoSource()
	}
	cfg = cfg.withDefaults()
	p := &Peer{
		cfg:          cfg,
		id:           RandomID(src),
		box:          newMailbox(cfg.QueueSize),
		hash:         Blake2s,
		now:          time.Now,
		logger:       slog.Default(),
		metrics:      newDHTMetrics(),
		peerLatency:  make(map[ID]time.Duration),
		pingSentAt:   make(map[uint64]time.Time),
		lookups:      make(map[uint64]*pendingLookup),
		correlations: make(map[uint64]correlation),
	}
	p.rng = NewSeededSource(src.NextU64())
	for _, opt := range opts {
		opt(p)
	}
	if p.db == nil {
		p.db = storage.NewMemDB()
	}
	p.self = PeerInfo{ID: p.id, box: p.box}
	p.table = NewRoutingTable(p.self, cfg.K)
	p.logger = p.logger.With(slog.String("component", "dht"), slog.String("node", p.id.Short()))
	return p
}

// ID returns the node id.
func (p *Peer) ID() ID {
	return p.id
}

// Info returns the handle other peers use to reach this one.
func (p *Peer) Info() PeerInfo {
	return p.self
}

// Config returns the effective configuration.
func (p *Peer) Config() Config {
	return p.cfg
}

// RoutingTable exposes the table to the owning goroutine.
func (p *Peer) RoutingTable() *RoutingTable {
	return p.table
}

// Stopped reports whether the mailbox has been closed by Stop.
func (p *Peer) Stopped() bool {
	return p.box.closed()
}

// Holds reports whether the local store has content for id. Safe for
// concurrent use because the Database is.
func (p *Peer) Holds(id ID) bool {
	ok, err := p.db.Has(id[:])
	return err == nil && ok
}

// Bootstrap seeds the routing table with known peers.
func (p *Peer) Bootstrap(seeds ...PeerInfo) {
	for _, seed := range seeds {
		p.observe(seed)
	}
}

// PendingLookups counts unresolved lookups.
func (p *Peer) PendingLookups() int {
	return len(p.lookups)
}

// PendingCorrelations counts outstanding Find message ids.
func (p *Peer) PendingCorrelations() int {
	return len(p.correlations)
}

// Close stops the mailbox and releases the content store. Call it after Run
// has returned.
func (p *Peer) Close() error {
	p.box.close()
	p.metrics.removeNode(p.id)
	return p.db.Close()
}

// Run handles inbound messages until Stop is processed or ctx ends. Lookups
// still pending when it returns are resolved as not found.
func (p *Peer) Run(ctx context.Context) error {
	return p.loop(ctx, 0)
}

// RunTimeout is Run that also returns once no message has arrived for idle.
// The mailbox stays open and pending lookups survive an idle return, so the
// peer can be driven again later.
func (p *Peer) RunTimeout(ctx context.Context, idle time.Duration) error {
	return p.loop(ctx, idle)
}

func (p *Peer) loop(ctx context.Context, idle time.Duration) error {
	if p.box.closed() {
		return ErrPeerStopped
	}
	sweep := time.NewTicker(p.cfg.SweepInterval)
	defer sweep.Stop()

	var idleC <-chan time.Time
	var idleTimer *time.Timer
	if idle > 0 {
		idleTimer = time.NewTimer(idle)
		defer idleTimer.Stop()
		idleC = idleTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			p.abandon()
			return ctx.Err()
		case <-p.box.done:
			p.abandon()
			p.drain()
			return nil
		case <-idleC:
			return nil
		case <-sweep.C:
			p.expire(p.now())
		case msg := <-p.box.ch:
			p.handle(ctx, msg)
			if p.box.closed() {
				p.drain()
				return nil
			}
			if idleTimer != nil {
				idleTimer.Reset(idle)
			}
		}
	}
}

func (p *Peer) handle(ctx context.Context, msg Message) {
	if msg.Body == nil {
		return
	}
	kind := msg.Body.Kind()
	if kind < kindStoreRequest {
		p.metrics.recordMessage("in", kind)
		p.observe(msg.From)
	}

	var err error
	switch body := msg.Body.(type) {
	case Ping:
		err = p.send(ctx, msg.From, Pong{MsgID: body.MsgID, Time: body.Time})
	case Pong:
		p.handlePong(msg.From, body)
	case Find:
		err = p.handleFind(ctx, msg.From, body)
	case FoundPeers:
		err = p.handleFoundPeers(ctx, body)
	case FoundData:
		err = p.handleFoundData(ctx, msg.From, body)
	case Stop:
		p.abandon()
		p.box.close()
	case storeRequest:
		id, storeErr := p.storeAndForward(ctx, body.data)
		body.reply <- storeReply{id: id, err: storeErr}
	case lookupRequest:
		err = p.startLookup(ctx, body.hash, body.results, body.ttl)
	case pingRequest:
		body.reply <- p.Ping(ctx, body.target)
	}
	if err != nil {
		p.logger.Warn("dht: handle message failed",
			slog.String("kind", kind.String()),
			slog.String("peer", msg.From.ID.Short()),
			slog.Bool("integrity", IsIntegrity(err)),
			slog.Any("error", err))
	}
	p.metrics.observeNode(p.id, p.table.Len(), p.db.Len())
}

func (p *Peer) handleFind(ctx context.Context, from PeerInfo, body Find) error {
	data, ok, err := p.loadLocal(body.Hash)
	if err != nil {
		return err
	}
	if ok {
		return p.send(ctx, from, FoundData{MsgID: body.MsgID, Data: data})
	}
	return p.send(ctx, from, FoundPeers{MsgID: body.MsgID, Peers: p.table.Closest(body.Hash, p.cfg.K)})
}

// observe inserts a peer seen on the wire. Handles of stopped peers are skipped.
func (p *Peer) observe(info PeerInfo) {
	if info.Stopped() {
		return
	}
	p.table.Observe(info)
}

// forget drops a peer that could not be reached.
func (p *Peer) forget(info PeerInfo, reason error) {
	if !p.table.Remove(info.ID) {
		return
	}
	delete(p.peerLatency, info.ID)
	p.logger.Warn("dht: dropped unreachable peer",
		slog.String("peer", info.ID.Short()),
		slog.Any("error", reason))
}

func (p *Peer) send(ctx context.Context, to PeerInfo, body Body) error {
	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()
	if err := to.Send(sendCtx, Message{From: p.self, Body: body}); err != nil {
		p.metrics.recordTransportFailure(body.Kind())
		if IsPeerStopped(err) && to.ID != p.id {
			p.forget(to, err)
		}
		return fmt.Errorf("dht: send %s to %s: %w", body.Kind(), to.ID.Short(), err)
	}
	p.metrics.recordMessage("out", body.Kind())
	return nil
}

func (p *Peer) loadLocal(id ID) ([]byte, bool, error) {
	data, err := p.db.Get(id[:])
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dht: load %s: %w", id.Short(), err)
	}
	return data, true, nil
}

// nextID draws a message or find id. Zero is reserved for uncorrelated messages.
func (p *Peer) nextID() uint64 {
	for {
		if id := p.rng.NextU64(); id != 0 {
			return id
		}
	}
}

func (p *Peer) expire(now time.Time) {
	for findID, l := range p.lookups {
		if now.After(l.deadline) {
			p.logger.Debug("dht: lookup expired",
				slog.String("target", l.target.Short()),
				slog.Int("rounds", l.round))
			p.resolve(findID, l, LookupResult{Hash: l.target}, outcomeExpired)
		}
	}
	for msgID, sent := range p.pingSentAt {
		if now.Sub(sent) > p.cfg.LookupTimeout {
			delete(p.pingSentAt, msgID)
		}
	}
}

// abandon resolves every pending lookup as not found. Nothing can answer them
// once the loop has returned.
func (p *Peer) abandon() {
	for findID, l := range p.lookups {
		p.resolve(findID, l, LookupResult{Hash: l.target}, outcomeAborted)
	}
}

// drain answers control requests still queued in a closed mailbox and drops
// everything else.
func (p *Peer) drain() {
	for {
		select {
		case msg := <-p.box.ch:
			switch body := msg.Body.(type) {
			case storeRequest:
				body.reply <- storeReply{err: ErrPeerStopped}
			case lookupRequest:
				p.deliver(body.results, LookupResult{Hash: body.hash})
			case pingRequest:
				body.reply <- ErrPeerStopped
			}
		default:
			return
		}
	}
}
